package models

import "testing"

func TestParseTier(t *testing.T) {
	tests := []struct {
		input       string
		expected    Tier
		expectError bool
	}{
		{"Essential", TierEssential, false},
		{"professional", TierProfessional, false},
		{" ENTERPRISE ", TierEnterprise, false},
		{"solo", TierEssential, false},
		{"team", TierProfessional, false},
		{"Business", TierEnterprise, false},
		{"platinum", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tier, err := ParseTier(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for %q, got tier %s", tt.input, tier)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tier != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, tier)
			}
		})
	}
}

func TestTier_DisplayName(t *testing.T) {
	if TierProfessional.DisplayName() != "Professional" {
		t.Errorf("Expected Professional, got %s", TierProfessional.DisplayName())
	}
	if Tier("custom").DisplayName() != "custom" {
		t.Errorf("Unknown tiers should display as-is")
	}
}

func TestParseBillingCycle(t *testing.T) {
	tests := []struct {
		input       string
		expected    BillingCycle
		expectError bool
	}{
		{"", BillingMonthly, false},
		{"monthly", BillingMonthly, false},
		{"Annual", BillingAnnual, false},
		{"yearly", BillingAnnual, false},
		{"weekly", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cycle, err := ParseBillingCycle(tt.input)
			if tt.expectError != (err != nil) {
				t.Fatalf("ParseBillingCycle(%q) error = %v, expectError %v", tt.input, err, tt.expectError)
			}
			if cycle != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, cycle)
			}
		})
	}
}
