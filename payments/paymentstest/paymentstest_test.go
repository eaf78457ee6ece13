package paymentstest

import (
	"context"
	"errors"
	"testing"
	"time"

	"nxtrix.com/founders/payments"
)

func TestGateway_SubscriptionIdempotency(t *testing.T) {
	trialEnd := time.Date(2026, 3, 31, 9, 30, 15, 0, time.UTC)
	base := payments.SubscriptionRequest{
		CustomerID:      "cus_1",
		PriceID:         "price_pro_m",
		PaymentMethodID: "pm_card",
		TrialEnd:        trialEnd,
		IdempotencyKey:  "founders-subscription-seti_1",
		Metadata:        map[string]string{"tier": "professional"},
	}

	tests := []struct {
		name    string
		change  func(r *payments.SubscriptionRequest)
		wantErr bool
	}{
		{"identical retry", func(r *payments.SubscriptionRequest) {}, false},
		{"later trial end", func(r *payments.SubscriptionRequest) { r.TrialEnd = trialEnd.Add(5 * time.Second) }, true},
		{"other price", func(r *payments.SubscriptionRequest) { r.PriceID = "price_pro_a" }, true},
		{"other metadata", func(r *payments.SubscriptionRequest) { r.Metadata = map[string]string{"tier": "essential"} }, true},
		{"no key", func(r *payments.SubscriptionRequest) { r.IdempotencyKey = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			ctx := context.Background()
			first, err := g.CreateSubscription(ctx, base)
			if err != nil {
				t.Fatalf("CreateSubscription failed: %v", err)
			}

			retry := base
			tt.change(&retry)
			sub, err := g.CreateSubscription(ctx, retry)
			if tt.wantErr {
				if !errors.Is(err, payments.ErrGateway) {
					t.Fatalf("Expected ErrGateway, got %v", err)
				}
				if g.SubscriptionCount() != 1 {
					t.Errorf("Expected one subscription, got %d", g.SubscriptionCount())
				}
				return
			}
			if err != nil {
				t.Fatalf("Retry failed: %v", err)
			}
			if retry.IdempotencyKey != "" && sub.ID != first.ID {
				t.Errorf("Expected subscription %s again, got %s", first.ID, sub.ID)
			}
		})
	}
}

func TestGateway_CustomerIdempotency(t *testing.T) {
	g := New()
	ctx := context.Background()
	req := payments.CustomerRequest{Email: "a@x.com", Name: "A", IdempotencyKey: "founders-customer-seti_1"}

	first, err := g.CreateCustomer(ctx, req)
	if err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	again, err := g.CreateCustomer(ctx, req)
	if err != nil || again.ID != first.ID {
		t.Fatalf("Expected customer %s again, got %v, %v", first.ID, again, err)
	}

	req.Email = "b@x.com"
	if _, err := g.CreateCustomer(ctx, req); !errors.Is(err, payments.ErrGateway) {
		t.Errorf("Expected ErrGateway for a reused key, got %v", err)
	}
	if g.CustomerCount() != 1 {
		t.Errorf("Expected one customer, got %d", g.CustomerCount())
	}
}
