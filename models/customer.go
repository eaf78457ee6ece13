package models

import (
	"strings"
	"time"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusTrial   PaymentStatus = "trial"
)

// CustomerRecord is a founders signup, keyed by email.
type CustomerRecord struct {
	ID               string        `json:"id"`
	Email            string        `json:"email"`
	Name             string        `json:"name"`
	Company          string        `json:"company,omitempty"`
	InvestorType     string        `json:"investor_type,omitempty"`
	Experience       string        `json:"experience,omitempty"`
	Tier             Tier          `json:"tier"`
	BillingCycle     BillingCycle  `json:"billing_cycle"`
	PriceID          string        `json:"price_id,omitempty"`
	SetupIntentID    string        `json:"setup_intent_id,omitempty"`
	StripeCustomerID string        `json:"stripe_customer_id,omitempty"`
	SubscriptionID   string        `json:"subscription_id,omitempty"`
	PaymentMethodID  string        `json:"payment_method_id,omitempty"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	TrialEnd         *time.Time    `json:"trial_end,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Subscribed reports whether the record already went through finalization.
func (c *CustomerRecord) Subscribed() bool {
	return c.PaymentStatus == StatusTrial && c.SubscriptionID != ""
}

// SubscriptionUpdate carries the processor ids written when a trial starts.
type SubscriptionUpdate struct {
	StripeCustomerID string
	SubscriptionID   string
	PaymentMethodID  string
	PaymentStatus    PaymentStatus
	TrialEnd         time.Time
	UpdatedAt        time.Time
}

// Apply copies the update onto the record.
func (u SubscriptionUpdate) Apply(c *CustomerRecord) {
	c.StripeCustomerID = u.StripeCustomerID
	c.SubscriptionID = u.SubscriptionID
	c.PaymentMethodID = u.PaymentMethodID
	c.PaymentStatus = u.PaymentStatus
	trialEnd := u.TrialEnd
	c.TrialEnd = &trialEnd
	c.UpdatedAt = u.UpdatedAt
}

// NormalizeEmail is the canonical form used for the uniqueness check.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
