// Package payments wraps the card processor calls used by the founders flow.
package payments

import (
	"context"
	"errors"
	"time"
)

// ErrGateway marks a failure reported by, or while talking to, the processor.
var ErrGateway = errors.New("payment gateway error")

// Gateway is the set of processor operations the signup flow needs.
type Gateway interface {
	CreateSetupIntent(ctx context.Context, req SetupIntentRequest) (*SetupIntent, error)
	GetSetupIntent(ctx context.Context, id string) (*SetupIntent, error)
	CancelSetupIntent(ctx context.Context, id string) error

	CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
}

type SetupIntentRequest struct {
	CustomerID string
	Metadata   map[string]string
}

type SetupIntent struct {
	ID              string
	ClientSecret    string
	CustomerID      string
	PaymentMethodID string
	Status          string
	Metadata        map[string]string
}

type CustomerRequest struct {
	Email           string
	Name            string
	PaymentMethodID string
	Metadata        map[string]string
	// IdempotencyKey is optional. Requests sharing a key return the same customer.
	IdempotencyKey string
}

type Customer struct {
	ID    string
	Email string
}

type SubscriptionRequest struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
	TrialEnd        time.Time
	Metadata        map[string]string
	IdempotencyKey  string
}

type Subscription struct {
	ID       string
	Status   string
	TrialEnd time.Time
}

type CheckoutSessionRequest struct {
	CustomerID string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type CheckoutSession struct {
	ID            string
	URL           string
	CustomerID    string
	SetupIntentID string
}
