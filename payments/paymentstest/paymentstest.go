// Package paymentstest provides an in-memory payments.Gateway for tests.
package paymentstest

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"nxtrix.com/founders/payments"
)

// Gateway is a fake processor. Customers and subscriptions created with an
// idempotency key are returned again for the same key, like Stripe does, and
// a key reused with different parameters is rejected.
type Gateway struct {
	mu sync.Mutex

	SetupIntents  map[string]*payments.SetupIntent
	Customers     map[string]*payments.Customer
	Subscriptions map[string]*payments.Subscription
	Sessions      map[string]*payments.CheckoutSession

	// Requests as received, in order.
	CustomerRequests     []payments.CustomerRequest
	SubscriptionRequests []payments.SubscriptionRequest
	SessionRequests      []payments.CheckoutSessionRequest
	Cancelled            []string
	Attached             map[string]string
	Defaults             map[string]string

	// Err, when set for an operation name, is returned by that operation.
	Err map[string]error

	byKey       map[string]string
	customerReq map[string]payments.CustomerRequest
	subReq      map[string]payments.SubscriptionRequest
	seq         int
}

func New() *Gateway {
	return &Gateway{
		SetupIntents:  make(map[string]*payments.SetupIntent),
		Customers:     make(map[string]*payments.Customer),
		Subscriptions: make(map[string]*payments.Subscription),
		Sessions:      make(map[string]*payments.CheckoutSession),
		Attached:      make(map[string]string),
		Defaults:      make(map[string]string),
		Err:           make(map[string]error),
		byKey:         make(map[string]string),
		customerReq:   make(map[string]payments.CustomerRequest),
		subReq:        make(map[string]payments.SubscriptionRequest),
	}
}

// Operation names accepted by Err.
const (
	OpCreateSetupIntent       = "CreateSetupIntent"
	OpGetSetupIntent          = "GetSetupIntent"
	OpCancelSetupIntent       = "CancelSetupIntent"
	OpCreateCustomer          = "CreateCustomer"
	OpAttachPaymentMethod     = "AttachPaymentMethod"
	OpSetDefaultPaymentMethod = "SetDefaultPaymentMethod"
	OpCreateSubscription      = "CreateSubscription"
	OpCreateCheckoutSession   = "CreateCheckoutSession"
)

func (g *Gateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_test%d", prefix, g.seq)
}

func keyReused(key string) error {
	return fmt.Errorf("%w: idempotency_error: key %q was used with different parameters", payments.ErrGateway, key)
}

func (g *Gateway) fail(op string) error {
	if err := g.Err[op]; err != nil {
		return fmt.Errorf("%w: %s: %w", payments.ErrGateway, op, err)
	}
	return nil
}

// AddSetupIntent registers a setup intent as if the card step had completed.
func (g *Gateway) AddSetupIntent(si *payments.SetupIntent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.SetupIntents[si.ID] = si
}

func (g *Gateway) CreateSetupIntent(ctx context.Context, req payments.SetupIntentRequest) (*payments.SetupIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(OpCreateSetupIntent); err != nil {
		return nil, err
	}

	id := g.nextID("seti")
	si := &payments.SetupIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		CustomerID:   req.CustomerID,
		Status:       "requires_payment_method",
		Metadata:     copyMap(req.Metadata),
	}
	g.SetupIntents[id] = si
	out := *si
	return &out, nil
}

func (g *Gateway) GetSetupIntent(ctx context.Context, id string) (*payments.SetupIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(OpGetSetupIntent); err != nil {
		return nil, err
	}

	si, ok := g.SetupIntents[id]
	if !ok {
		return nil, fmt.Errorf("%w: no such setup intent: %s", payments.ErrGateway, id)
	}
	out := *si
	return &out, nil
}

func (g *Gateway) CancelSetupIntent(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(OpCancelSetupIntent); err != nil {
		return err
	}

	if si, ok := g.SetupIntents[id]; ok {
		si.Status = "canceled"
	}
	g.Cancelled = append(g.Cancelled, id)
	return nil
}

func (g *Gateway) CreateCustomer(ctx context.Context, req payments.CustomerRequest) (*payments.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(OpCreateCustomer); err != nil {
		return nil, err
	}
	g.CustomerRequests = append(g.CustomerRequests, req)

	if id, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		prev := g.customerReq[req.IdempotencyKey]
		if prev.Email != req.Email || prev.Name != req.Name || !maps.Equal(prev.Metadata, req.Metadata) {
			return nil, keyReused(req.IdempotencyKey)
		}
		out := *g.Customers[id]
		return &out, nil
	}

	c := &payments.Customer{ID: g.nextID("cus"), Email: req.Email}
	g.Customers[c.ID] = c
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = c.ID
		g.customerReq[req.IdempotencyKey] = req
	}
	out := *c
	return &out, nil
}

func (g *Gateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(OpAttachPaymentMethod); err != nil {
		return err
	}
	g.Attached[paymentMethodID] = customerID
	return nil
}

func (g *Gateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(OpSetDefaultPaymentMethod); err != nil {
		return err
	}
	g.Defaults[customerID] = paymentMethodID
	return nil
}

func (g *Gateway) CreateSubscription(ctx context.Context, req payments.SubscriptionRequest) (*payments.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(OpCreateSubscription); err != nil {
		return nil, err
	}
	g.SubscriptionRequests = append(g.SubscriptionRequests, req)

	if id, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		prev := g.subReq[req.IdempotencyKey]
		if prev.CustomerID != req.CustomerID || prev.PriceID != req.PriceID ||
			prev.PaymentMethodID != req.PaymentMethodID || !prev.TrialEnd.Equal(req.TrialEnd) ||
			!maps.Equal(prev.Metadata, req.Metadata) {
			return nil, keyReused(req.IdempotencyKey)
		}
		out := *g.Subscriptions[id]
		return &out, nil
	}

	sub := &payments.Subscription{ID: g.nextID("sub"), Status: "trialing", TrialEnd: req.TrialEnd}
	g.Subscriptions[sub.ID] = sub
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = sub.ID
		g.subReq[req.IdempotencyKey] = req
	}
	out := *sub
	return &out, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (*payments.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(OpCreateCheckoutSession); err != nil {
		return nil, err
	}
	g.SessionRequests = append(g.SessionRequests, req)

	id := g.nextID("cs")
	s := &payments.CheckoutSession{
		ID:         id,
		URL:        "https://checkout.stripe.test/c/pay/" + id,
		CustomerID: req.CustomerID,
	}
	g.Sessions[id] = s
	out := *s
	return &out, nil
}

// SubscriptionCount returns the number of distinct subscriptions created.
func (g *Gateway) SubscriptionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Subscriptions)
}

// CustomerCount returns the number of distinct customers created.
func (g *Gateway) CustomerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Customers)
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ payments.Gateway = (*Gateway)(nil)
