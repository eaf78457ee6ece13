package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeGateway implements Gateway on the Stripe API.
type StripeGateway struct {
	sc *client.API
}

type stripeOptions struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int64
}

type Option func(*stripeOptions)

// WithHTTPClient sets the HTTP client used for every Stripe call.
func WithHTTPClient(c *http.Client) Option {
	return func(o *stripeOptions) { o.httpClient = c }
}

// WithBaseURL points the gateway at a different API host, such as stripe-mock.
func WithBaseURL(u string) Option {
	return func(o *stripeOptions) { o.baseURL = u }
}

// WithMaxRetries sets the number of network retries. The default is 2.
func WithMaxRetries(n int64) Option {
	return func(o *stripeOptions) { o.maxRetries = n }
}

func NewStripeGateway(secretKey string, opts ...Option) *StripeGateway {
	o := &stripeOptions{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(o)
	}

	sc := &client.API{}
	sc.Init(secretKey, newBackends(o))
	return &StripeGateway{sc: sc}
}

func newBackends(o *stripeOptions) *stripe.Backends {
	config := func() *stripe.BackendConfig {
		c := &stripe.BackendConfig{
			HTTPClient:        o.httpClient,
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
			MaxNetworkRetries: stripe.Int64(o.maxRetries),
		}
		if o.baseURL != "" {
			c.URL = stripe.String(o.baseURL)
		}
		return c
	}
	return &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, config()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, config()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, config()),
	}
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, req SetupIntentRequest) (*SetupIntent, error) {
	params := &stripe.SetupIntentParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Usage:              stripe.String("off_session"),
		Metadata:           req.Metadata,
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}

	si, err := g.sc.SetupIntents.New(params)
	if err != nil {
		return nil, gatewayErr("create setup intent", err)
	}
	return toSetupIntent(si), nil
}

func (g *StripeGateway) GetSetupIntent(ctx context.Context, id string) (*SetupIntent, error) {
	params := &stripe.SetupIntentParams{}
	params.Context = ctx

	si, err := g.sc.SetupIntents.Get(id, params)
	if err != nil {
		return nil, gatewayErr("get setup intent", err)
	}
	return toSetupIntent(si), nil
}

func (g *StripeGateway) CancelSetupIntent(ctx context.Context, id string) error {
	params := &stripe.SetupIntentCancelParams{}
	params.Context = ctx

	if _, err := g.sc.SetupIntents.Cancel(id, params); err != nil {
		return gatewayErr("cancel setup intent", err)
	}
	return nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(req.Email),
		Metadata: req.Metadata,
	}
	params.Context = ctx
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodID)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	c, err := g.sc.Customers.New(params)
	if err != nil {
		return nil, gatewayErr("create customer", err)
	}
	return &Customer{ID: c.ID, Email: c.Email}, nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx

	if _, err := g.sc.PaymentMethods.Attach(paymentMethodID, params); err != nil {
		return gatewayErr("attach payment method", err)
	}
	return nil
}

func (g *StripeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx

	if _, err := g.sc.Customers.Update(customerID, params); err != nil {
		return gatewayErr("set default payment method", err)
	}
	return nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		Metadata:        req.Metadata,
	}
	params.Context = ctx
	if !req.TrialEnd.IsZero() {
		params.TrialEnd = stripe.Int64(req.TrialEnd.Unix())
	}
	if req.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(req.PaymentMethodID)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := g.sc.Subscriptions.New(params)
	if err != nil {
		return nil, gatewayErr("create subscription", err)
	}

	sub := &Subscription{ID: s.ID, Status: string(s.Status)}
	if s.TrialEnd > 0 {
		sub.TrialEnd = time.Unix(s.TrialEnd, 0).UTC()
	}
	return sub, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSetup)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Customer:           stripe.String(req.CustomerID),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		Metadata:           req.Metadata,
		SetupIntentData: &stripe.CheckoutSessionSetupIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, gatewayErr("create checkout session", err)
	}

	session := &CheckoutSession{ID: s.ID, URL: s.URL, CustomerID: req.CustomerID}
	if s.Customer != nil && s.Customer.ID != "" {
		session.CustomerID = s.Customer.ID
	}
	if s.SetupIntent != nil {
		session.SetupIntentID = s.SetupIntent.ID
	}
	return session, nil
}

func toSetupIntent(si *stripe.SetupIntent) *SetupIntent {
	out := &SetupIntent{
		ID:           si.ID,
		ClientSecret: si.ClientSecret,
		Status:       string(si.Status),
		Metadata:     si.Metadata,
	}
	if si.Customer != nil {
		out.CustomerID = si.Customer.ID
	}
	if si.PaymentMethod != nil {
		out.PaymentMethodID = si.PaymentMethod.ID
	}
	return out
}

// gatewayErr wraps err in ErrGateway, keeping the Stripe message and the
// original error for errors.As.
func gatewayErr(op string, err error) error {
	var e *stripe.Error
	if errors.As(err, &e) && e.Msg != "" {
		return fmt.Errorf("%w: %s: %s: %w", ErrGateway, op, e.Msg, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrGateway, op, err)
}
