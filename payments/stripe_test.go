package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
)

type recordedRequest struct {
	method         string
	path           string
	form           url.Values
	idempotencyKey string
	auth           string
}

// newTestGateway starts a fake Stripe API answering every request with the
// body registered for its path.
func newTestGateway(t *testing.T, responses map[string]string) (*StripeGateway, *[]recordedRequest) {
	t.Helper()

	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		requests = append(requests, recordedRequest{
			method:         r.Method,
			path:           r.URL.Path,
			form:           r.Form,
			idempotencyKey: r.Header.Get("Idempotency-Key"),
			auth:           r.Header.Get("Authorization"),
		})

		body, ok := responses[r.Method+" "+r.URL.Path]
		if !ok {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"not found"}}`)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if status, ok := responses["status "+r.URL.Path]; ok {
			var code int
			fmt.Sscanf(status, "%d", &code)
			w.WriteHeader(code)
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)

	gw := NewStripeGateway("sk_test_123",
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithMaxRetries(0),
	)
	return gw, &requests
}

func TestStripeGateway_CreateSetupIntent(t *testing.T) {
	gw, requests := newTestGateway(t, map[string]string{
		"POST /v1/setup_intents": `{"id":"seti_123","object":"setup_intent","client_secret":"seti_123_secret_abc","status":"requires_payment_method","metadata":{"email":"a@b.com"}}`,
	})

	si, err := gw.CreateSetupIntent(context.Background(), SetupIntentRequest{
		Metadata: map[string]string{"email": "a@b.com", "tier": "professional"},
	})
	if err != nil {
		t.Fatalf("CreateSetupIntent failed: %v", err)
	}
	if si.ID != "seti_123" || si.ClientSecret != "seti_123_secret_abc" {
		t.Errorf("Unexpected setup intent %+v", si)
	}

	if len(*requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if req.auth != "Bearer sk_test_123" {
		t.Errorf("Expected bearer auth, got %q", req.auth)
	}
	tests := map[string]string{
		"usage":                   "off_session",
		"payment_method_types[0]": "card",
		"metadata[email]":         "a@b.com",
		"metadata[tier]":          "professional",
	}
	for field, want := range tests {
		if got := req.form.Get(field); got != want {
			t.Errorf("Expected %s=%q, got %q", field, want, got)
		}
	}
}

func TestStripeGateway_GetSetupIntent(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]string{
		"GET /v1/setup_intents/seti_123": `{"id":"seti_123","object":"setup_intent","status":"succeeded","customer":"cus_9","payment_method":"pm_4","metadata":{"tier":"essential","billing_cycle":"annual"}}`,
	})

	si, err := gw.GetSetupIntent(context.Background(), "seti_123")
	if err != nil {
		t.Fatalf("GetSetupIntent failed: %v", err)
	}
	if si.PaymentMethodID != "pm_4" || si.CustomerID != "cus_9" {
		t.Errorf("Expected expandable ids to be read, got %+v", si)
	}
	if si.Metadata["billing_cycle"] != "annual" {
		t.Errorf("Expected metadata to round trip, got %v", si.Metadata)
	}
}

func TestStripeGateway_CreateCustomerWithIdempotencyKey(t *testing.T) {
	gw, requests := newTestGateway(t, map[string]string{
		"POST /v1/customers": `{"id":"cus_123","object":"customer","email":"a@b.com"}`,
	})

	c, err := gw.CreateCustomer(context.Background(), CustomerRequest{
		Email:          "a@b.com",
		Name:           "Ada",
		IdempotencyKey: "founders-customer-seti_123",
	})
	if err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if c.ID != "cus_123" {
		t.Errorf("Expected cus_123, got %s", c.ID)
	}

	req := (*requests)[0]
	if req.idempotencyKey != "founders-customer-seti_123" {
		t.Errorf("Expected idempotency key to be sent, got %q", req.idempotencyKey)
	}
	if req.form.Get("name") != "Ada" || req.form.Get("email") != "a@b.com" {
		t.Errorf("Unexpected customer form %v", req.form)
	}
}

func TestStripeGateway_AttachAndSetDefault(t *testing.T) {
	gw, requests := newTestGateway(t, map[string]string{
		"POST /v1/payment_methods/pm_1/attach": `{"id":"pm_1","object":"payment_method","customer":"cus_1"}`,
		"POST /v1/customers/cus_1":             `{"id":"cus_1","object":"customer"}`,
	})

	ctx := context.Background()
	if err := gw.AttachPaymentMethod(ctx, "pm_1", "cus_1"); err != nil {
		t.Fatalf("AttachPaymentMethod failed: %v", err)
	}
	if err := gw.SetDefaultPaymentMethod(ctx, "cus_1", "pm_1"); err != nil {
		t.Fatalf("SetDefaultPaymentMethod failed: %v", err)
	}

	if got := (*requests)[0].form.Get("customer"); got != "cus_1" {
		t.Errorf("Expected attach customer cus_1, got %q", got)
	}
	if got := (*requests)[1].form.Get("invoice_settings[default_payment_method]"); got != "pm_1" {
		t.Errorf("Expected default payment method pm_1, got %q", got)
	}
}

func TestStripeGateway_CreateSubscription(t *testing.T) {
	trialEnd := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	gw, requests := newTestGateway(t, map[string]string{
		"POST /v1/subscriptions": fmt.Sprintf(`{"id":"sub_123","object":"subscription","status":"trialing","trial_end":%d}`, trialEnd.Unix()),
	})

	sub, err := gw.CreateSubscription(context.Background(), SubscriptionRequest{
		CustomerID:      "cus_1",
		PriceID:         "price_pro_monthly",
		PaymentMethodID: "pm_1",
		TrialEnd:        trialEnd,
		IdempotencyKey:  "founders-subscription-seti_123",
	})
	if err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}
	if sub.ID != "sub_123" || sub.Status != "trialing" {
		t.Errorf("Unexpected subscription %+v", sub)
	}
	if !sub.TrialEnd.Equal(trialEnd) {
		t.Errorf("Expected trial end %v, got %v", trialEnd, sub.TrialEnd)
	}

	req := (*requests)[0]
	tests := map[string]string{
		"customer":               "cus_1",
		"items[0][price]":        "price_pro_monthly",
		"trial_end":              fmt.Sprint(trialEnd.Unix()),
		"payment_behavior":       "default_incomplete",
		"default_payment_method": "pm_1",
	}
	for field, want := range tests {
		if got := req.form.Get(field); got != want {
			t.Errorf("Expected %s=%q, got %q", field, want, got)
		}
	}
	if req.idempotencyKey != "founders-subscription-seti_123" {
		t.Errorf("Expected idempotency key, got %q", req.idempotencyKey)
	}
}

func TestStripeGateway_CreateCheckoutSession(t *testing.T) {
	gw, requests := newTestGateway(t, map[string]string{
		"POST /v1/checkout/sessions": `{"id":"cs_123","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_123","customer":"cus_1","mode":"setup"}`,
	})

	session, err := gw.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		CustomerID: "cus_1",
		SuccessURL: "https://nxtrix.com/success.html",
		CancelURL:  "https://nxtrix.com/pricing.html",
		Metadata:   map[string]string{"tier": "enterprise"},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession failed: %v", err)
	}
	if session.URL != "https://checkout.stripe.com/c/pay/cs_123" || session.ID != "cs_123" || session.CustomerID != "cus_1" {
		t.Errorf("Unexpected session %+v", session)
	}

	req := (*requests)[0]
	tests := map[string]string{
		"mode":                              "setup",
		"customer":                          "cus_1",
		"payment_method_types[0]":           "card",
		"metadata[tier]":                    "enterprise",
		"setup_intent_data[metadata][tier]": "enterprise",
	}
	for field, want := range tests {
		if got := req.form.Get(field); got != want {
			t.Errorf("Expected %s=%q, got %q", field, want, got)
		}
	}
}

func TestStripeGateway_ErrorsWrapGateway(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]string{
		"POST /v1/payment_methods/pm_bad/attach":   `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`,
		"status /v1/payment_methods/pm_bad/attach": "402",
	})

	err := gw.AttachPaymentMethod(context.Background(), "pm_bad", "cus_1")
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("Expected ErrGateway, got %v", err)
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		t.Fatalf("Expected *stripe.Error in chain, got %T", err)
	}
	if stripeErr.Code != stripe.ErrorCodeCardDeclined {
		t.Errorf("Expected card_declined, got %s", stripeErr.Code)
	}
}
