package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nxtrix.com/founders/founders"
	"nxtrix.com/founders/internal/testutil"
	"nxtrix.com/founders/models"
	"nxtrix.com/founders/payments/paymentstest"
	"nxtrix.com/founders/storage"
)

func newTestServer(opts Options) (*Server, *testutil.Env) {
	env := testutil.NewEnv()
	if opts.StripeWebhookSecret == "" {
		opts.StripeWebhookSecret = testutil.WebhookSecret
	}
	return NewHttpServer(env.Service, env.Store, opts), env
}

func TestSignupEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "valid signup",
			body:           map[string]string{"email": "a@x.com", "name": "A", "tier": "Professional"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing fields",
			body:           map[string]string{"email": "a@x.com"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "validation failed: name is required, tier is required",
		},
		{
			name:           "unknown tier",
			body:           map[string]string{"email": "a@x.com", "name": "A", "tier": "gold"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  `invalid plan or billing cycle: unknown tier "gold"`,
		},
		{
			name:           "empty body",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Empty body",
		},
		{
			name:           "not json",
			body:           "just a string",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, env := newTestServer(Options{})

			w := testutil.DoJSON(t, server, http.MethodPost, "/api/founders/signup", tt.body)

			if tt.expectedError != "" {
				testutil.AssertErrorResponse(t, w, tt.expectedStatus, tt.expectedError)
				if env.Store.Len() != 0 {
					t.Errorf("Expected no record, got %d", env.Store.Len())
				}
				return
			}

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			var result founders.SignupResult
			testutil.DecodeJSON(t, w, &result)
			if result.SetupIntentID == "" || result.ClientSecret == "" || !result.Success {
				t.Errorf("Unexpected result %+v", result)
			}
		})
	}
}

func TestSignupEndpoint_Duplicate(t *testing.T) {
	server, _ := newTestServer(Options{})
	body := map[string]string{"email": "a@x.com", "name": "A", "tier": "solo"}

	if w := testutil.DoJSON(t, server, http.MethodPost, "/api/founders/signup", body); w.Code != http.StatusOK {
		t.Fatalf("First signup failed: %d %s", w.Code, w.Body.String())
	}

	w := testutil.DoJSON(t, server, http.MethodPost, "/api/founders/signup", body)
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "email already registered")
}

func TestFinalizeEndpoint(t *testing.T) {
	server, env := newTestServer(Options{})

	w := testutil.DoJSON(t, server, http.MethodPost, "/api/founders/signup",
		map[string]string{"email": "a@x.com", "name": "A", "tier": "team", "billing": "annual"})
	var signup founders.SignupResult
	testutil.DecodeJSON(t, w, &signup)

	finalize := map[string]string{"setup_intent_id": signup.SetupIntentID, "payment_method_id": "pm_card_visa"}
	for i := 0; i < 2; i++ {
		w = testutil.DoJSON(t, server, http.MethodPost, "/api/founders/finalize", finalize)
		if w.Code != http.StatusOK {
			t.Fatalf("Finalize %d failed: %d %s", i+1, w.Code, w.Body.String())
		}
	}

	var result founders.FinalizeResult
	testutil.DecodeJSON(t, w, &result)
	if result.PaymentStatus != "trial" || result.SubscriptionID == "" {
		t.Errorf("Unexpected finalize result %+v", result)
	}
	if env.Gateway.SubscriptionCount() != 1 {
		t.Errorf("Expected one subscription after replay, got %d", env.Gateway.SubscriptionCount())
	}
	if got := env.Gateway.SubscriptionRequests[0].PriceID; got != "price_professional_annual" {
		t.Errorf("Expected annual professional price, got %s", got)
	}
}

func TestFinalizeEndpoint_Errors(t *testing.T) {
	server, env := newTestServer(Options{})

	w := testutil.DoJSON(t, server, http.MethodPost, "/api/founders/finalize", map[string]string{"setup_intent_id": "seti_1"})
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "validation failed: payment_method_id is required")

	w = testutil.DoJSON(t, server, http.MethodPost, "/api/founders/finalize",
		map[string]string{"setup_intent_id": "seti_unknown", "payment_method_id": "pm_1"})
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "signup not found: no signup for setup intent seti_unknown")

	// Processor failures never leak details.
	if err := env.Store.InsertCustomer(context.Background(), testutil.CreateTestRecord("rec-1", "b@x.com", "seti_known")); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
	env.Gateway.Err[paymentstest.OpGetSetupIntent] = errors.New("api key sk_live_abc is invalid")
	w = testutil.DoJSON(t, server, http.MethodPost, "/api/founders/finalize",
		map[string]string{"setup_intent_id": "seti_known", "payment_method_id": "pm_1"})
	testutil.AssertErrorResponse(t, w, http.StatusInternalServerError, "Internal server error")
}

func TestCheckoutSessionEndpoint(t *testing.T) {
	server, env := newTestServer(Options{})

	w := testutil.DoJSON(t, server, http.MethodPost, "/api/founders/checkout-session", map[string]string{
		"customer_email": "buyer@x.com",
		"tier":           "enterprise",
		"success_url":    "https://nxtrix.com/success.html",
		"cancel_url":     "https://nxtrix.com/pricing.html",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result founders.CheckoutResult
	testutil.DecodeJSON(t, w, &result)
	if result.URL == "" || result.CustomerID == "" || result.SessionID == "" {
		t.Errorf("Unexpected result %+v", result)
	}
	if env.Store.Len() != 0 {
		t.Errorf("Expected no record written, got %d", env.Store.Len())
	}

	w = testutil.DoJSON(t, server, http.MethodPost, "/api/founders/checkout-session", map[string]string{
		"customer_email": "buyer@x.com",
		"tier":           "enterprise",
	})
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "validation failed: success_url is required, cancel_url is required")
}

func TestOptionsPreflight(t *testing.T) {
	server, _ := newTestServer(Options{AllowedOrigins: []string{"https://nxtrix.com"}})

	for _, path := range []string{"/api/founders/signup", "/api/founders/finalize", "/anything"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, path, nil)
			req.Header.Set("Origin", "https://nxtrix.com")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			req.Header.Set("Access-Control-Request-Headers", "Content-Type")
			w := httptest.NewRecorder()

			server.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("Expected 200, got %d", w.Code)
			}
			if w.Body.Len() != 0 {
				t.Errorf("Expected empty body, got %q", w.Body.String())
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://nxtrix.com" {
				t.Errorf("Expected allow origin header, got %q", got)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
				t.Errorf("Expected credentials allowed, got %q", got)
			}
		})
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	server, _ := newTestServer(Options{AllowedOrigins: []string{"https://nxtrix.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/founders/signup", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no allow origin header, got %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(Options{})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/founders/signup", nil)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)

		testutil.AssertErrorResponse(t, w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func TestNotFound(t *testing.T) {
	server, _ := newTestServer(Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/founders/unknown", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "Not found")
}

func TestRateLimit(t *testing.T) {
	server, _ := newTestServer(Options{RateLimitPerMinute: 2})
	body := map[string]string{"email": "a@x.com"}

	for i := 0; i < 2; i++ {
		w := testutil.DoJSON(t, server, http.MethodPost, "/api/founders/signup", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("Request %d: expected 400, got %d", i+1, w.Code)
		}
	}

	w := testutil.DoJSON(t, server, http.MethodPost, "/api/founders/signup", body)
	testutil.AssertErrorResponse(t, w, http.StatusTooManyRequests, "Too many requests")

	// Health is not limited.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	hw := httptest.NewRecorder()
	server.ServeHTTP(hw, req)
	if hw.Code != http.StatusOK {
		t.Errorf("Expected health to stay available, got %d", hw.Code)
	}
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(Options{})

	testutil.DoJSON(t, server, http.MethodPost, "/api/founders/signup",
		map[string]string{"email": "a@x.com", "name": "A", "tier": "solo"})
	testutil.DoJSON(t, server, http.MethodPost, "/api/founders/signup",
		map[string]string{"email": "a@x.com", "name": "A", "tier": "solo"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var health HealthResponse
	testutil.DecodeJSON(t, w, &health)
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", health.Status)
	}
	if health.Stats["signups"] != 1 || health.Stats["client_errors"] != 1 {
		t.Errorf("Unexpected stats %v", health.Stats)
	}
}

type downStore struct{ storage.Storage }

func (downStore) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestReady(t *testing.T) {
	server, _ := newTestServer(Options{})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected ready, got %d", w.Code)
	}

	env := testutil.NewEnv()
	down := NewHttpServer(env.Service, downStore{env.Store}, Options{})
	w = httptest.NewRecorder()
	down.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	testutil.AssertErrorResponse(t, w, http.StatusServiceUnavailable, "Store unavailable")
}

func TestSignupThenFinalize_StoresTrial(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	env := testutil.NewEnv(founders.WithClock(func() time.Time { return now }))
	server := NewHttpServer(env.Service, env.Store, Options{})

	w := testutil.DoJSON(t, server, http.MethodPost, "/api/founders/signup",
		map[string]string{"email": "flow@x.com", "name": "F", "tier": "essential"})
	var signup founders.SignupResult
	testutil.DecodeJSON(t, w, &signup)

	testutil.DoJSON(t, server, http.MethodPost, "/api/founders/finalize",
		map[string]string{"setup_intent_id": signup.SetupIntentID, "payment_method_id": "pm_1"})

	record, err := env.Store.FindCustomerByEmail(context.Background(), "flow@x.com")
	if err != nil || record == nil {
		t.Fatalf("Expected stored record, got %v, %v", record, err)
	}
	if record.PaymentStatus != models.StatusTrial {
		t.Errorf("Expected trial, got %s", record.PaymentStatus)
	}
	if want := now.Add(30 * 24 * time.Hour); !record.TrialEnd.Equal(want) {
		t.Errorf("Expected trial end %v, got %v", want, record.TrialEnd)
	}
}
