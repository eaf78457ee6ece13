package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"nxtrix.com/founders/founders"
	"nxtrix.com/founders/models"
	"nxtrix.com/founders/payments"
	"nxtrix.com/founders/payments/paymentstest"
	"nxtrix.com/founders/storage"
)

const WebhookSecret = "whsec_test_secret"

// Catalog returns a price table with every tier priced monthly and
// essential/professional priced annually.
func Catalog() payments.Catalog {
	return payments.Catalog{
		models.TierEssential: {
			models.BillingMonthly: "price_essential_monthly",
			models.BillingAnnual:  "price_essential_annual",
		},
		models.TierProfessional: {
			models.BillingMonthly: "price_professional_monthly",
			models.BillingAnnual:  "price_professional_annual",
		},
		models.TierEnterprise: {
			models.BillingMonthly: "price_enterprise_monthly",
		},
	}
}

// Env bundles a founders service with its in-memory doubles.
type Env struct {
	Service *founders.Service
	Store   *storage.MemoryStorage
	Gateway *paymentstest.Gateway
}

func NewEnv(opts ...founders.Option) *Env {
	store := storage.NewMemoryStorage()
	gateway := paymentstest.New()
	return &Env{
		Service: founders.New(store, gateway, Catalog(), opts...),
		Store:   store,
		Gateway: gateway,
	}
}

// CreateTestRecord creates a pending record with the given email and setup intent.
func CreateTestRecord(id, email, setupIntentID string) *models.CustomerRecord {
	now := time.Now().UTC()
	return &models.CustomerRecord{
		ID:            id,
		Email:         email,
		Name:          "Test Founder",
		Tier:          models.TierProfessional,
		BillingCycle:  models.BillingMonthly,
		PriceID:       "price_professional_monthly",
		SetupIntentID: setupIntentID,
		PaymentStatus: models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// DoJSON sends body as JSON to h and returns the recorded response.
func DoJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://nxtrix.com")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// DecodeJSON decodes the recorded body into v.
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

// AssertErrorResponse checks the status and the JSON error message.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	if w.Code != expectedStatus {
		t.Errorf("Expected status %d, got %d (%s)", expectedStatus, w.Code, w.Body.String())
	}

	var response map[string]string
	DecodeJSON(t, w, &response)

	if response["error"] != expectedError {
		t.Errorf("Expected error '%s', got '%s'", expectedError, response["error"])
	}
}

// SignedStripeEvent builds a webhook payload for object and signs it with
// WebhookSecret. It returns the body and the Stripe-Signature header.
func SignedStripeEvent(t *testing.T, eventType string, object map[string]interface{}) ([]byte, string) {
	t.Helper()

	event := map[string]interface{}{
		"id":          "evt_test123",
		"object":      "event",
		"type":        eventType,
		"api_version": "2025-03-31.basil",
		"created":     time.Now().Unix(),
		"data": map[string]interface{}{
			"object": object,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    WebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

// CheckoutSessionObject is a setup-mode checkout session as Stripe sends it.
func CheckoutSessionObject(sessionID, customerID, setupIntentID string, metadata map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"id":           sessionID,
		"object":       "checkout.session",
		"mode":         "setup",
		"status":       "complete",
		"customer":     customerID,
		"setup_intent": setupIntentID,
		"metadata":     metadata,
	}
}
