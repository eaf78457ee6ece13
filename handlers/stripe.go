package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"nxtrix.com/founders/founders"
	"nxtrix.com/founders/internal/logger"
)

// Stripe receives signed webhook events. Only setup-mode
// checkout.session.completed is acted on; other events are acknowledged.
func (s *Server) Stripe(w http.ResponseWriter, r *http.Request) {
	s.stats.Webhooks.Inc()

	if s.webhookSecret == "" {
		logger.Error("STRIPE_WEBHOOK_SECRET not configured, rejecting webhook")
		writeErrorResponse(w, http.StatusInternalServerError, "Webhook not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", logger.Fields{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Warn("Webhook signature verification failed", logger.Fields{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	logger.Info("Stripe event received", logger.Fields{
		"event_type": string(event.Type),
		"event_id":   event.ID,
	})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			logger.Error("Failed to unmarshal checkout session", logger.Fields{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			writeErrorResponse(w, http.StatusBadRequest, "Invalid checkout session")
			return
		}

		if session.Mode != stripe.CheckoutSessionModeSetup {
			logger.Info("Ignoring non-setup checkout session", logger.Fields{
				"session_id": session.ID,
				"mode":       string(session.Mode),
			})
			break
		}

		if _, err := s.Founders.CompleteCheckout(r.Context(), completionFromSession(&session, event.Created)); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	default:
		logger.Debug("Unhandled webhook event type", logger.Fields{
			"event_type": string(event.Type),
			"event_id":   event.ID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// completionFromSession anchors the trial on the event's creation time, which
// stays the same across redeliveries.
func completionFromSession(session *stripe.CheckoutSession, created int64) founders.CheckoutCompletion {
	c := founders.CheckoutCompletion{
		SessionID: session.ID,
		Metadata:  session.Metadata,
	}
	if created > 0 {
		c.CompletedAt = time.Unix(created, 0).UTC()
	}
	if session.Customer != nil {
		c.CustomerID = session.Customer.ID
	}
	if session.SetupIntent != nil {
		c.SetupIntentID = session.SetupIntent.ID
	}
	return c
}
