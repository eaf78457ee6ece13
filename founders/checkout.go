package founders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"nxtrix.com/founders/internal/logger"
	"nxtrix.com/founders/models"
	"nxtrix.com/founders/payments"
	"nxtrix.com/founders/storage"
)

// CheckoutRequest is the body of POST /api/founders/checkout-session.
type CheckoutRequest struct {
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name,omitempty"`
	Tier          string `json:"tier"`
	Billing       string `json:"billing,omitempty"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
}

type CheckoutResult struct {
	URL        string `json:"url"`
	SessionID  string `json:"session_id"`
	CustomerID string `json:"customer_id"`
}

// CreateCheckoutSession starts the hosted checkout path. Every call creates
// a new processor customer, even for an email seen before. The record store
// is only written when the session completes.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := required(
		[2]string{"customer_email", req.CustomerEmail},
		[2]string{"tier", req.Tier},
		[2]string{"success_url", req.SuccessURL},
		[2]string{"cancel_url", req.CancelURL},
	); err != nil {
		return nil, err
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(req.CustomerEmail))
	if err != nil {
		return nil, fmt.Errorf("%w: customer_email is not a valid address", ErrValidation)
	}
	for _, f := range [][2]string{{"success_url", req.SuccessURL}, {"cancel_url", req.CancelURL}} {
		if !isAbsoluteHTTPURL(f[1]) {
			return nil, fmt.Errorf("%w: %s must be an absolute http(s) URL", ErrValidation, f[0])
		}
	}

	tier, cycle, _, err := s.resolvePrice(req.Tier, req.Billing)
	if err != nil {
		return nil, err
	}

	emailAddr := models.NormalizeEmail(addr.Address)
	customer, err := s.gateway.CreateCustomer(ctx, payments.CustomerRequest{
		Email: emailAddr,
		Name:  req.CustomerName,
	})
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		CustomerID: customer.ID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata: map[string]string{
			metaEmail:            emailAddr,
			metaName:             req.CustomerName,
			metaTier:             string(tier),
			metaBillingCycle:     string(cycle),
			metaStripeCustomerID: customer.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Checkout session created", logger.Fields{
		"email":      emailAddr,
		"tier":       string(tier),
		"session_id": session.ID,
	})

	return &CheckoutResult{
		URL:        session.URL,
		SessionID:  session.ID,
		CustomerID: customer.ID,
	}, nil
}

// CheckoutCompletion is what the checkout.session.completed event carries
// for a setup-mode session.
type CheckoutCompletion struct {
	SessionID     string
	CustomerID    string
	SetupIntentID string
	Metadata      map[string]string

	// CompletedAt anchors the trial. Redeliveries of the same event carry
	// the same value. Zero means now.
	CompletedAt time.Time
}

// CompleteCheckout starts the trial for a finished checkout session. The
// record is found by processor customer id, then by email for a pending
// Signup, or created in trial state.
func (s *Service) CompleteCheckout(ctx context.Context, c CheckoutCompletion) (*FinalizeResult, error) {
	if err := required(
		[2]string{"customer", c.CustomerID},
		[2]string{"setup_intent", c.SetupIntentID},
	); err != nil {
		return nil, err
	}

	record, err := s.store.FindCustomerByStripeCustomer(ctx, c.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if record != nil && record.Subscribed() {
		return finalizeResult(record), nil
	}
	byCustomer := record != nil

	si, err := s.gateway.GetSetupIntent(ctx, c.SetupIntentID)
	if err != nil {
		return nil, err
	}
	if si.PaymentMethodID == "" {
		return nil, fmt.Errorf("%w: setup intent %s has no payment method", ErrValidation, si.ID)
	}

	meta := func(key string) string { return firstNonEmpty(c.Metadata[key], si.Metadata[key]) }
	emailAddr := models.NormalizeEmail(meta(metaEmail))
	if emailAddr == "" {
		return nil, fmt.Errorf("%w: checkout session has no email", ErrValidation)
	}
	tier, cycle, priceID, err := s.resolvePrice(meta(metaTier), meta(metaBillingCycle))
	if err != nil {
		return nil, err
	}

	if !byCustomer {
		record, err = s.store.FindCustomerByEmail(ctx, emailAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStore, err)
		}
		// Only a pending Signup can be taken over, and only before anything
		// exists at the processor.
		if record != nil && (record.Subscribed() || record.SetupIntentID == "") {
			return nil, fmt.Errorf("%w: %s", ErrConflict, emailAddr)
		}
	}

	if err := s.gateway.SetDefaultPaymentMethod(ctx, c.CustomerID, si.PaymentMethodID); err != nil {
		return nil, err
	}

	start := c.CompletedAt
	if start.IsZero() {
		start = s.now()
	}
	trialEnd := s.trialEndFrom(start)
	sub, err := s.gateway.CreateSubscription(ctx, payments.SubscriptionRequest{
		CustomerID:      c.CustomerID,
		PriceID:         priceID,
		PaymentMethodID: si.PaymentMethodID,
		TrialEnd:        trialEnd,
		IdempotencyKey:  subscriptionKey(c.SetupIntentID),
		Metadata: map[string]string{
			metaEmail:        emailAddr,
			metaTier:         string(tier),
			metaBillingCycle: string(cycle),
		},
	})
	if err != nil {
		return nil, err
	}
	if !sub.TrialEnd.IsZero() {
		trialEnd = sub.TrialEnd.UTC()
	}

	now := s.now().UTC()
	update := models.SubscriptionUpdate{
		StripeCustomerID: c.CustomerID,
		SubscriptionID:   sub.ID,
		PaymentMethodID:  si.PaymentMethodID,
		PaymentStatus:    models.StatusTrial,
		TrialEnd:         trialEnd,
		UpdatedAt:        now,
	}

	switch {
	case byCustomer:
		if err := s.store.UpdateByStripeCustomer(ctx, c.CustomerID, update); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorageUpdate, err)
		}
		update.Apply(record)
	case record != nil:
		if err := s.store.UpdateBySetupIntent(ctx, record.SetupIntentID, update); err != nil {
			logger.Error("Subscription created but pending signup update failed", logger.Fields{
				"session_id":      c.SessionID,
				"subscription_id": sub.ID,
				"error":           err.Error(),
			})
			return nil, fmt.Errorf("%w: %w", ErrStorageUpdate, err)
		}
		update.Apply(record)
	default:
		record = &models.CustomerRecord{
			ID:            s.newID(),
			Email:         emailAddr,
			Name:          meta(metaName),
			Tier:          tier,
			BillingCycle:  cycle,
			PriceID:       priceID,
			SetupIntentID: c.SetupIntentID,
			CreatedAt:     now,
		}
		update.Apply(record)
		if err := s.store.InsertCustomer(ctx, record); err != nil {
			logger.Error("Subscription created but checkout signup could not be saved", logger.Fields{
				"session_id":      c.SessionID,
				"subscription_id": sub.ID,
				"error":           err.Error(),
			})
			if errors.Is(err, storage.ErrAlreadyExists) {
				return nil, fmt.Errorf("%w: %s", ErrConflict, emailAddr)
			}
			return nil, fmt.Errorf("%w: %w", ErrStorageUpdate, err)
		}
	}

	logger.Info("Founders trial started from checkout", logger.Fields{
		"email":           emailAddr,
		"session_id":      c.SessionID,
		"subscription_id": sub.ID,
		"trial_end":       trialEnd.Format(time.RFC3339),
	})
	s.notifyTrialStarted(ctx, record)

	return finalizeResult(record), nil
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
