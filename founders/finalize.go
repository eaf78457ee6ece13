package founders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nxtrix.com/founders/internal/logger"
	"nxtrix.com/founders/models"
	"nxtrix.com/founders/payments"
	"nxtrix.com/founders/storage"
)

type FinalizeRequest struct {
	SetupIntentID   string `json:"setup_intent_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

type FinalizeResult struct {
	Success          bool      `json:"success"`
	SubscriptionID   string    `json:"subscription_id"`
	StripeCustomerID string    `json:"customer_id"`
	PaymentStatus    string    `json:"payment_status"`
	TrialEnd         time.Time `json:"trial_end"`
}

func customerKey(setupIntentID string) string     { return "founders-customer-" + setupIntentID }
func subscriptionKey(setupIntentID string) string { return "founders-subscription-" + setupIntentID }

// Finalize turns a pending signup with a confirmed card into a trial
// subscription. Replaying a finalize for the same setup intent returns the
// stored result and creates nothing new.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	if err := required(
		[2]string{"setup_intent_id", req.SetupIntentID},
		[2]string{"payment_method_id", req.PaymentMethodID},
	); err != nil {
		return nil, err
	}

	record, err := s.store.FindCustomerBySetupIntent(ctx, req.SetupIntentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: no signup for setup intent %s", ErrSignupNotFound, req.SetupIntentID)
	}
	if record.Subscribed() {
		logger.Info("Finalize replayed for subscribed signup", logger.Fields{
			"setup_intent_id": req.SetupIntentID,
			"subscription_id": record.SubscriptionID,
		})
		return finalizeResult(record), nil
	}

	si, err := s.gateway.GetSetupIntent(ctx, req.SetupIntentID)
	if err != nil {
		return nil, err
	}

	emailAddr := firstNonEmpty(si.Metadata[metaEmail], record.Email)
	name := firstNonEmpty(si.Metadata[metaName], record.Name)
	tier, cycle, priceID, err := s.resolvePrice(
		firstNonEmpty(si.Metadata[metaTier], string(record.Tier)),
		firstNonEmpty(si.Metadata[metaBillingCycle], string(record.BillingCycle)),
	)
	if err != nil {
		return nil, err
	}

	// The first attempt fixes trial_end so retries send Stripe identical
	// parameters under the same idempotency key.
	trialEnd, err := s.store.ReserveTrialEnd(ctx, req.SetupIntentID, s.trialEnd())
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return nil, fmt.Errorf("%w: no signup for setup intent %s", ErrSignupNotFound, req.SetupIntentID)
		}
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	customer, err := s.gateway.CreateCustomer(ctx, payments.CustomerRequest{
		Email:          emailAddr,
		Name:           name,
		IdempotencyKey: customerKey(req.SetupIntentID),
		Metadata: map[string]string{
			"company":       record.Company,
			"investor_type": record.InvestorType,
			"experience":    record.Experience,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := s.gateway.AttachPaymentMethod(ctx, req.PaymentMethodID, customer.ID); err != nil {
		return nil, err
	}
	if err := s.gateway.SetDefaultPaymentMethod(ctx, customer.ID, req.PaymentMethodID); err != nil {
		return nil, err
	}

	sub, err := s.gateway.CreateSubscription(ctx, payments.SubscriptionRequest{
		CustomerID:      customer.ID,
		PriceID:         priceID,
		PaymentMethodID: req.PaymentMethodID,
		TrialEnd:        trialEnd,
		IdempotencyKey:  subscriptionKey(req.SetupIntentID),
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

	update := models.SubscriptionUpdate{
		StripeCustomerID: customer.ID,
		SubscriptionID:   sub.ID,
		PaymentMethodID:  req.PaymentMethodID,
		PaymentStatus:    models.StatusTrial,
		TrialEnd:         trialEnd,
		UpdatedAt:        s.now().UTC(),
	}
	if err := s.store.UpdateBySetupIntent(ctx, req.SetupIntentID, update); err != nil {
		// The subscription stays in place. A retry reuses the idempotency
		// keys and lands on the same subscription.
		logger.Error("Subscription created but signup update failed", logger.Fields{
			"setup_intent_id": req.SetupIntentID,
			"subscription_id": sub.ID,
			"error":           err.Error(),
		})
		if errors.Is(err, storage.ErrNoRows) {
			return nil, fmt.Errorf("%w: no signup matched setup intent %s", ErrStorageUpdate, req.SetupIntentID)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageUpdate, err)
	}
	update.Apply(record)

	logger.Info("Founders trial started", logger.Fields{
		"email":           emailAddr,
		"tier":            string(tier),
		"subscription_id": sub.ID,
		"trial_end":       trialEnd.Format(time.RFC3339),
	})
	s.notifyTrialStarted(ctx, record)

	return finalizeResult(record), nil
}

func finalizeResult(record *models.CustomerRecord) *FinalizeResult {
	result := &FinalizeResult{
		Success:          true,
		SubscriptionID:   record.SubscriptionID,
		StripeCustomerID: record.StripeCustomerID,
		PaymentStatus:    string(record.PaymentStatus),
	}
	if record.TrialEnd != nil {
		result.TrialEnd = *record.TrialEnd
	}
	return result
}
