package founders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"nxtrix.com/founders/internal/logger"
	"nxtrix.com/founders/models"
	"nxtrix.com/founders/payments"
	"nxtrix.com/founders/storage"
)

// SignupRequest is the body of POST /api/founders/signup. Plan and
// BillingCycle are accepted as older names for Tier and Billing.
type SignupRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Tier         string `json:"tier"`
	Plan         string `json:"plan,omitempty"`
	Billing      string `json:"billing,omitempty"`
	BillingCycle string `json:"billing_cycle,omitempty"`
	Company      string `json:"company,omitempty"`
	InvestorType string `json:"investor_type,omitempty"`
	Experience   string `json:"experience,omitempty"`
}

type SignupResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	SetupIntentID string `json:"setup_intent_id"`
	ClientSecret  string `json:"client_secret"`
	RedirectURL   string `json:"redirect_url"`
}

// Signup reserves a founders spot: it creates an off-session card setup
// intent and a pending record for the email.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	tierName := firstNonEmpty(req.Tier, req.Plan)
	cycleName := firstNonEmpty(req.Billing, req.BillingCycle)

	if err := required(
		[2]string{"email", req.Email},
		[2]string{"name", req.Name},
		[2]string{"tier", tierName},
	); err != nil {
		return nil, err
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, fmt.Errorf("%w: email is not a valid address", ErrValidation)
	}
	emailAddr := models.NormalizeEmail(addr.Address)

	tier, cycle, priceID, err := s.resolvePrice(tierName, cycleName)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindCustomerByEmail(ctx, emailAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if existing != nil {
		return nil, ErrConflict
	}

	si, err := s.gateway.CreateSetupIntent(ctx, payments.SetupIntentRequest{
		Metadata: map[string]string{
			metaEmail:        emailAddr,
			metaName:         req.Name,
			metaTier:         string(tier),
			metaBillingCycle: string(cycle),
		},
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := &models.CustomerRecord{
		ID:            s.newID(),
		Email:         emailAddr,
		Name:          req.Name,
		Company:       req.Company,
		InvestorType:  req.InvestorType,
		Experience:    req.Experience,
		Tier:          tier,
		BillingCycle:  cycle,
		PriceID:       priceID,
		SetupIntentID: si.ID,
		PaymentStatus: models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.InsertCustomer(ctx, record); err != nil {
		s.cancelSetupIntent(ctx, si.ID)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	logger.Info("Founders spot reserved", logger.Fields{
		"email":           emailAddr,
		"tier":            string(tier),
		"billing_cycle":   string(cycle),
		"setup_intent_id": si.ID,
	})

	return &SignupResult{
		Success:       true,
		Message:       "Founders spot reserved successfully!",
		SetupIntentID: si.ID,
		ClientSecret:  si.ClientSecret,
		RedirectURL:   s.successURL(tier, cycle),
	}, nil
}

// cancelSetupIntent undoes a setup intent whose record could not be saved.
// The request context may already be done, so a fresh one is used.
func (s *Service) cancelSetupIntent(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.gateway.CancelSetupIntent(ctx, id); err != nil {
		logger.Error("Failed to cancel orphaned setup intent", logger.Fields{
			"setup_intent_id": id,
			"error":           err.Error(),
		})
	}
}

func (s *Service) successURL(tier models.Tier, cycle models.BillingCycle) string {
	u, err := url.Parse(s.redirectURL)
	if err != nil {
		return s.redirectURL
	}
	q := u.Query()
	q.Set("type", "founders")
	q.Set("tier", string(tier))
	q.Set("billing", string(cycle))
	u.RawQuery = q.Encode()
	return u.String()
}
