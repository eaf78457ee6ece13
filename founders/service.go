// Package founders runs the founders subscription signup flow: reserving a
// spot, collecting a card, and starting the trial subscription.
package founders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"nxtrix.com/founders/internal/email"
	"nxtrix.com/founders/internal/logger"
	"nxtrix.com/founders/models"
	"nxtrix.com/founders/payments"
	"nxtrix.com/founders/storage"
)

const (
	DefaultTrialPeriod = 30 * 24 * time.Hour
	DefaultRedirectURL = "https://nxtrix.com/success.html"
)

// Metadata keys written on setup intents and checkout sessions.
const (
	metaEmail            = "email"
	metaName             = "name"
	metaTier             = "tier"
	metaBillingCycle     = "billing_cycle"
	metaStripeCustomerID = "stripe_customer_id"
)

type Service struct {
	store   storage.Storage
	gateway payments.Gateway
	catalog payments.Catalog

	mailer      email.Sender
	now         func() time.Time
	newID       func() string
	trialPeriod time.Duration
	redirectURL string
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTrialPeriod(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.trialPeriod = d
		}
	}
}

// WithMailer enables the trial-started email.
func WithMailer(m email.Sender) Option {
	return func(s *Service) { s.mailer = m }
}

// WithRedirectURL sets the page a browser is sent to after signup.
func WithRedirectURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.redirectURL = u
		}
	}
}

func New(store storage.Storage, gateway payments.Gateway, catalog payments.Catalog, opts ...Option) *Service {
	s := &Service{
		store:       store,
		gateway:     gateway,
		catalog:     catalog,
		now:         time.Now,
		newID:       uuid.NewString,
		trialPeriod: DefaultTrialPeriod,
		redirectURL: DefaultRedirectURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) trialEnd() time.Time {
	return s.trialEndFrom(s.now())
}

// trialEndFrom is start plus the trial period, truncated to whole seconds,
// the precision the processor stores.
func (s *Service) trialEndFrom(start time.Time) time.Time {
	return time.Unix(start.Add(s.trialPeriod).Unix(), 0).UTC()
}

// resolvePrice parses the tier and billing cycle and looks up the price id.
func (s *Service) resolvePrice(tierName, cycleName string) (models.Tier, models.BillingCycle, string, error) {
	tier, err := models.ParseTier(tierName)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrInvalidTier, err)
	}
	cycle, err := models.ParseBillingCycle(cycleName)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrInvalidTier, err)
	}
	price, err := s.catalog.PriceFor(tier, cycle)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrInvalidTier, err)
	}
	return tier, cycle, price, nil
}

func (s *Service) notifyTrialStarted(ctx context.Context, record *models.CustomerRecord) {
	if s.mailer == nil {
		return
	}

	msg := email.Message{
		To:      record.Email,
		ToName:  record.Name,
		Subject: "Your NXTRIX founders trial has started",
		Body: fmt.Sprintf("Hi %s,\n\nThanks for reserving a founders spot on the %s plan. "+
			"Your free trial runs until %s and you will not be charged before then.\n",
			firstNonEmpty(record.Name, "there"), record.Tier.DisplayName(), record.TrialEnd.Format("January 2, 2006")),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		logger.Error("Failed to send trial email", logger.Fields{
			"email": record.Email,
			"error": err.Error(),
		})
	}
}

// required returns an error listing every empty field, or nil.
func required(fields ...[2]string) error {
	var result *multierror.Error
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			result = multierror.Append(result, fmt.Errorf("%s is required", f[0]))
		}
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return strings.Join(msgs, ", ")
	}
	return fmt.Errorf("%w: %s", ErrValidation, result.Error())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
