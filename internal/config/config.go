package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"nxtrix.com/founders/models"
)

type StorePrivilege string

const (
	PrivilegeService StorePrivilege = "service"
	PrivilegeAnon    StorePrivilege = "anon"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration

	// DatabaseURL is the connection string matching StorePrivilege.
	DatabaseURL    string
	StorePrivilege StorePrivilege

	StripeSecret        string
	StripeWebhookSecret string
	StripeAPIBase       string

	// Prices maps tier and billing cycle to a Stripe price id.
	Prices map[models.Tier]map[models.BillingCycle]string

	AllowedOrigins     []string
	SuccessRedirectURL string
	TrialPeriod        time.Duration
	RateLimitPerMinute int

	SentryDSN string

	EmailService   string // "none", "sendgrid" or "smtp"
	SendgridAPIKey string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	EmailFrom      string
}

// legacyTierNames are the price env names used before tiers were renamed.
var legacyTierNames = map[models.Tier]string{
	models.TierEssential:    "SOLO",
	models.TierProfessional: "TEAM",
	models.TierEnterprise:   "BUSINESS",
}

// New reads the configuration from the environment. All problems are
// reported together.
func New() (*Config, error) {
	var result *multierror.Error

	cfg := &Config{
		Port:                envOrDefault("PORT", "8080"),
		StripeSecret:        os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeAPIBase:       os.Getenv("STRIPE_API_BASE"),
		AllowedOrigins:      splitList(envOrDefault("CORS_ALLOWED_ORIGINS", "https://nxtrix.com")),
		SuccessRedirectURL:  envOrDefault("SUCCESS_REDIRECT_URL", "https://nxtrix.com/success.html"),
		SentryDSN:           os.Getenv("SENTRY_DSN"),
		EmailService:        strings.ToLower(envOrDefault("EMAIL_SERVICE", "none")),
		SendgridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            os.Getenv("SMTP_PORT"),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		EmailFrom:           envOrDefault("EMAIL_FROM", "founders@nxtrix.com"),
	}

	if cfg.StripeSecret == "" {
		result = multierror.Append(result, errors.New("STRIPE_SECRET_KEY environment variable is required"))
	}

	var err error
	if cfg.ShutdownTimeout, err = envSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second); err != nil {
		result = multierror.Append(result, err)
	}

	trialDays, err := envInt("TRIAL_DAYS", 30)
	if err != nil {
		result = multierror.Append(result, err)
	} else if trialDays <= 0 {
		result = multierror.Append(result, errors.New("TRIAL_DAYS must be positive"))
	}
	cfg.TrialPeriod = time.Duration(trialDays) * 24 * time.Hour

	if cfg.RateLimitPerMinute, err = envInt("RATE_LIMIT_PER_MINUTE", 20); err != nil {
		result = multierror.Append(result, err)
	}

	switch StorePrivilege(strings.ToLower(envOrDefault("STORE_KEY_PRIVILEGE", string(PrivilegeService)))) {
	case PrivilegeService:
		cfg.StorePrivilege = PrivilegeService
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			result = multierror.Append(result, errors.New("DATABASE_URL environment variable is required"))
		}
	case PrivilegeAnon:
		cfg.StorePrivilege = PrivilegeAnon
		cfg.DatabaseURL = os.Getenv("DATABASE_ANON_URL")
		if cfg.DatabaseURL == "" {
			result = multierror.Append(result, errors.New("DATABASE_ANON_URL environment variable is required when STORE_KEY_PRIVILEGE=anon"))
		}
	default:
		result = multierror.Append(result, errors.New("STORE_KEY_PRIVILEGE must be 'service' or 'anon'"))
	}

	cfg.Prices = loadPrices()
	if len(cfg.Prices) == 0 {
		result = multierror.Append(result, errors.New("at least one STRIPE_PRICE_<TIER>_<CYCLE> environment variable is required"))
	}

	switch cfg.EmailService {
	case "none":
	case "sendgrid":
		if cfg.SendgridAPIKey == "" {
			result = multierror.Append(result, errors.New("SENDGRID_API_KEY environment variable is required when using SendGrid"))
		}
	case "smtp":
		if cfg.SMTPHost == "" || cfg.SMTPPort == "" || cfg.SMTPUsername == "" || cfg.SMTPPassword == "" {
			result = multierror.Append(result, errors.New("SMTP_HOST, SMTP_PORT, SMTP_USERNAME, and SMTP_PASSWORD environment variables are required when using SMTP"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("EMAIL_SERVICE %q is not supported", cfg.EmailService))
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadPrices reads STRIPE_PRICE_<TIER>_<CYCLE>, falling back to the legacy
// STRIPE_<SOLO|TEAM|BUSINESS>_<CYCLE> names.
func loadPrices() map[models.Tier]map[models.BillingCycle]string {
	prices := make(map[models.Tier]map[models.BillingCycle]string)
	for _, tier := range models.Tiers {
		for _, cycle := range models.BillingCycles {
			suffix := strings.ToUpper(string(cycle))
			priceID := os.Getenv(fmt.Sprintf("STRIPE_PRICE_%s_%s", strings.ToUpper(string(tier)), suffix))
			if priceID == "" {
				priceID = os.Getenv(fmt.Sprintf("STRIPE_%s_%s", legacyTierNames[tier], suffix))
			}
			if priceID == "" {
				continue
			}
			if prices[tier] == nil {
				prices[tier] = make(map[models.BillingCycle]string)
			}
			prices[tier][cycle] = priceID
		}
	}
	return prices
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func envSeconds(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number of seconds: %w", key, err)
	}
	return time.Duration(seconds) * time.Second, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
