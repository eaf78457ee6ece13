package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nxtrix.com/founders/models"
)

var (
	// ErrAlreadyExists is returned when a record with the same email exists.
	ErrAlreadyExists = errors.New("customer record already exists")
	// ErrNoRows is returned when an update matched no record.
	ErrNoRows = errors.New("no customer record matched")
)

// Storage persists founders signups. Finders return (nil, nil) when nothing
// matches.
type Storage interface {
	FindCustomerByEmail(ctx context.Context, email string) (*models.CustomerRecord, error)
	FindCustomerBySetupIntent(ctx context.Context, setupIntentID string) (*models.CustomerRecord, error)
	FindCustomerByStripeCustomer(ctx context.Context, stripeCustomerID string) (*models.CustomerRecord, error)

	InsertCustomer(ctx context.Context, record *models.CustomerRecord) error
	UpdateBySetupIntent(ctx context.Context, setupIntentID string, update models.SubscriptionUpdate) error
	UpdateByStripeCustomer(ctx context.Context, stripeCustomerID string, update models.SubscriptionUpdate) error

	// ReserveTrialEnd stores trialEnd on the record for setupIntentID unless
	// one is already stored, and returns the stored value. ErrNoRows when no
	// record matches.
	ReserveTrialEnd(ctx context.Context, setupIntentID string, trialEnd time.Time) (time.Time, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open picks a backend from the URL scheme: "memory", "sqlite://<path>" or
// "postgres://...".
func Open(ctx context.Context, url string) (Storage, error) {
	switch {
	case url == "memory" || url == "memory://":
		return NewMemoryStorage(), nil
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteStorage(ctx, strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStorage(ctx, url)
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %q", redactURL(url))
	}
}

func redactURL(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i+3] + "..."
	}
	return "..."
}
