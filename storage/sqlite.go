package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"nxtrix.com/founders/models"
)

const customerColumns = `id, email, name, company, investor_type, experience, tier, billing_cycle, price_id,
setup_intent_id, stripe_customer_id, subscription_id, payment_method_id, payment_status, trial_end, created_at, updated_at`

type SQLiteStorage struct {
	db   *sql.DB
	path string
}

func NewSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}

	// golang-migrate closes the handle it is given.
	migrationDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrateUp(migrationDB, "sqlite"); err != nil {
		migrationDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{db: db, path: path}, nil
}

func (s *SQLiteStorage) findOne(ctx context.Context, column, value string) (*models.CustomerRecord, error) {
	if value == "" {
		return nil, nil
	}
	query := `SELECT ` + customerColumns + ` FROM founder_customers WHERE ` + column + ` = ? LIMIT 1`

	var record models.CustomerRecord
	var tier, billing, status string
	var trialEnd sql.NullTime
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&record.ID,
		&record.Email,
		&record.Name,
		&record.Company,
		&record.InvestorType,
		&record.Experience,
		&tier,
		&billing,
		&record.PriceID,
		&record.SetupIntentID,
		&record.StripeCustomerID,
		&record.SubscriptionID,
		&record.PaymentMethodID,
		&status,
		&trialEnd,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer by %s: %w", column, err)
	}

	record.Tier = models.Tier(tier)
	record.BillingCycle = models.BillingCycle(billing)
	record.PaymentStatus = models.PaymentStatus(status)
	if trialEnd.Valid {
		t := trialEnd.Time
		record.TrialEnd = &t
	}
	return &record, nil
}

func (s *SQLiteStorage) FindCustomerByEmail(ctx context.Context, email string) (*models.CustomerRecord, error) {
	return s.findOne(ctx, "email", models.NormalizeEmail(email))
}

func (s *SQLiteStorage) FindCustomerBySetupIntent(ctx context.Context, setupIntentID string) (*models.CustomerRecord, error) {
	return s.findOne(ctx, "setup_intent_id", setupIntentID)
}

func (s *SQLiteStorage) FindCustomerByStripeCustomer(ctx context.Context, stripeCustomerID string) (*models.CustomerRecord, error) {
	return s.findOne(ctx, "stripe_customer_id", stripeCustomerID)
}

func (s *SQLiteStorage) InsertCustomer(ctx context.Context, record *models.CustomerRecord) error {
	query := `INSERT INTO founder_customers (` + customerColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	record.Email = models.NormalizeEmail(record.Email)
	var trialEnd sql.NullTime
	if record.TrialEnd != nil {
		trialEnd = sql.NullTime{Time: *record.TrialEnd, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Email,
		record.Name,
		record.Company,
		record.InvestorType,
		record.Experience,
		string(record.Tier),
		string(record.BillingCycle),
		record.PriceID,
		record.SetupIntentID,
		record.StripeCustomerID,
		record.SubscriptionID,
		record.PaymentMethodID,
		string(record.PaymentStatus),
		trialEnd,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) updateWhere(ctx context.Context, column, value string, update models.SubscriptionUpdate) error {
	if value == "" {
		return ErrNoRows
	}
	query := `UPDATE founder_customers
SET stripe_customer_id = ?, subscription_id = ?, payment_method_id = ?, payment_status = ?, trial_end = ?, updated_at = ?
WHERE ` + column + ` = ?`

	result, err := s.db.ExecContext(ctx, query,
		update.StripeCustomerID,
		update.SubscriptionID,
		update.PaymentMethodID,
		string(update.PaymentStatus),
		update.TrialEnd,
		update.UpdatedAt,
		value,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer by %s: %w", column, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

func (s *SQLiteStorage) UpdateBySetupIntent(ctx context.Context, setupIntentID string, update models.SubscriptionUpdate) error {
	return s.updateWhere(ctx, "setup_intent_id", setupIntentID, update)
}

func (s *SQLiteStorage) UpdateByStripeCustomer(ctx context.Context, stripeCustomerID string, update models.SubscriptionUpdate) error {
	return s.updateWhere(ctx, "stripe_customer_id", stripeCustomerID, update)
}

func (s *SQLiteStorage) ReserveTrialEnd(ctx context.Context, setupIntentID string, trialEnd time.Time) (time.Time, error) {
	if setupIntentID == "" {
		return time.Time{}, ErrNoRows
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE founder_customers SET trial_end = ? WHERE setup_intent_id = ? AND trial_end IS NULL`,
		trialEnd.UTC(), setupIntentID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to reserve trial end: %w", err)
	}

	record, err := s.FindCustomerBySetupIntent(ctx, setupIntentID)
	if err != nil {
		return time.Time{}, err
	}
	if record == nil || record.TrialEnd == nil {
		return time.Time{}, ErrNoRows
	}
	return record.TrialEnd.UTC(), nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
