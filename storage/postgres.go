package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"nxtrix.com/founders/models"
)

const pgUniqueViolation = "23505"

// PostgresStorage backs the store with a hosted Postgres database.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open sql db: %w", err)
	}
	if err := migrateUp(sqlDB, "postgres"); err != nil {
		sqlDB.Close()
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

func (p *PostgresStorage) findOne(ctx context.Context, column, value string) (*models.CustomerRecord, error) {
	if value == "" {
		return nil, nil
	}
	query := `SELECT id::text, email, name, company, investor_type, experience, tier, billing_cycle, price_id,
       setup_intent_id, stripe_customer_id, subscription_id, payment_method_id, payment_status, trial_end, created_at, updated_at
FROM founder_customers
WHERE ` + column + ` = $1
LIMIT 1`

	var record models.CustomerRecord
	var tier, billing, status string
	err := p.pool.QueryRow(ctx, query, value).Scan(
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
		&record.TrialEnd,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer by %s: %w", column, err)
	}

	record.Tier = models.Tier(tier)
	record.BillingCycle = models.BillingCycle(billing)
	record.PaymentStatus = models.PaymentStatus(status)
	return &record, nil
}

func (p *PostgresStorage) FindCustomerByEmail(ctx context.Context, email string) (*models.CustomerRecord, error) {
	return p.findOne(ctx, "email", models.NormalizeEmail(email))
}

func (p *PostgresStorage) FindCustomerBySetupIntent(ctx context.Context, setupIntentID string) (*models.CustomerRecord, error) {
	return p.findOne(ctx, "setup_intent_id", setupIntentID)
}

func (p *PostgresStorage) FindCustomerByStripeCustomer(ctx context.Context, stripeCustomerID string) (*models.CustomerRecord, error) {
	return p.findOne(ctx, "stripe_customer_id", stripeCustomerID)
}

func (p *PostgresStorage) InsertCustomer(ctx context.Context, record *models.CustomerRecord) error {
	const q = `
INSERT INTO founder_customers (
    id, email, name, company, investor_type, experience, tier, billing_cycle, price_id,
    setup_intent_id, stripe_customer_id, subscription_id, payment_method_id, payment_status, trial_end, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	record.Email = models.NormalizeEmail(record.Email)
	_, err := p.pool.Exec(ctx, q,
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
		record.TrialEnd,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

func (p *PostgresStorage) updateWhere(ctx context.Context, column, value string, update models.SubscriptionUpdate) error {
	if value == "" {
		return ErrNoRows
	}
	query := `UPDATE founder_customers
SET stripe_customer_id = $1, subscription_id = $2, payment_method_id = $3, payment_status = $4, trial_end = $5, updated_at = $6
WHERE ` + column + ` = $7`

	tag, err := p.pool.Exec(ctx, query,
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
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

func (p *PostgresStorage) UpdateBySetupIntent(ctx context.Context, setupIntentID string, update models.SubscriptionUpdate) error {
	return p.updateWhere(ctx, "setup_intent_id", setupIntentID, update)
}

func (p *PostgresStorage) UpdateByStripeCustomer(ctx context.Context, stripeCustomerID string, update models.SubscriptionUpdate) error {
	return p.updateWhere(ctx, "stripe_customer_id", stripeCustomerID, update)
}

func (p *PostgresStorage) ReserveTrialEnd(ctx context.Context, setupIntentID string, trialEnd time.Time) (time.Time, error) {
	if setupIntentID == "" {
		return time.Time{}, ErrNoRows
	}
	const q = `
UPDATE founder_customers SET trial_end = COALESCE(trial_end, $1)
WHERE setup_intent_id = $2
RETURNING trial_end`

	var stored time.Time
	err := p.pool.QueryRow(ctx, q, trialEnd.UTC(), setupIntentID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNoRows
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to reserve trial end: %w", err)
	}
	return stored.UTC(), nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}
