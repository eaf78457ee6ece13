package storage

import (
	"context"
	"sync"
	"time"

	"nxtrix.com/founders/models"
)

type MemoryStorage struct {
	mu   sync.RWMutex
	Data map[string]models.CustomerRecord // by record id
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{Data: make(map[string]models.CustomerRecord)}
}

func (m *MemoryStorage) find(match func(models.CustomerRecord) bool) *models.CustomerRecord {
	for _, record := range m.Data {
		if match(record) {
			found := record
			return &found
		}
	}
	return nil
}

func (m *MemoryStorage) FindCustomerByEmail(ctx context.Context, email string) (*models.CustomerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = models.NormalizeEmail(email)
	return m.find(func(r models.CustomerRecord) bool { return r.Email == email }), nil
}

func (m *MemoryStorage) FindCustomerBySetupIntent(ctx context.Context, setupIntentID string) (*models.CustomerRecord, error) {
	if setupIntentID == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.find(func(r models.CustomerRecord) bool { return r.SetupIntentID == setupIntentID }), nil
}

func (m *MemoryStorage) FindCustomerByStripeCustomer(ctx context.Context, stripeCustomerID string) (*models.CustomerRecord, error) {
	if stripeCustomerID == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.find(func(r models.CustomerRecord) bool { return r.StripeCustomerID == stripeCustomerID }), nil
}

func (m *MemoryStorage) InsertCustomer(ctx context.Context, record *models.CustomerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.Email = models.NormalizeEmail(record.Email)
	if m.find(func(r models.CustomerRecord) bool { return r.Email == record.Email }) != nil {
		return ErrAlreadyExists
	}
	if _, exists := m.Data[record.ID]; exists {
		return ErrAlreadyExists
	}
	m.Data[record.ID] = *record
	return nil
}

func (m *MemoryStorage) update(match func(models.CustomerRecord) bool, update models.SubscriptionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := 0
	for id, record := range m.Data {
		if !match(record) {
			continue
		}
		update.Apply(&record)
		m.Data[id] = record
		matched++
	}
	if matched == 0 {
		return ErrNoRows
	}
	return nil
}

func (m *MemoryStorage) UpdateBySetupIntent(ctx context.Context, setupIntentID string, update models.SubscriptionUpdate) error {
	if setupIntentID == "" {
		return ErrNoRows
	}
	return m.update(func(r models.CustomerRecord) bool { return r.SetupIntentID == setupIntentID }, update)
}

func (m *MemoryStorage) UpdateByStripeCustomer(ctx context.Context, stripeCustomerID string, update models.SubscriptionUpdate) error {
	if stripeCustomerID == "" {
		return ErrNoRows
	}
	return m.update(func(r models.CustomerRecord) bool { return r.StripeCustomerID == stripeCustomerID }, update)
}

func (m *MemoryStorage) ReserveTrialEnd(ctx context.Context, setupIntentID string, trialEnd time.Time) (time.Time, error) {
	if setupIntentID == "" {
		return time.Time{}, ErrNoRows
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, record := range m.Data {
		if record.SetupIntentID != setupIntentID {
			continue
		}
		if record.TrialEnd == nil {
			t := trialEnd.UTC()
			record.TrialEnd = &t
			m.Data[id] = record
		}
		return record.TrialEnd.UTC(), nil
	}
	return time.Time{}, ErrNoRows
}

// Len reports the number of stored records.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Data)
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
