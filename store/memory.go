package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	quotes      map[string]QuoteRecord
	refunds     map[string][]RefundRecord // by booking ID, append order
	idempotency map[string]bool
	rateCard    *RateCardRecord
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		quotes:      make(map[string]QuoteRecord),
		refunds:     make(map[string][]RefundRecord),
		idempotency: make(map[string]bool),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) SaveQuote(_ context.Context, q QuoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.quotes[q.BookingID]; ok {
		return ErrDuplicateBooking
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = m.now()
	}
	q.Passengers = append([]string(nil), q.Passengers...)
	m.quotes[q.BookingID] = q
	return nil
}

func (m *Memory) GetQuote(_ context.Context, bookingID string) (*QuoteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quotes[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	q.Passengers = append([]string(nil), q.Passengers...)
	return &q, nil
}

// AppendRefund adds a booking's refund. Append-only, once per booking.
func (m *Memory) AppendRefund(_ context.Context, r RefundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.IdempotencyKey != "" && m.idempotency[r.IdempotencyKey] {
		return ErrDuplicateIdempotencyKey
	}
	if len(m.refunds[r.BookingID]) > 0 {
		return ErrBookingAlreadyRefunded
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	}
	m.refunds[r.BookingID] = append(m.refunds[r.BookingID], r)
	if r.IdempotencyKey != "" {
		m.idempotency[r.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) ListRefunds(_ context.Context, bookingID string) ([]RefundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]RefundRecord, len(m.refunds[bookingID]))
	copy(result, m.refunds[bookingID])
	return result, nil
}

func (m *Memory) SaveRateCard(_ context.Context, document string) (*RateCardRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	version := 1
	if m.rateCard != nil {
		version = m.rateCard.Version + 1
	}
	m.rateCard = &RateCardRecord{Document: document, Version: version, UpdatedAt: m.now()}
	rc := *m.rateCard
	return &rc, nil
}

func (m *Memory) LoadRateCard(_ context.Context) (*RateCardRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.rateCard == nil {
		return nil, ErrNotFound
	}
	rc := *m.rateCard
	return &rc, nil
}
