/*
Package sqlite provides a SQLite-backed implementation of store.Store.

PURPOSE:
  Keeps priced quotes, refund decisions and rate card versions. The same
  schema works on PostgreSQL with minor dialect changes.

APPEND-ONLY ENFORCEMENT:
  - quotes:             one row per booking, never updated
  - refunds:            no UPDATE or DELETE statements; one row per booking
  - rate_card_versions: every save is a new row; the latest version wins

KEY TABLES:
  quotes:             Breakdown JSON stored verbatim, keyed by booking ID
  refunds:            Refund results with a unique idempotency key
  rate_card_versions: Rate card documents in factory JSON form

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to a
  single connection so every query sees the same data.

WAL MODE:
  Opened with WAL (Write-Ahead Logging): readers don't block and a single
  writer runs at a time.

USAGE:
  st, err := sqlite.New("./data/fares.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

SEE ALSO:
  - store/store.go: Interface and records
  - store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/fare-engine/pricing"
	"github.com/warp/fare-engine/refund"
	"github.com/warp/fare-engine/store"
)

const timeLayout = time.RFC3339Nano

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ store.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Quotes (one per booking, breakdown kept verbatim)
	CREATE TABLE IF NOT EXISTS quotes (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL UNIQUE,
		gateway TEXT NOT NULL,
		age_rules TEXT NOT NULL,
		passengers_json TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		total_cents INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Refunds (append-only)
	CREATE TABLE IF NOT EXISTS refunds (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		is_airline_cancel INTEGER NOT NULL,
		hours_since_payment REAL NOT NULL,
		rule TEXT NOT NULL,
		refund_cents INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_refunds_booking_once
		ON refunds(booking_id);

	-- Rate card history (latest version is current)
	CREATE TABLE IF NOT EXISTS rate_card_versions (
		version INTEGER PRIMARY KEY,
		document TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUOTES
// =============================================================================

// SaveQuote stores a quote once per booking.
func (s *Store) SaveQuote(ctx context.Context, q store.QuoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	passengersJSON, err := json.Marshal(q.Passengers)
	if err != nil {
		return fmt.Errorf("failed to encode passengers: %w", err)
	}
	breakdownJSON, err := json.Marshal(q.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to encode breakdown: %w", err)
	}

	query := `
		INSERT INTO quotes
		(id, booking_id, gateway, age_rules, passengers_json, breakdown_json, total_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		q.ID,
		q.BookingID,
		q.Gateway,
		q.AgeRules,
		string(passengersJSON),
		string(breakdownJSON),
		q.Breakdown.TotalAmount.Cents,
		q.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return store.ErrDuplicateBooking
		}
		return fmt.Errorf("failed to save quote: %w", err)
	}
	return nil
}

// GetQuote retrieves a booking's quote.
func (s *Store) GetQuote(ctx context.Context, bookingID string) (*store.QuoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var q store.QuoteRecord
	var passengersJSON, breakdownJSON, createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, booking_id, gateway, age_rules, passengers_json, breakdown_json, created_at FROM quotes WHERE booking_id = ?",
		bookingID,
	).Scan(&q.ID, &q.BookingID, &q.Gateway, &q.AgeRules, &passengersJSON, &breakdownJSON, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quote: %w", err)
	}

	if err := json.Unmarshal([]byte(passengersJSON), &q.Passengers); err != nil {
		return nil, fmt.Errorf("corrupt passengers for booking %s: %w", bookingID, err)
	}
	var breakdown pricing.PriceBreakdown
	if err := json.Unmarshal([]byte(breakdownJSON), &breakdown); err != nil {
		return nil, fmt.Errorf("corrupt breakdown for booking %s: %w", bookingID, err)
	}
	q.Breakdown = breakdown
	q.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &q, nil
}

// =============================================================================
// REFUNDS (append-only)
// =============================================================================

// AppendRefund adds a refund decision.
func (s *Store) AppendRefund(ctx context.Context, r store.RefundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	resultJSON, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("failed to encode refund: %w", err)
	}

	query := `
		INSERT INTO refunds
		(id, booking_id, idempotency_key, is_airline_cancel, hours_since_payment,
		 rule, refund_cents, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		r.BookingID,
		nullString(r.IdempotencyKey),
		r.IsAirlineCancel,
		r.HoursSincePayment,
		string(r.Result.Rule),
		r.Result.RefundAmount.Cents,
		string(resultJSON),
		r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return s.refundConflict(ctx, r)
		}
		return fmt.Errorf("failed to append refund: %w", err)
	}
	return nil
}

// refundConflict tells a reused idempotency key from a second refund for
// the same booking. Called with s.mu held.
func (s *Store) refundConflict(ctx context.Context, r store.RefundRecord) error {
	if r.IdempotencyKey != "" {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM refunds WHERE idempotency_key = ?", r.IdempotencyKey,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("failed to check refund conflict: %w", err)
		}
		if n > 0 {
			return store.ErrDuplicateIdempotencyKey
		}
	}
	return store.ErrBookingAlreadyRefunded
}

// ListRefunds returns a booking's refunds in the order they were recorded.
func (s *Store) ListRefunds(ctx context.Context, bookingID string) ([]store.RefundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, booking_id, idempotency_key, is_airline_cancel, hours_since_payment, result_json, created_at
		FROM refunds
		WHERE booking_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query refunds: %w", err)
	}
	defer rows.Close()

	refunds := []store.RefundRecord{}
	for rows.Next() {
		var r store.RefundRecord
		var key sql.NullString
		var resultJSON, createdAt string
		if err := rows.Scan(&r.ID, &r.BookingID, &key, &r.IsAirlineCancel, &r.HoursSincePayment, &resultJSON, &createdAt); err != nil {
			return nil, err
		}
		var result refund.Result
		if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
			return nil, fmt.Errorf("corrupt refund %s: %w", r.ID, err)
		}
		r.Result = result
		r.IdempotencyKey = key.String
		r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}

// =============================================================================
// RATE CARD
// =============================================================================

// SaveRateCard appends a new rate card version.
func (s *Store) SaveRateCard(ctx context.Context, document string) (*store.RateCardRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_card_versions (version, document, created_at)
		 VALUES ((SELECT COALESCE(MAX(version), 0) + 1 FROM rate_card_versions), ?, ?)`,
		document, now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save rate card: %w", err)
	}
	version, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &store.RateCardRecord{Document: document, Version: int(version), UpdatedAt: now}, nil
}

// LoadRateCard returns the latest rate card version.
func (s *Store) LoadRateCard(ctx context.Context) (*store.RateCardRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rc store.RateCardRecord
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT version, document, created_at FROM rate_card_versions ORDER BY version DESC LIMIT 1",
	).Scan(&rc.Version, &rc.Document, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rate card: %w", err)
	}
	rc.UpdatedAt, _ = time.Parse(timeLayout, createdAt)
	return &rc, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
