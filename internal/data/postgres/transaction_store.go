// Package postgres provides the PostgreSQL implementation of the transaction
// store. Per-reference atomicity comes from a row lock: Update runs inside a
// database transaction that selects the row FOR UPDATE, so concurrent writers
// to one reference serialize while other references stay untouched.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
	"github.com/pesabridge/payment-broker/internal/platform/persistence"
)

// DB combines plain queries with transaction support. *pgxpool.Pool and the
// pgxmock pool both satisfy it.
type DB interface {
	persistence.Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TransactionStore implements the transaction.Store interface for PostgreSQL
type TransactionStore struct {
	db     DB
	logger *slog.Logger
}

// NewTransactionStore creates a new PostgreSQL transaction store
func NewTransactionStore(logger *slog.Logger, db DB) transaction.Store {
	return &TransactionStore{
		db:     db,
		logger: logger,
	}
}

const recordColumns = `reference, checkout_request_id, gateway_ref, phone, amount, state, detail, created_at, updated_at, confirmed_at, log`

// Create stores a new record. A primary key violation maps to
// ErrDuplicateReference.
func (s *TransactionStore) Create(ctx context.Context, rec *transaction.Record) error {
	query := `
		INSERT INTO transactions (reference, checkout_request_id, gateway_ref, phone, amount, state, detail, created_at, updated_at, confirmed_at, log)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (reference) DO NOTHING
	`

	tag, err := s.db.Exec(ctx, query,
		rec.Reference,
		rec.CheckoutRequestID,
		rec.GatewayRef,
		rec.Phone,
		rec.Amount,
		rec.State,
		rec.Detail,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.ConfirmedAt,
		rec.Log,
	)
	if err != nil {
		s.logger.Error("Failed to create transaction", "reference", rec.Reference, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return transaction.ErrDuplicateReference{Reference: rec.Reference}
	}

	return nil
}

// GetByReference retrieves a record by its reference
func (s *TransactionStore) GetByReference(ctx context.Context, reference string) (*transaction.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transactions
		WHERE reference = $1
	`

	rec, err := scanRecord(s.db.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrNotFound{Reference: reference}
		}
		s.logger.Error("Failed to get transaction", "reference", reference, "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return rec, nil
}

// GetByCheckoutID retrieves the record correlated to a gateway checkout
// request ID. Returns nil, nil when no record matches.
func (s *TransactionStore) GetByCheckoutID(ctx context.Context, checkoutRequestID string) (*transaction.Record, error) {
	if checkoutRequestID == "" {
		return nil, nil
	}
	query := `
		SELECT ` + recordColumns + `
		FROM transactions
		WHERE checkout_request_id = $1
		LIMIT 1
	`
	return s.getOptional(ctx, query, checkoutRequestID)
}

// GetByGatewayRef retrieves the record correlated to the secondary gateway
// reference. Returns nil, nil when no record matches.
func (s *TransactionStore) GetByGatewayRef(ctx context.Context, gatewayRef string) (*transaction.Record, error) {
	if gatewayRef == "" {
		return nil, nil
	}
	query := `
		SELECT ` + recordColumns + `
		FROM transactions
		WHERE gateway_ref = $1
		LIMIT 1
	`
	return s.getOptional(ctx, query, gatewayRef)
}

// FindOpenByPhoneAmount retrieves the most recently created non-terminal
// record matching phone and amount. Returns nil, nil when none matches.
func (s *TransactionStore) FindOpenByPhoneAmount(ctx context.Context, phone string, amount int64) (*transaction.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transactions
		WHERE phone = $1 AND amount = $2 AND state NOT IN ($3, $4)
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.getOptional(ctx, query, phone, amount, transaction.StateFailed, transaction.StateReleased)
}

// ListByState retrieves every record in the given state, newest first
func (s *TransactionStore) ListByState(ctx context.Context, state transaction.State) ([]*transaction.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transactions
		WHERE state = $1
		ORDER BY created_at DESC
	`
	return s.list(ctx, query, state)
}

// List retrieves every record, newest first
func (s *TransactionStore) List(ctx context.Context) ([]*transaction.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transactions
		ORDER BY created_at DESC
	`
	return s.list(ctx, query)
}

// Update applies fn to the row under a FOR UPDATE lock and writes back the
// result. fn returning an error rolls the database transaction back.
func (s *TransactionStore) Update(ctx context.Context, reference string, fn func(*transaction.Record) error) (*transaction.Record, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback is a no-op once the transaction committed
		_ = tx.Rollback(ctx)
	}()

	lockQuery := `
		SELECT ` + recordColumns + `
		FROM transactions
		WHERE reference = $1
		FOR UPDATE
	`

	rec, err := scanRecord(tx.QueryRow(ctx, lockQuery, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrNotFound{Reference: reference}
		}
		s.logger.Error("Failed to lock transaction for update", "reference", reference, "error", err)
		return nil, fmt.Errorf("failed to lock transaction for update: %w", err)
	}

	if err := fn(rec); err != nil {
		return nil, err
	}

	writeQuery := `
		UPDATE transactions
		SET checkout_request_id = $1, gateway_ref = $2, state = $3, detail = $4, updated_at = $5, confirmed_at = $6, log = $7
		WHERE reference = $8
	`

	_, err = tx.Exec(ctx, writeQuery,
		rec.CheckoutRequestID,
		rec.GatewayRef,
		rec.State,
		rec.Detail,
		rec.UpdatedAt,
		rec.ConfirmedAt,
		rec.Log,
		rec.Reference,
	)
	if err != nil {
		s.logger.Error("Failed to write transaction update", "reference", reference, "error", err)
		return nil, fmt.Errorf("failed to write transaction update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction update: %w", err)
	}

	return rec, nil
}

func (s *TransactionStore) getOptional(ctx context.Context, query string, args ...interface{}) (*transaction.Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.logger.Error("Failed to look up transaction", "error", err)
		return nil, fmt.Errorf("failed to look up transaction: %w", err)
	}
	return rec, nil
}

func (s *TransactionStore) list(ctx context.Context, query string, args ...interface{}) ([]*transaction.Record, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("Failed to list transactions", "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var records []*transaction.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transaction rows: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*transaction.Record, error) {
	var rec transaction.Record
	err := row.Scan(
		&rec.Reference,
		&rec.CheckoutRequestID,
		&rec.GatewayRef,
		&rec.Phone,
		&rec.Amount,
		&rec.State,
		&rec.Detail,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ConfirmedAt,
		&rec.Log,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
