// Package memory provides an in-memory implementation of the transaction
// store. It is the development and test driver; per-record mutexes give the
// same atomic read-modify-write semantics as the PostgreSQL row lock.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
)

type entry struct {
	mu  sync.Mutex
	rec *transaction.Record
}

// TransactionStore implements transaction.Store backed by a map. The outer
// RWMutex guards the map itself; each entry carries its own mutex so updates
// to different references never block each other.
type TransactionStore struct {
	mu      sync.RWMutex
	records map[string]*entry
}

// NewTransactionStore creates an empty in-memory transaction store
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{records: make(map[string]*entry)}
}

// Create stores a new record. Returns ErrDuplicateReference if the reference
// already exists.
func (s *TransactionStore) Create(_ context.Context, rec *transaction.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.Reference]; exists {
		return transaction.ErrDuplicateReference{Reference: rec.Reference}
	}
	s.records[rec.Reference] = &entry{rec: rec.Clone()}
	return nil
}

// GetByReference retrieves a record copy by its reference
func (s *TransactionStore) GetByReference(_ context.Context, reference string) (*transaction.Record, error) {
	s.mu.RLock()
	e, exists := s.records[reference]
	s.mu.RUnlock()

	if !exists {
		return nil, transaction.ErrNotFound{Reference: reference}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

// GetByCheckoutID retrieves the record correlated to a gateway checkout
// request ID. Returns nil, nil when no record matches.
func (s *TransactionStore) GetByCheckoutID(ctx context.Context, checkoutRequestID string) (*transaction.Record, error) {
	if checkoutRequestID == "" {
		return nil, nil
	}
	return s.findOne(func(rec *transaction.Record) bool {
		return rec.CheckoutRequestID == checkoutRequestID
	}), nil
}

// GetByGatewayRef retrieves the record correlated to the secondary gateway
// reference. Returns nil, nil when no record matches.
func (s *TransactionStore) GetByGatewayRef(ctx context.Context, gatewayRef string) (*transaction.Record, error) {
	if gatewayRef == "" {
		return nil, nil
	}
	return s.findOne(func(rec *transaction.Record) bool {
		return rec.GatewayRef == gatewayRef
	}), nil
}

// FindOpenByPhoneAmount retrieves the most recently created non-terminal
// record matching phone and amount. Returns nil, nil when none matches.
func (s *TransactionStore) FindOpenByPhoneAmount(_ context.Context, phone string, amount int64) (*transaction.Record, error) {
	var best *transaction.Record
	s.scan(func(rec *transaction.Record) {
		if rec.Phone != phone || rec.Amount != amount || rec.State.Terminal() {
			return
		}
		if best == nil || rec.CreatedAt.After(best.CreatedAt) {
			best = rec
		}
	})
	return best, nil
}

// ListByState retrieves a snapshot of every record in the given state
func (s *TransactionStore) ListByState(_ context.Context, state transaction.State) ([]*transaction.Record, error) {
	var out []*transaction.Record
	s.scan(func(rec *transaction.Record) {
		if rec.State == state {
			out = append(out, rec)
		}
	})
	sortNewestFirst(out)
	return out, nil
}

// List retrieves a snapshot of every record, newest first
func (s *TransactionStore) List(_ context.Context) ([]*transaction.Record, error) {
	var out []*transaction.Record
	s.scan(func(rec *transaction.Record) {
		out = append(out, rec)
	})
	sortNewestFirst(out)
	return out, nil
}

// Update applies fn to the record under its per-reference lock. fn returning
// an error aborts the update and leaves the stored record untouched.
func (s *TransactionStore) Update(_ context.Context, reference string, fn func(*transaction.Record) error) (*transaction.Record, error) {
	s.mu.RLock()
	e, exists := s.records[reference]
	s.mu.RUnlock()

	if !exists {
		return nil, transaction.ErrNotFound{Reference: reference}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.rec.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	e.rec = working
	return working.Clone(), nil
}

func (s *TransactionStore) findOne(match func(*transaction.Record) bool) *transaction.Record {
	var found *transaction.Record
	s.scan(func(rec *transaction.Record) {
		if found == nil && match(rec) {
			found = rec
		}
	})
	return found
}

// scan visits a cloned snapshot of every record
func (s *TransactionStore) scan(visit func(*transaction.Record)) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		rec := e.rec.Clone()
		e.mu.Unlock()
		visit(rec)
	}
}

func sortNewestFirst(recs []*transaction.Record) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
