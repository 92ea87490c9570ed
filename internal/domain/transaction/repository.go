package transaction

import "context"

// Store manages transaction record persistence. Implementations must make
// Update a per-reference atomic read-modify-write: concurrent updates to one
// reference serialize, updates to different references never block each other.
type Store interface {
	// Create stores a new record. Returns ErrDuplicateReference if the
	// reference already exists.
	Create(ctx context.Context, rec *Record) error

	// GetByReference retrieves a record by its reference.
	// Returns ErrNotFound if no record exists.
	GetByReference(ctx context.Context, reference string) (*Record, error)

	// GetByCheckoutID retrieves the record correlated to a gateway checkout
	// request ID. Returns nil, nil when no record matches.
	GetByCheckoutID(ctx context.Context, checkoutRequestID string) (*Record, error)

	// GetByGatewayRef retrieves the record correlated to the secondary
	// gateway reference. Returns nil, nil when no record matches.
	GetByGatewayRef(ctx context.Context, gatewayRef string) (*Record, error)

	// FindOpenByPhoneAmount retrieves the most recently created non-terminal
	// record matching phone and amount. Returns nil, nil when none matches.
	FindOpenByPhoneAmount(ctx context.Context, phone string, amount int64) (*Record, error)

	// ListByState retrieves every record currently in the given state.
	// The result is a consistent snapshot, not a locked view.
	ListByState(ctx context.Context, state State) ([]*Record, error)

	// List retrieves every record, newest first
	List(ctx context.Context) ([]*Record, error)

	// Update applies fn to the current record under a per-reference lock and
	// persists the result. fn returning an error aborts the update. Returns
	// the updated record, or ErrNotFound if the reference is unknown.
	Update(ctx context.Context, reference string, fn func(*Record) error) (*Record, error)
}

// ErrNotFound indicates an unknown transaction reference
type ErrNotFound struct {
	Reference string
}

func (e ErrNotFound) Error() string {
	return "transaction not found: " + e.Reference
}

// Is implements the errors.Is interface for ErrNotFound
func (e ErrNotFound) Is(target error) bool {
	t, ok := target.(ErrNotFound)
	if !ok {
		return false
	}
	// An empty target Reference matches any ErrNotFound
	if t.Reference == "" {
		return true
	}
	return e.Reference == t.Reference
}

// ErrDuplicateReference indicates a reference uniqueness violation
type ErrDuplicateReference struct {
	Reference string
}

func (e ErrDuplicateReference) Error() string {
	return "duplicate transaction reference: " + e.Reference
}
