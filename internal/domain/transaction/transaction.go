// Package transaction defines the brokered payment record, its state machine,
// and the persistence contracts the reconciliation engine relies on.
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAmount indicates a payment amount below the minimum of 1
var ErrInvalidAmount = errors.New("amount must be at least 1")

// GatewayDetail carries the gateway-reported facts about a payment. Each field
// is independently nullable and filled in incrementally as information arrives
// from either reconciliation channel.
type GatewayDetail struct {
	ReceiptNumber   *string `json:"receipt_number,omitempty" bson:"receipt_number,omitempty"`
	TransactionCode *string `json:"transaction_code,omitempty" bson:"transaction_code,omitempty"`
	PayerName       *string `json:"payer_name,omitempty" bson:"payer_name,omitempty"`
	ErrorCode       *string `json:"error_code,omitempty" bson:"error_code,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

// Merge fills d from in monotonically: an incoming non-nil value overwrites,
// an incoming nil never clears an existing value. Returns true when any field
// changed.
func (d *GatewayDetail) Merge(in GatewayDetail) bool {
	changed := false
	changed = mergeField(&d.ReceiptNumber, in.ReceiptNumber) || changed
	changed = mergeField(&d.TransactionCode, in.TransactionCode) || changed
	changed = mergeField(&d.PayerName, in.PayerName) || changed
	changed = mergeField(&d.ErrorCode, in.ErrorCode) || changed
	changed = mergeField(&d.ErrorMessage, in.ErrorMessage) || changed
	return changed
}

func mergeField(dst **string, src *string) bool {
	if src == nil {
		return false
	}
	if *dst != nil && **dst == *src {
		return false
	}
	v := *src
	*dst = &v
	return true
}

// LogEntry is one element of a record's append-only audit log
type LogEntry struct {
	At   time.Time       `json:"at" bson:"at"`
	Note string          `json:"note" bson:"note"`
	Raw  json.RawMessage `json:"raw,omitempty" bson:"raw,omitempty"`
}

// Record is the central entity: one brokered payment tracked from initiation
// to fund release. Reference is assigned exactly once at creation and is the
// sole primary key; Phone and Amount are immutable after creation.
type Record struct {
	Reference         string        `json:"reference"`
	CheckoutRequestID string        `json:"checkout_request_id,omitempty"`
	GatewayRef        string        `json:"gateway_ref,omitempty"`
	Phone             string        `json:"phone"`
	Amount            int64         `json:"amount"`
	State             State         `json:"state"`
	Detail            GatewayDetail `json:"detail"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	ConfirmedAt       *time.Time    `json:"confirmed_at,omitempty"` // Set once on entering PROCESSING; drives the release dwell
	Log               []LogEntry    `json:"log"`
}

// NewRecord creates a payment record in INITIALIZED with a fresh reference
func NewRecord(phone string, amount int64) (*Record, error) {
	if amount < 1 {
		return nil, ErrInvalidAmount
	}

	now := time.Now()
	rec := &Record{
		Reference: uuid.New().String(),
		Phone:     phone,
		Amount:    amount,
		State:     StateInitialized,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec.Log = append(rec.Log, LogEntry{At: now, Note: "transaction created"})
	return rec, nil
}

// Apply runs event through the state machine. A valid transition moves the
// state forward and logs note; an invalid or terminal-state event changes
// nothing but still appends a log entry, so redundant deliveries remain
// auditable. Returns true when the state changed.
func (r *Record) Apply(event Event, note string, raw json.RawMessage) bool {
	now := time.Now()
	next, ok := Next(r.State, event)
	if !ok {
		r.Log = append(r.Log, LogEntry{
			At:   now,
			Note: fmt.Sprintf("event %s ignored in state %s", event, r.State),
			Raw:  raw,
		})
		r.UpdatedAt = now
		return false
	}

	prev := r.State
	r.State = next
	if next == StateProcessing && r.ConfirmedAt == nil {
		r.ConfirmedAt = &now
	}
	if note == "" {
		note = fmt.Sprintf("event %s: %s -> %s", event, prev, next)
	}
	r.Log = append(r.Log, LogEntry{At: now, Note: note, Raw: raw})
	r.UpdatedAt = now
	return prev != next
}

// MergeDetail merges gateway-reported detail into the record monotonically
// and logs the merge when anything changed
func (r *Record) MergeDetail(in GatewayDetail, raw json.RawMessage) bool {
	if !r.Detail.Merge(in) {
		return false
	}
	now := time.Now()
	r.Log = append(r.Log, LogEntry{At: now, Note: "gateway detail updated", Raw: raw})
	r.UpdatedAt = now
	return true
}

// AppendNote records an event that affects no other field, such as an
// unmatched webhook or a reconciliation error scoped to this record
func (r *Record) AppendNote(note string, raw json.RawMessage) {
	now := time.Now()
	r.Log = append(r.Log, LogEntry{At: now, Note: note, Raw: raw})
	r.UpdatedAt = now
}

// Clone returns a deep copy so stores can hand out records without exposing
// their internal state to concurrent mutation
func (r *Record) Clone() *Record {
	cp := *r
	cp.Detail = GatewayDetail{}
	cp.Detail.Merge(r.Detail)
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	cp.Log = make([]LogEntry, len(r.Log))
	for i, entry := range r.Log {
		cp.Log[i] = entry
		if entry.Raw != nil {
			cp.Log[i].Raw = append(json.RawMessage(nil), entry.Raw...)
		}
	}
	return &cp
}
