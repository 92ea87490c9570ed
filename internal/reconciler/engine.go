package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
	"github.com/pesabridge/payment-broker/internal/gateway"
	"github.com/pesabridge/payment-broker/internal/platform/messaging/producers"
)

// Callback is a gateway webhook notification after the broker has parsed it.
// Raw holds the original payload for the audit log.
type Callback struct {
	CheckoutRequestID string
	GatewayRef        string
	Phone             string
	Amount            int64
	Status            string
	ReceiptNumber     string
	TransactionCode   string
	PayerName         string
	ErrorCode         string
	ErrorMessage      string
	Raw               json.RawMessage
}

// detail projects the callback's gateway-reported facts into a mergeable
// detail value. Empty strings stay nil so they never clear stored values.
// A provider error code always stores the fixed-table translation, never the
// gateway's own message text; the raw payload keeps the original wording.
func (cb Callback) detail() transaction.GatewayDetail {
	var d transaction.GatewayDetail
	d.ReceiptNumber = optional(cb.ReceiptNumber)
	d.TransactionCode = optional(cb.TransactionCode)
	d.PayerName = optional(cb.PayerName)
	d.ErrorCode = optional(cb.ErrorCode)
	if cb.ErrorCode != "" {
		msg := describeErrorCode(cb.ErrorCode)
		d.ErrorMessage = &msg
	} else {
		d.ErrorMessage = optional(cb.ErrorMessage)
	}
	return d
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Engine applies reconciliation inputs from both channels to the transaction
// store. The audit repository and unmatched publisher are optional; a nil
// value disables the concern without changing any state transition.
type Engine struct {
	logger    *slog.Logger
	store     transaction.Store
	audit     transaction.AuditRepository
	unmatched producers.UnmatchedPublisher
}

// NewEngine creates a reconciliation engine
func NewEngine(
	logger *slog.Logger,
	store transaction.Store,
	audit transaction.AuditRepository,
	unmatched producers.UnmatchedPublisher,
) *Engine {
	return &Engine{
		logger:    logger,
		store:     store,
		audit:     audit,
		unmatched: unmatched,
	}
}

// HandleCallback reconciles one webhook notification. Matching is tried in
// order of identifier strength: checkout request ID, then gateway reference,
// then an open transaction with the same phone and amount. A callback that
// matches nothing is never dropped: a placeholder record preserves it and the
// payload goes to the unmatched topic when one is configured.
func (e *Engine) HandleCallback(ctx context.Context, cb Callback) error {
	rec, err := e.match(ctx, cb)
	if err != nil {
		e.logger.Error("Failed to match webhook callback", "checkout_request_id", cb.CheckoutRequestID, "error", err)
		return fmt.Errorf("failed to match webhook callback: %w", err)
	}

	if rec == nil {
		return e.preserveUnmatched(ctx, cb)
	}

	updated, err := e.update(ctx, rec.Reference, func(r *transaction.Record) error {
		if r.CheckoutRequestID == "" && cb.CheckoutRequestID != "" {
			r.CheckoutRequestID = cb.CheckoutRequestID
		}
		if r.GatewayRef == "" && cb.GatewayRef != "" {
			r.GatewayRef = cb.GatewayRef
		}
		r.MergeDetail(cb.detail(), cb.Raw)

		// A provider error code means the payment failed regardless of
		// the status field accompanying it
		if cb.ErrorCode != "" {
			r.Apply(transaction.EventPaymentFailed, "gateway callback: "+describeErrorCode(cb.ErrorCode), cb.Raw)
			return nil
		}
		if event, ok := eventForStatus(cb.Status); ok {
			r.Apply(event, "gateway callback: "+strings.ToLower(cb.Status), cb.Raw)
			return nil
		}
		r.AppendNote("gateway callback with unrecognized status "+cb.Status, cb.Raw)
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("Webhook callback reconciled",
		"reference", updated.Reference,
		"state", updated.State,
	)
	return nil
}

// HandlePollResult reconciles one status query answer for a tracked
// transaction. The status vocabulary is shared with the webhook path, so a
// poll and a callback carrying the same fact are interchangeable.
func (e *Engine) HandlePollResult(ctx context.Context, reference string, res *gateway.StatusResult) error {
	var d transaction.GatewayDetail
	d.ReceiptNumber = optional(res.ReceiptNumber)
	d.ErrorCode = optional(res.ErrorCode)
	if res.ErrorCode != "" {
		msg := describeErrorCode(res.ErrorCode)
		d.ErrorMessage = &msg
	} else {
		d.ErrorMessage = optional(res.ErrorMessage)
	}

	updated, err := e.update(ctx, reference, func(r *transaction.Record) error {
		r.MergeDetail(d, nil)

		if res.ErrorCode != "" {
			r.Apply(transaction.EventPaymentFailed, "status poll: "+describeErrorCode(res.ErrorCode), nil)
			return nil
		}
		if event, ok := eventForStatus(res.Status); ok {
			r.Apply(event, "status poll: "+strings.ToLower(res.Status), nil)
			return nil
		}
		r.AppendNote("status poll with unrecognized status "+res.Status, nil)
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Debug("Status poll reconciled", "reference", reference, "state", updated.State)
	return nil
}

// Release fires the release event for a transaction whose dwell has elapsed
func (e *Engine) Release(ctx context.Context, reference string) error {
	updated, err := e.update(ctx, reference, func(r *transaction.Record) error {
		r.Apply(transaction.EventReleaseDue, "funds released after dwell period", nil)
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("Transaction released", "reference", updated.Reference, "state", updated.State)
	return nil
}

func (e *Engine) match(ctx context.Context, cb Callback) (*transaction.Record, error) {
	rec, err := e.store.GetByCheckoutID(ctx, cb.CheckoutRequestID)
	if err != nil || rec != nil {
		return rec, err
	}

	rec, err = e.store.GetByGatewayRef(ctx, cb.GatewayRef)
	if err != nil || rec != nil {
		return rec, err
	}

	if cb.Phone != "" && cb.Amount >= 1 {
		return e.store.FindOpenByPhoneAmount(ctx, cb.Phone, cb.Amount)
	}
	return nil, nil
}

// preserveUnmatched synthesizes a placeholder record so the notification
// stays auditable, then hands the payload to the unmatched topic.
func (e *Engine) preserveUnmatched(ctx context.Context, cb Callback) error {
	now := time.Now()
	rec := &transaction.Record{
		Reference:         uuid.New().String(),
		CheckoutRequestID: cb.CheckoutRequestID,
		GatewayRef:        cb.GatewayRef,
		Phone:             cb.Phone,
		Amount:            cb.Amount,
		State:             transaction.StateInitialized,
		CreatedAt:         now,
		UpdatedAt:         now,
		Log: []transaction.LogEntry{
			{At: now, Note: "unmatched webhook", Raw: cb.Raw},
		},
	}
	rec.Detail.Merge(cb.detail())

	if err := e.store.Create(ctx, rec); err != nil {
		e.logger.Error("Failed to preserve unmatched webhook", "reference", rec.Reference, "error", err)
		return fmt.Errorf("failed to preserve unmatched webhook: %w", err)
	}

	e.mirror(ctx, rec, 0)

	if e.unmatched != nil {
		if err := e.unmatched.PublishUnmatched(ctx, rec.Reference, cb.Raw, "no matching transaction"); err != nil {
			// Publishing is best-effort; the placeholder record already
			// preserves the notification
			e.logger.Error("Failed to publish unmatched webhook", "reference", rec.Reference, "error", err)
		}
	}

	e.logger.Warn("Preserved unmatched webhook as placeholder record",
		"reference", rec.Reference,
		"checkout_request_id", cb.CheckoutRequestID,
		"gateway_ref", cb.GatewayRef,
	)
	return nil
}

// update wraps the store's atomic read-modify-write and mirrors the log
// entries the mutation appended into the audit archive.
func (e *Engine) update(ctx context.Context, reference string, fn func(*transaction.Record) error) (*transaction.Record, error) {
	prevLen := 0
	updated, err := e.store.Update(ctx, reference, func(r *transaction.Record) error {
		prevLen = len(r.Log)
		return fn(r)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction %s: %w", reference, err)
	}

	e.mirror(ctx, updated, prevLen)
	return updated, nil
}

// mirror copies log entries from index from onward into the audit archive.
// Failures are logged and swallowed; the in-record log stays authoritative.
func (e *Engine) mirror(ctx context.Context, rec *transaction.Record, from int) {
	if e.audit == nil {
		return
	}
	for _, entry := range rec.Log[from:] {
		auditEntry := &transaction.AuditEntry{
			Reference: rec.Reference,
			State:     rec.State,
			At:        entry.At,
			Note:      entry.Note,
			Raw:       entry.Raw,
		}
		if err := e.audit.Append(ctx, auditEntry); err != nil {
			e.logger.Error("Failed to mirror log entry to audit archive",
				"reference", rec.Reference, "error", err)
		}
	}
}
