package service

import (
	"context"
	"log/slog"

	"github.com/pesabridge/payment-broker/internal/config"
	"github.com/pesabridge/payment-broker/internal/domain/msisdn"
	"github.com/pesabridge/payment-broker/internal/domain/transaction"
	"github.com/pesabridge/payment-broker/internal/receipt"
	"github.com/pesabridge/payment-broker/internal/reconciler"
)

// PaymentServiceImpl implements the PaymentService interface
type PaymentServiceImpl struct {
	logger     *slog.Logger
	store      transaction.Store
	audit      transaction.AuditRepository
	initiator  PaymentInitiator
	tracker    Tracker
	reconciler CallbackReconciler
	linkCode   string
}

// NewPaymentService creates a new payment service. audit may be nil when the
// archive is disabled; the audit trail then derives from the record's own log.
func NewPaymentService(
	logger *slog.Logger,
	cfg *config.GatewayConfig,
	store transaction.Store,
	audit transaction.AuditRepository,
	initiator PaymentInitiator,
	tracker Tracker,
	callbackReconciler CallbackReconciler,
) PaymentService {
	return &PaymentServiceImpl{
		logger:     logger,
		store:      store,
		audit:      audit,
		initiator:  initiator,
		tracker:    tracker,
		reconciler: callbackReconciler,
		linkCode:   cfg.LinkCode,
	}
}

// InitiatePayment validates phone and amount, creates the record, then asks
// the gateway to push the prompt. The record is created before the gateway
// call so a rejected or failed initiation still leaves an auditable trail;
// in that case the record comes back in terminal failed alongside the
// gateway's error.
func (s *PaymentServiceImpl) InitiatePayment(ctx context.Context, rawPhone string, amount int64) (*transaction.Record, error) {
	phone, err := msisdn.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	rec, err := transaction.NewRecord(phone, amount)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.mirror(ctx, rec, 0)

	res, gwErr := s.initiator.Initiate(ctx, s.linkCode, phone, amount)
	if gwErr != nil {
		s.logger.Error("Gateway rejected payment initiation", "reference", rec.Reference, "error", gwErr)
		updated, err := s.update(ctx, rec.Reference, func(r *transaction.Record) error {
			r.Apply(transaction.EventGatewayRejected, "gateway rejected initiation: "+gwErr.Error(), nil)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return updated, gwErr
	}

	updated, err := s.update(ctx, rec.Reference, func(r *transaction.Record) error {
		r.CheckoutRequestID = res.CheckoutRequestID
		r.GatewayRef = res.GatewayRef
		r.Apply(transaction.EventGatewayAccepted, "gateway accepted push request", nil)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.tracker.Track(updated.Reference)

	s.logger.Info("Payment initiated",
		"reference", updated.Reference,
		"checkout_request_id", updated.CheckoutRequestID,
	)
	return updated, nil
}

// GetTransaction retrieves a transaction by reference, returns ErrNotFound if unknown
func (s *PaymentServiceImpl) GetTransaction(ctx context.Context, reference string) (*transaction.Record, error) {
	return s.store.GetByReference(ctx, reference)
}

// GetReceipt projects the transaction into its receipt view
func (s *PaymentServiceImpl) GetReceipt(ctx context.Context, reference string) (*receipt.View, error) {
	rec, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	view := receipt.Project(rec)
	return &view, nil
}

// GetAuditTrail returns the archived timeline when the archive is enabled,
// otherwise it derives one from the record's own log
func (s *PaymentServiceImpl) GetAuditTrail(ctx context.Context, reference string) ([]*transaction.AuditEntry, error) {
	rec, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		return s.audit.ListByReference(ctx, reference)
	}

	entries := make([]*transaction.AuditEntry, 0, len(rec.Log))
	for _, entry := range rec.Log {
		entries = append(entries, &transaction.AuditEntry{
			Reference: rec.Reference,
			State:     rec.State,
			At:        entry.At,
			Note:      entry.Note,
			Raw:       entry.Raw,
		})
	}
	return entries, nil
}

// HandleCallback forwards the parsed webhook to the reconciliation engine
func (s *PaymentServiceImpl) HandleCallback(ctx context.Context, cb reconciler.Callback) error {
	return s.reconciler.HandleCallback(ctx, cb)
}

// update wraps the store's atomic read-modify-write and mirrors the log
// entries the mutation appended, so initiation events reach the archive the
// same way reconciliation events do
func (s *PaymentServiceImpl) update(ctx context.Context, reference string, fn func(*transaction.Record) error) (*transaction.Record, error) {
	prevLen := 0
	updated, err := s.store.Update(ctx, reference, func(r *transaction.Record) error {
		prevLen = len(r.Log)
		return fn(r)
	})
	if err != nil {
		return nil, err
	}

	s.mirror(ctx, updated, prevLen)
	return updated, nil
}

// mirror copies log entries from index from onward into the audit archive.
// Failures are logged and swallowed; the in-record log stays authoritative.
func (s *PaymentServiceImpl) mirror(ctx context.Context, rec *transaction.Record, from int) {
	if s.audit == nil {
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
		if err := s.audit.Append(ctx, auditEntry); err != nil {
			s.logger.Error("Failed to mirror log entry to audit archive",
				"reference", rec.Reference, "error", err)
		}
	}
}
