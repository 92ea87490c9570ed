package service

import (
	"context"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
	"github.com/pesabridge/payment-broker/internal/gateway"
	"github.com/pesabridge/payment-broker/internal/receipt"
	"github.com/pesabridge/payment-broker/internal/reconciler"
)

// PaymentService defines payment operations exposed over the API
type PaymentService interface {
	// InitiatePayment validates the input, creates a record, and asks the
	// gateway to push a payment prompt. A gateway failure still returns the
	// record (in terminal failed) together with the gateway error.
	InitiatePayment(ctx context.Context, phone string, amount int64) (*transaction.Record, error)

	// GetTransaction retrieves a transaction by reference
	GetTransaction(ctx context.Context, reference string) (*transaction.Record, error)

	// GetReceipt projects a transaction into its receipt view
	GetReceipt(ctx context.Context, reference string) (*receipt.View, error)

	// GetAuditTrail retrieves the audit timeline for a transaction
	GetAuditTrail(ctx context.Context, reference string) ([]*transaction.AuditEntry, error)

	// HandleCallback forwards a parsed webhook notification to reconciliation
	HandleCallback(ctx context.Context, cb reconciler.Callback) error
}

// PaymentInitiator is the slice of the gateway client the service needs
type PaymentInitiator interface {
	Initiate(ctx context.Context, code, phone string, amount int64) (*gateway.InitiateResult, error)
}

// Tracker registers newly initiated transactions with the status poller
type Tracker interface {
	Track(reference string)
}

// CallbackReconciler applies webhook callbacks to the transaction store
type CallbackReconciler interface {
	HandleCallback(ctx context.Context, cb reconciler.Callback) error
}
