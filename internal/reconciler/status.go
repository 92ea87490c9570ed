// Package reconciler drives every transaction to a terminal state by racing
// two independent channels against the same state machine: gateway webhook
// callbacks and periodic status polls. Both channels share one status
// vocabulary and apply changes through atomic store updates, so their
// interleaving order never changes the outcome.
package reconciler

import (
	"strings"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
)

// Gateway status vocabulary. The gateway's "processing" means the payment
// went through and is being settled on its side, which confirms the payment
// from the broker's point of view.
const (
	statusCompleted  = "completed"
	statusProcessing = "processing"
	statusFailed     = "failed"
	statusCancelled  = "cancelled"
)

// eventForStatus maps a gateway-reported status onto a state machine event.
// Unknown statuses map to nothing and leave the record's state untouched.
func eventForStatus(status string) (transaction.Event, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case statusCompleted, statusProcessing:
		return transaction.EventPaymentConfirmed, true
	case statusFailed, statusCancelled:
		return transaction.EventPaymentFailed, true
	default:
		return "", false
	}
}

// errorMessages translates the gateway's provider error codes into the
// messages shown on receipts. The table is fixed; codes outside it fall back
// to a generic message rather than leaking raw gateway text to subscribers.
var errorMessages = map[string]string{
	"INSUFFICIENT_FUNDS": "payer has insufficient funds",
	"USER_CANCELLED":     "payer cancelled the payment prompt",
	"SYSTEM_BUSY":        "payment system is busy, please retry later",
	"TIMED_OUT":          "payment prompt timed out without a response",
	"DUPLICATE_REQUEST":  "a matching payment request is already in progress",
	"INVALID_PHONE":      "payment system rejected the phone number",
	"RESOURCE_NOT_FOUND": "payment system has no matching request",
}

func describeErrorCode(code string) string {
	if msg, ok := errorMessages[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return msg
	}
	return "unknown gateway error"
}
