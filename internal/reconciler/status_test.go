package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
)

func TestEventForStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		wantEvent transaction.Event
		wantOK    bool
	}{
		{"completed confirms", "completed", transaction.EventPaymentConfirmed, true},
		{"processing confirms", "processing", transaction.EventPaymentConfirmed, true},
		{"failed fails", "failed", transaction.EventPaymentFailed, true},
		{"cancelled fails", "cancelled", transaction.EventPaymentFailed, true},
		{"case insensitive", "COMPLETED", transaction.EventPaymentConfirmed, true},
		{"surrounding whitespace", " completed ", transaction.EventPaymentConfirmed, true},
		{"unknown status", "queued", "", false},
		{"empty status", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := eventForStatus(tt.status)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantEvent, event)
			}
		})
	}
}

func TestDescribeErrorCode(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"insufficient funds", "INSUFFICIENT_FUNDS", "payer has insufficient funds"},
		{"user cancelled", "USER_CANCELLED", "payer cancelled the payment prompt"},
		{"system busy", "SYSTEM_BUSY", "payment system is busy, please retry later"},
		{"timed out", "TIMED_OUT", "payment prompt timed out without a response"},
		{"duplicate request", "DUPLICATE_REQUEST", "a matching payment request is already in progress"},
		{"invalid phone", "INVALID_PHONE", "payment system rejected the phone number"},
		{"resource not found", "RESOURCE_NOT_FOUND", "payment system has no matching request"},
		{"lowercase code", "insufficient_funds", "payer has insufficient funds"},
		{"unknown code falls back", "GATEWAY_MELTDOWN", "unknown gateway error"},
		{"empty code falls back", "", "unknown gateway error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeErrorCode(tt.code))
		})
	}
}
