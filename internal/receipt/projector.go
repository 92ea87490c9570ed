// Package receipt projects transaction records into the view consumed by
// receipt rendering. Projection is pure and stateless: the same record always
// yields the same view, and the view can be re-derived at any time.
package receipt

import (
	"time"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
)

// Placeholder shown for detail fields the gateway has not reported yet
const notAvailable = "N/A"

// Marker classifies a receipt for rendering without the renderer needing to
// know the state machine
type Marker string

const (
	MarkerPending  Marker = "pending"
	MarkerNeutral  Marker = "neutral"
	MarkerNegative Marker = "negative"
	MarkerPositive Marker = "positive"
)

// View is the sole data contract between the broker and any receipt renderer
type View struct {
	Reference       string            `json:"reference"`
	Phone           string            `json:"phone"`
	Amount          int64             `json:"amount"`
	State           transaction.State `json:"state"`
	Marker          Marker            `json:"marker"`
	StatusNote      string            `json:"status_note"`
	ReceiptNumber   string            `json:"receipt_number"`
	TransactionCode string            `json:"transaction_code"`
	PayerName       string            `json:"payer_name"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ConfirmedAt     *time.Time        `json:"confirmed_at,omitempty"`
}

// Project derives the receipt view for a record
func Project(rec *transaction.Record) View {
	v := View{
		Reference:       rec.Reference,
		Phone:           rec.Phone,
		Amount:          rec.Amount,
		State:           rec.State,
		Marker:          markerFor(rec.State),
		StatusNote:      statusNote(rec),
		ReceiptNumber:   orPlaceholder(rec.Detail.ReceiptNumber),
		TransactionCode: orPlaceholder(rec.Detail.TransactionCode),
		PayerName:       orPlaceholder(rec.Detail.PayerName),
		CreatedAt:       rec.CreatedAt,
		ConfirmedAt:     rec.ConfirmedAt,
	}
	if rec.Detail.ErrorCode != nil {
		v.ErrorCode = *rec.Detail.ErrorCode
	}
	if rec.Detail.ErrorMessage != nil {
		v.ErrorMessage = *rec.Detail.ErrorMessage
	}
	return v
}

func markerFor(state transaction.State) Marker {
	switch state {
	case transaction.StateProcessing:
		return MarkerNeutral
	case transaction.StateFailed:
		return MarkerNegative
	case transaction.StateReleased:
		return MarkerPositive
	default:
		return MarkerPending
	}
}

func statusNote(rec *transaction.Record) string {
	switch rec.State {
	case transaction.StateInitialized:
		return "payment request created, awaiting gateway acknowledgement"
	case transaction.StatePending:
		return "payment prompt sent, awaiting confirmation"
	case transaction.StateProcessing:
		return "payment confirmed, funds pending release"
	case transaction.StateReleased:
		return "payment completed and funds released"
	case transaction.StateFailed:
		if rec.Detail.ErrorMessage != nil && *rec.Detail.ErrorMessage != "" {
			return "payment failed: " + *rec.Detail.ErrorMessage
		}
		return "payment failed"
	default:
		return "unknown payment state"
	}
}

func orPlaceholder(s *string) string {
	if s == nil || *s == "" {
		return notAvailable
	}
	return *s
}
