package handler

import (
	"time"

	"github.com/pesabridge/payment-broker/internal/domain/transaction"
)

// CreatePaymentRequest represents a request to initiate an STK push payment
type CreatePaymentRequest struct {
	Phone  string `json:"phone" binding:"required"`
	Amount int64  `json:"amount" binding:"required,min=1"`
}

// PaymentResponse represents the minimal view returned right after initiation
type PaymentResponse struct {
	Reference string `json:"reference"`
	State     string `json:"state"`
}

// TransactionResponse represents a full transaction in API responses
type TransactionResponse struct {
	Reference         string                    `json:"reference"`
	CheckoutRequestID string                    `json:"checkout_request_id,omitempty"`
	GatewayRef        string                    `json:"gateway_ref,omitempty"`
	Phone             string                    `json:"phone"`
	Amount            int64                     `json:"amount"`
	State             string                    `json:"state"`
	Detail            transaction.GatewayDetail `json:"detail"`
	CreatedAt         string                    `json:"created_at"`
	UpdatedAt         string                    `json:"updated_at"`
	ConfirmedAt       string                    `json:"confirmed_at,omitempty"`
	Log               []transaction.LogEntry    `json:"log"`
}

// CallbackRequest represents the gateway's webhook notification payload
type CallbackRequest struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	Reference         string `json:"reference"`
	Phone             string `json:"phone"`
	Amount            int64  `json:"amount"`
	Status            string `json:"status"`
	ReceiptNumber     string `json:"receipt_number"`
	TransactionCode   string `json:"transaction_code"`
	PayerName         string `json:"payer_name"`
	ErrorCode         string `json:"error_code"`
	ErrorMessage      string `json:"error_message"`
}

// AckResponse acknowledges a webhook delivery
type AckResponse struct {
	Status string `json:"status"`
}

// mapTransactionToResponse maps a transaction record to a response DTO
func mapTransactionToResponse(rec *transaction.Record) TransactionResponse {
	resp := TransactionResponse{
		Reference:         rec.Reference,
		CheckoutRequestID: rec.CheckoutRequestID,
		GatewayRef:        rec.GatewayRef,
		Phone:             rec.Phone,
		Amount:            rec.Amount,
		State:             string(rec.State),
		Detail:            rec.Detail,
		CreatedAt:         rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         rec.UpdatedAt.Format(time.RFC3339),
		Log:               rec.Log,
	}
	if rec.ConfirmedAt != nil {
		resp.ConfirmedAt = rec.ConfirmedAt.Format(time.RFC3339)
	}
	return resp
}
