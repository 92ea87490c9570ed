package handler

import (
	"encoding/json"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/pesabridge/payment-broker/internal/api/service"
	"github.com/pesabridge/payment-broker/internal/reconciler"
)

// WebhookHandler receives gateway callback notifications. The gateway retries
// aggressively on non-2xx answers, so every delivery is acknowledged with 200
// no matter what happened to it internally; failures are logged and the raw
// payload is preserved through the reconciliation engine.
type WebhookHandler struct {
	paymentService service.PaymentService
	logger         *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(logger *slog.Logger, paymentService service.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// HandleCallback processes one gateway notification and always acks
func (h *WebhookHandler) HandleCallback(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.logger.Error("Failed to read callback body", "error", err)
		RespondOK(c, AckResponse{Status: "acknowledged"})
		return
	}

	var req CallbackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.logger.Warn("Malformed callback payload acknowledged and dropped",
			"error", err,
			"body_size", len(raw),
		)
		RespondOK(c, AckResponse{Status: "acknowledged"})
		return
	}

	cb := reconciler.Callback{
		CheckoutRequestID: req.CheckoutRequestID,
		GatewayRef:        req.Reference,
		Phone:             req.Phone,
		Amount:            req.Amount,
		Status:            req.Status,
		ReceiptNumber:     req.ReceiptNumber,
		TransactionCode:   req.TransactionCode,
		PayerName:         req.PayerName,
		ErrorCode:         req.ErrorCode,
		ErrorMessage:      req.ErrorMessage,
		Raw:               raw,
	}

	if err := h.paymentService.HandleCallback(c.Request.Context(), cb); err != nil {
		h.logger.Error("Failed to reconcile callback",
			"checkout_request_id", req.CheckoutRequestID,
			"error", err,
		)
	}

	RespondOK(c, AckResponse{Status: "acknowledged"})
}
