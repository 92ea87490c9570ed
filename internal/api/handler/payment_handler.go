package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/pesabridge/payment-broker/internal/api/service"
	"github.com/pesabridge/payment-broker/internal/domain/msisdn"
	"github.com/pesabridge/payment-broker/internal/domain/transaction"
	"github.com/pesabridge/payment-broker/internal/gateway"
)

// PaymentHandler handles HTTP requests for payment operations
type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(logger *slog.Logger, paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// Create handles payment initiation. Validation failures create nothing; a
// gateway failure still leaves a failed record behind and surfaces as 502
// with that record's reference.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	rec, err := h.paymentService.InitiatePayment(c.Request.Context(), req.Phone, req.Amount)
	if err != nil {
		if errors.Is(err, msisdn.ErrInvalidFormat) {
			RespondBadRequest(c, "Invalid phone number format")
			return
		}
		if errors.Is(err, transaction.ErrInvalidAmount) {
			RespondBadRequest(c, "Amount must be at least 1")
			return
		}
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && rec != nil {
			RespondBadGateway(c, "Payment gateway rejected the request", PaymentResponse{
				Reference: rec.Reference,
				State:     string(rec.State),
			})
			return
		}
		h.logger.Error("Failed to initiate payment", "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, PaymentResponse{
		Reference: rec.Reference,
		State:     string(rec.State),
	})
}

// GetByReference retrieves a transaction by its reference, returning 404 if not found
func (h *PaymentHandler) GetByReference(c *gin.Context) {
	reference := c.Param("reference")

	rec, err := h.paymentService.GetTransaction(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound{}) {
			RespondNotFound(c, "Transaction not found")
			return
		}
		h.logger.Error("Failed to get transaction", "reference", reference, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapTransactionToResponse(rec))
}

// GetReceipt returns the receipt view for a transaction
func (h *PaymentHandler) GetReceipt(c *gin.Context) {
	reference := c.Param("reference")

	view, err := h.paymentService.GetReceipt(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound{}) {
			RespondNotFound(c, "Transaction not found")
			return
		}
		h.logger.Error("Failed to project receipt", "reference", reference, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, view)
}

// GetAudit returns the audit timeline for a transaction
func (h *PaymentHandler) GetAudit(c *gin.Context) {
	reference := c.Param("reference")

	entries, err := h.paymentService.GetAuditTrail(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound{}) {
			RespondNotFound(c, "Transaction not found")
			return
		}
		h.logger.Error("Failed to get audit trail", "reference", reference, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, entries)
}
