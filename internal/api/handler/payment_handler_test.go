package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pesabridge/payment-broker/internal/domain/msisdn"
	"github.com/pesabridge/payment-broker/internal/domain/transaction"
	"github.com/pesabridge/payment-broker/internal/gateway"
	"github.com/pesabridge/payment-broker/internal/receipt"
	"github.com/pesabridge/payment-broker/internal/reconciler"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) InitiatePayment(ctx context.Context, phone string, amount int64) (*transaction.Record, error) {
	args := m.Called(ctx, phone, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Record), args.Error(1)
}

func (m *MockPaymentService) GetTransaction(ctx context.Context, reference string) (*transaction.Record, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Record), args.Error(1)
}

func (m *MockPaymentService) GetReceipt(ctx context.Context, reference string) (*receipt.View, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*receipt.View), args.Error(1)
}

func (m *MockPaymentService) GetAuditTrail(ctx context.Context, reference string) ([]*transaction.AuditEntry, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.AuditEntry), args.Error(1)
}

func (m *MockPaymentService) HandleCallback(ctx context.Context, cb reconciler.Callback) error {
	args := m.Called(ctx, cb)
	return args.Error(0)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.Default()
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotNil(t, resp.Data)

	dataBytes, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(dataBytes, &out))
	return out
}

func TestPaymentHandler_Create(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postPayment := func(h *PaymentHandler, body string) *httptest.ResponseRecorder {
		router := setupTestRouter()
		router.POST("/payments", h.Create)
		req, _ := http.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		rec, err := transaction.NewRecord("254712345678", 150)
		require.NoError(t, err)
		rec.Apply(transaction.EventGatewayAccepted, "", nil)
		mockService.On("InitiatePayment", mock.Anything, "0712345678", int64(150)).Return(rec, nil)

		rr := postPayment(h, `{"phone":"0712345678","amount":150}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		resp := decodeData[PaymentResponse](t, rr.Body.Bytes())
		assert.Equal(t, rec.Reference, resp.Reference)
		assert.Equal(t, string(transaction.StatePending), resp.State)
		mockService.AssertExpectations(t)
	})

	t.Run("InvalidRequestBody", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		rr := postPayment(h, `{"phone":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "InitiatePayment", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("MissingAmountRejectedByBinding", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		rr := postPayment(h, `{"phone":"0712345678"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "InitiatePayment", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("InvalidPhone", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		mockService.On("InitiatePayment", mock.Anything, "12345", int64(150)).Return(nil, msisdn.ErrInvalidFormat)

		rr := postPayment(h, `{"phone":"12345","amount":150}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("GatewayFailureReturns502WithReference", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		rec, err := transaction.NewRecord("254712345678", 150)
		require.NoError(t, err)
		rec.Apply(transaction.EventGatewayRejected, "gateway rejected initiation", nil)
		gwErr := &gateway.Error{StatusHint: 503, Message: "unavailable"}
		mockService.On("InitiatePayment", mock.Anything, "0712345678", int64(150)).Return(rec, gwErr)

		rr := postPayment(h, `{"phone":"0712345678","amount":150}`)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		resp := decodeData[PaymentResponse](t, rr.Body.Bytes())
		assert.Equal(t, rec.Reference, resp.Reference)
		assert.Equal(t, string(transaction.StateFailed), resp.State)
		mockService.AssertExpectations(t)
	})
}

func TestPaymentHandler_GetByReference(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	getPath := func(h *PaymentHandler, path string) *httptest.ResponseRecorder {
		router := setupTestRouter()
		router.GET("/payments/:reference", h.GetByReference)
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		rec, err := transaction.NewRecord("254712345678", 900)
		require.NoError(t, err)
		mockService.On("GetTransaction", mock.Anything, rec.Reference).Return(rec, nil)

		rr := getPath(h, "/payments/"+rec.Reference)

		assert.Equal(t, http.StatusOK, rr.Code)
		resp := decodeData[TransactionResponse](t, rr.Body.Bytes())
		assert.Equal(t, rec.Reference, resp.Reference)
		assert.Equal(t, int64(900), resp.Amount)
		mockService.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		mockService.On("GetTransaction", mock.Anything, "missing").
			Return(nil, transaction.ErrNotFound{Reference: "missing"})

		rr := getPath(h, "/payments/missing")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestPaymentHandler_GetReceipt(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		view := &receipt.View{
			Reference:     "ref-1",
			Marker:        receipt.MarkerPositive,
			StatusNote:    "payment completed and funds released",
			ReceiptNumber: "QK12XY34",
		}
		mockService.On("GetReceipt", mock.Anything, "ref-1").Return(view, nil)

		router := setupTestRouter()
		router.GET("/payments/:reference/receipt", h.GetReceipt)
		req, _ := http.NewRequest(http.MethodGet, "/payments/ref-1/receipt", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		resp := decodeData[receipt.View](t, rr.Body.Bytes())
		assert.Equal(t, receipt.MarkerPositive, resp.Marker)
		assert.Equal(t, "QK12XY34", resp.ReceiptNumber)
		mockService.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		mockService.On("GetReceipt", mock.Anything, "missing").
			Return(nil, transaction.ErrNotFound{Reference: "missing"})

		router := setupTestRouter()
		router.GET("/payments/:reference/receipt", h.GetReceipt)
		req, _ := http.NewRequest(http.MethodGet, "/payments/missing/receipt", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestPaymentHandler_GetAudit(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockPaymentService)
		h := NewPaymentHandler(logger, mockService)

		entries := []*transaction.AuditEntry{
			{Reference: "ref-1", State: transaction.StatePending, Note: "transaction created"},
		}
		mockService.On("GetAuditTrail", mock.Anything, "ref-1").Return(entries, nil)

		router := setupTestRouter()
		router.GET("/payments/:reference/audit", h.GetAudit)
		req, _ := http.NewRequest(http.MethodGet, "/payments/ref-1/audit", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		resp := decodeData[[]*transaction.AuditEntry](t, rr.Body.Bytes())
		require.Len(t, resp, 1)
		assert.Equal(t, "transaction created", resp[0].Note)
		mockService.AssertExpectations(t)
	})
}
