// Package gateway is the single point of contact with the upstream STK push
// payment gateway. It normalizes transport failures and application-level
// failures into one error shape and never retries; retry policy belongs to
// the reconciliation engine.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pesabridge/payment-broker/internal/config"
)

const apiKeyHeader = "X-API-Key"

// Error is the single error shape for every gateway failure. StatusHint is
// the HTTP status code when the gateway answered, 0 for transport failures.
type Error struct {
	StatusHint int
	Message    string
	RawBody    []byte
}

func (e *Error) Error() string {
	if e.StatusHint == 0 {
		return "gateway request failed: " + e.Message
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusHint, e.Message)
}

// Transient reports whether the failure is worth retrying on a later tick.
// Transport failures, throttling, and server-side errors are transient;
// 4xx rejections are not.
func (e *Error) Transient() bool {
	return e.StatusHint == 0 || e.StatusHint == http.StatusTooManyRequests || e.StatusHint >= 500
}

// InitiateResult carries the gateway identifiers assigned to a push request
type InitiateResult struct {
	CheckoutRequestID string
	GatewayRef        string
}

// StatusResult carries the gateway's view of a payment's progress
type StatusResult struct {
	Status        string
	ReceiptNumber string
	ErrorCode     string
	ErrorMessage  string
}

// Client issues initiate and status requests against the upstream gateway
// with fixed auth headers and a bounded per-request timeout.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewClient creates a gateway client from configuration. The http.Client
// timeout bounds every call end to end.
func NewClient(logger *slog.Logger, cfg *config.GatewayConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

type initiateRequest struct {
	LinkCode string `json:"link_code"`
	Phone    string `json:"phone"`
	Amount   int64  `json:"amount"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initiateData struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	Reference         string `json:"reference"`
}

type statusData struct {
	Status        string `json:"status"`
	ReceiptNumber string `json:"receipt_number"`
	ErrorCode     string `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

// Initiate asks the gateway to push a payment prompt to the subscriber.
// Returns the gateway-assigned correlation identifiers on success.
func (c *Client) Initiate(ctx context.Context, code, phone string, amount int64) (*InitiateResult, error) {
	body, err := json.Marshal(initiateRequest{LinkCode: code, Phone: phone, Amount: amount})
	if err != nil {
		return nil, &Error{Message: "failed to encode initiate request: " + err.Error()}
	}

	data, gwErr := c.do(ctx, http.MethodPost, c.baseURL+"/api/v2/payments", bytes.NewReader(body))
	if gwErr != nil {
		c.logger.Error("Gateway initiate failed", "phone", phone, "amount", amount, "error", gwErr)
		return nil, gwErr
	}

	var res initiateData
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &Error{Message: "failed to decode initiate response: " + err.Error(), RawBody: data}
	}
	if res.CheckoutRequestID == "" {
		return nil, &Error{Message: "gateway response missing checkout_request_id", RawBody: data}
	}

	c.logger.Info("Gateway accepted push request",
		"checkout_request_id", res.CheckoutRequestID,
		"gateway_ref", res.Reference,
	)

	return &InitiateResult{CheckoutRequestID: res.CheckoutRequestID, GatewayRef: res.Reference}, nil
}

// QueryStatus fetches the gateway's current view of a push request
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error) {
	url := c.baseURL + "/api/v2/payments/" + checkoutRequestID + "/status"

	data, gwErr := c.do(ctx, http.MethodGet, url, nil)
	if gwErr != nil {
		return nil, gwErr
	}

	var res statusData
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &Error{Message: "failed to decode status response: " + err.Error(), RawBody: data}
	}

	return &StatusResult{
		Status:        res.Status,
		ReceiptNumber: res.ReceiptNumber,
		ErrorCode:     res.ErrorCode,
		ErrorMessage:  res.ErrorMessage,
	}, nil
}

// do performs one HTTP exchange and normalizes every failure mode into *Error
func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (json.RawMessage, *Error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &Error{Message: "failed to build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{StatusHint: resp.StatusCode, Message: "failed to read response body: " + err.Error()}
	}

	var env envelope
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			msg = env.Message
		}
		return nil, &Error{StatusHint: resp.StatusCode, Message: msg, RawBody: raw}
	}

	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{StatusHint: resp.StatusCode, Message: "malformed gateway response: " + err.Error(), RawBody: raw}
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "gateway reported failure"
		}
		return nil, &Error{StatusHint: resp.StatusCode, Message: msg, RawBody: raw}
	}

	return env.Data, nil
}
