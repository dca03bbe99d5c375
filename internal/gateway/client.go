package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gatewaytypes "github.com/fanmate/platform/internal/core/datamodel/gateway"
)

// Error is a definitive refusal from the gateway: the HTTP exchange completed
// and the gateway said no. Transport failures and timeouts are NOT an Error;
// they surface as the wrapped cause so callers treat the outcome as unknown.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

// AsGatewayError unwraps err into a definitive gateway refusal, if it is one.
func AsGatewayError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// AlreadyCanceled reports whether the refusal means the payment is already
// cancelled on the gateway side. Compensation treats this as done.
func (e *Error) AlreadyCanceled() bool {
	switch e.Code {
	case "ALREADY_CANCELED_PAYMENT", "ALREADY_FULLY_CANCELED", "PAYMENT_ALREADY_CANCELED":
		return true
	}
	if e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusNotFound {
		return strings.Contains(strings.ToLower(e.Message), "already")
	}
	return false
}

// IsAlreadyCanceled is the error-value form of (*Error).AlreadyCanceled.
func IsAlreadyCanceled(err error) bool {
	ge, ok := AsGatewayError(err)
	return ok && ge.AlreadyCanceled()
}

type Config struct {
	BaseURL        string
	SecretKey      string
	ConfirmTimeout time.Duration
}

// Client wraps the payment gateway's confirm/cancel HTTP API. Every call has
// a bounded timeout; a timeout means unknown outcome, never a confirmed
// failure.
type Client struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
	client    *http.Client
	logger    *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.ConfirmTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimSuffix(config.BaseURL, "/"),
		secretKey: config.SecretKey,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Confirm asks the gateway to capture the charge identified by paymentKey for
// exactly amount. The gateway is idempotent per orderId on its own side.
func (c *Client) Confirm(ctx context.Context, paymentKey, orderID string, amount int64) (*gatewaytypes.ConfirmResponse, error) {
	body := gatewaytypes.ConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    orderID,
		Amount:     amount,
	}

	var resp gatewaytypes.ConfirmResponse
	if err := c.post(ctx, "/v1/payments/confirm", body, &resp); err != nil {
		return nil, err
	}

	if resp.PaymentKey == "" || resp.OrderID == "" {
		return nil, &Error{
			StatusCode: http.StatusBadGateway,
			Message:    "confirm response is missing payment identifiers",
		}
	}

	c.logger.Info("gateway confirm completed",
		"order_id", orderID,
		"payment_key", paymentKey,
		"status", resp.Status,
		"paid_amount", resp.TotalAmount)
	return &resp, nil
}

// Cancel refunds amount on a confirmed payment. Used by compensation and
// user-driven intent cancellation.
func (c *Client) Cancel(ctx context.Context, paymentKey, reason string, amount int64) (*gatewaytypes.CancelResponse, error) {
	body := gatewaytypes.CancelRequest{
		CancelReason: reason,
		CancelAmount: amount,
	}

	var resp gatewaytypes.CancelResponse
	path := fmt.Sprintf("/v1/payments/%s/cancel", paymentKey)
	if err := c.post(ctx, path, body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info("gateway cancel completed", "payment_key", paymentKey, "cancel_amount", amount)
	return &resp, nil
}

// GetPayment fetches the gateway's current view of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentKey string) (*gatewaytypes.ConfirmResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, paymentKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Authorization", c.authorizationHeader())

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.errorFrom(httpResp.StatusCode, respBody)
	}

	var resp gatewaytypes.ConfirmResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authorizationHeader())

	httpResp, err := c.client.Do(req)
	if err != nil {
		// Transport failure or timeout: the outcome is unknown, the caller
		// must not treat this as a refusal.
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		gwErr := c.errorFrom(httpResp.StatusCode, respBody)
		c.logger.Warn("gateway refused request",
			"path", path,
			"status", httpResp.StatusCode,
			"code", gwErr.Code,
			"message", gwErr.Message)
		return gwErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

func (c *Client) errorFrom(statusCode int, body []byte) *Error {
	var errResp gatewaytypes.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		return &Error{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	}
	return &Error{StatusCode: statusCode, Code: errResp.Code, Message: errResp.Message}
}

// The gateway authenticates with Basic auth over the secret key; the trailing
// colon is part of the scheme.
func (c *Client) authorizationHeader() string {
	encoded := base64.StdEncoding.EncodeToString([]byte(c.secretKey + ":"))
	return "Basic " + encoded
}
