package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Charge statuses as reported by the payment processor.
const (
	ChargeRequiresPayment = "requires_payment"
	ChargeSucceeded       = "succeeded"
	ChargeFailed          = "failed"
)

// Error codes for gateway failures.
const (
	CodeNotFound    = "not_found"
	CodeRejected    = "rejected"
	CodeUnavailable = "unavailable"
)

// Error is a typed gateway failure. Callers decide retry policy; the adapter
// itself never retries.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a gateway not-found failure.
func IsNotFound(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Code == CodeNotFound
}

// ChargeRecord mirrors the processor-owned charge, read-only on our side.
type ChargeRecord struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Client talks to the payment processor's charge API. Base URL and secret are
// injected; the HTTP client carries a bounded timeout so a stalled processor
// cannot hold a request goroutine indefinitely.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// NewClient returns a gateway client for the given processor endpoint.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		secretKey:  secretKey,
	}
}

type createChargeRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateCharge opens a charge for amount in minor currency units. Metadata
// must carry the order ID so the processor's audit trail stays correlatable.
func (c *Client) CreateCharge(ctx context.Context, amount int64, currency string, metadata map[string]string) (*ChargeRecord, error) {
	body, err := json.Marshal(createChargeRequest{
		Amount:   amount,
		Currency: currency,
		Metadata: metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req)
}

// RetrieveCharge fetches the current processor-side state of a charge. Used
// to re-verify status at confirmation time instead of trusting the client.
func (c *Client) RetrieveCharge(ctx context.Context, chargeID string) (*ChargeRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/charges/"+chargeID, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*ChargeRecord, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Code: CodeNotFound, Message: "charge not found"}
	case resp.StatusCode >= 500:
		return nil, &Error{Code: CodeUnavailable, Message: fmt.Sprintf("processor returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &Error{Code: CodeRejected, Message: fmt.Sprintf("processor returned %d", resp.StatusCode)}
	}

	var rec ChargeRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, &Error{Code: CodeUnavailable, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return &rec, nil
}
