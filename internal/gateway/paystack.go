package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 1 << 20

// PaystackGateway talks to the Paystack transfers API.
type PaystackGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewPaystackGateway builds a client. rps bounds outbound calls across all
// goroutines; calls beyond it wait for a token or for ctx to end.
func NewPaystackGateway(baseURL, secretKey string, rps float64) *PaystackGateway {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &PaystackGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (g *PaystackGateway) RegisterPayee(ctx context.Context, accountNumber, bankCode string) (string, error) {
	data, err := g.post(ctx, "/transferrecipient", map[string]any{
		"type":           "nuban",
		"name":           accountNumber,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       domain.Currency,
	})
	if err != nil {
		return "", fmt.Errorf("register payee: %w", err)
	}
	code := data.Get("recipient_code").String()
	if code == "" {
		return "", fmt.Errorf("register payee: response missing recipient_code")
	}
	return code, nil
}

func (g *PaystackGateway) InitiateTransfer(ctx context.Context, recipientCode string, amount int64, reference string) (string, error) {
	data, err := g.post(ctx, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    amount,
		"recipient": recipientCode,
		"reference": reference,
		"reason":    "Campus courier payout",
	})
	if err != nil {
		return "", fmt.Errorf("initiate transfer: %w", err)
	}

	switch status := data.Get("status").String(); status {
	case "failed", "reversed", "abandoned", "rejected":
		return "", fmt.Errorf("%w: transfer %s", ErrRejected, status)
	}
	code := data.Get("transfer_code").String()
	if code == "" {
		return "", fmt.Errorf("initiate transfer: response missing transfer_code")
	}
	return code, nil
}

// post sends a JSON request and returns the "data" member of a successful envelope.
func (g *PaystackGateway) post(ctx context.Context, path string, payload any) (gjson.Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("unexpected response (status %d)", resp.StatusCode)
	}

	envelope := gjson.ParseBytes(raw)
	message := envelope.Get("message").String()
	switch {
	case resp.StatusCode >= 500:
		return gjson.Result{}, fmt.Errorf("provider error (status %d): %s", resp.StatusCode, message)
	case resp.StatusCode >= 400 || !envelope.Get("status").Bool():
		return gjson.Result{}, fmt.Errorf("%w (status %d): %s", ErrRejected, resp.StatusCode, message)
	}
	return envelope.Get("data"), nil
}
