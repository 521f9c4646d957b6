package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// MockGateway simulates the payout provider for local development.
// It introduces a random delay and fails a configurable share of calls.
type MockGateway struct {
	// FailureRate is the probability of failure (0.0 to 1.0). Default: 0.1 (10%)
	FailureRate float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// NewMockGateway creates a new MockGateway with default settings.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		FailureRate: 0.1,
		MinDelay:    200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

func (g *MockGateway) RegisterPayee(ctx context.Context, accountNumber, bankCode string) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	if len(accountNumber) != 10 {
		return "", fmt.Errorf("%w: account number could not be resolved", ErrRejected)
	}
	return fmt.Sprintf("RCP_mock%s%s", bankCode, accountNumber[6:]), nil
}

func (g *MockGateway) InitiateTransfer(ctx context.Context, recipientCode string, amount int64, reference string) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	if rand.Float64() < g.FailureRate {
		return "", fmt.Errorf("gateway temporarily unavailable")
	}
	// Format: TRF_MOCK-YYYYMMDD-HHMMSS-XXXXX
	return fmt.Sprintf("TRF_MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000)), nil
}

func (g *MockGateway) wait(ctx context.Context) error {
	delay := g.MinDelay
	if spread := g.MaxDelay - g.MinDelay; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gateway call canceled: %w", ctx.Err())
	}
}
