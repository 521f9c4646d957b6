package gateway

import (
	"context"
	"time"

	"github.com/ayo6706/campus-courier/internal/observability"
)

type instrumented struct {
	next Gateway
}

// WithMetrics records latency and outcome of every call made through gw.
func WithMetrics(gw Gateway) Gateway {
	return &instrumented{next: gw}
}

func (g *instrumented) RegisterPayee(ctx context.Context, accountNumber, bankCode string) (string, error) {
	start := time.Now()
	code, err := g.next.RegisterPayee(ctx, accountNumber, bankCode)
	observability.ObserveGatewayCall("register_payee", result(err), time.Since(start))
	return code, err
}

func (g *instrumented) InitiateTransfer(ctx context.Context, recipientCode string, amount int64, reference string) (string, error) {
	start := time.Now()
	ref, err := g.next.InitiateTransfer(ctx, recipientCode, amount, reference)
	observability.ObserveGatewayCall("initiate_transfer", result(err), time.Since(start))
	return ref, err
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
