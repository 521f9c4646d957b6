package gateway

import (
	"context"
	"errors"
)

// Gateway is the external bank transfer provider used for agent payouts.
type Gateway interface {
	// RegisterPayee registers a bank account and returns the provider's recipient code.
	RegisterPayee(ctx context.Context, accountNumber, bankCode string) (string, error)
	// InitiateTransfer sends amount (kobo) to a registered recipient. reference is our
	// idempotency reference; the returned string is the provider's transfer reference.
	InitiateTransfer(ctx context.Context, recipientCode string, amount int64, reference string) (string, error)
}

// ErrRejected marks a definitive refusal by the provider, as opposed to a transport failure.
var ErrRejected = errors.New("gateway rejected request")
