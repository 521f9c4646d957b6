package models

import "errors"

// Error taxonomy shared by services and handlers. Services wrap these with
// context; callers match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrCapacityExceeded  = errors.New("active order capacity exceeded")
	ErrAlreadyClaimed    = errors.New("order already claimed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrBankNotVerified   = errors.New("bank account not verified")
	ErrGateway           = errors.New("payout gateway error")
	ErrValidation        = errors.New("validation error")
)
