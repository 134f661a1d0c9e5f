package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrInvalidAmount   = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrAmountPrecision = fmt.Errorf("%w: amount has more than 2 decimal places", ErrInvalidAmount)

	ErrNotFound       = errors.New("not found")
	ErrPlayerNotFound = fmt.Errorf("player %w", ErrNotFound)
	ErrRoundNotFound  = fmt.Errorf("round %w", ErrNotFound)
	ErrOrderNotFound  = fmt.Errorf("order %w", ErrNotFound)

	ErrRoundOwnership    = errors.New("round does not belong to player")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrGateway           = errors.New("payment gateway error")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
