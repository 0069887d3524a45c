package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrPermissionDenied  = errors.New("permission denied")

	ErrWalletNotFound      = fmt.Errorf("wallet %w", ErrNotFound)
	ErrGoalNotFound        = fmt.Errorf("savings goal %w", ErrNotFound)
	ErrVillageBankNotFound = fmt.Errorf("village bank %w", ErrNotFound)
	ErrRecipientNotFound   = fmt.Errorf("recipient %w", ErrNotFound)

	ErrInvalidAmount       = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrUnsupportedCurrency = fmt.Errorf("%w: unsupported currency", ErrValidation)
	ErrCurrencyMismatch    = fmt.Errorf("%w: currency does not match", ErrValidation)
	ErrStaleQuote          = fmt.Errorf("%w: exchange rate does not match the current quote", ErrValidation)
	ErrGoalOvershoot       = fmt.Errorf("%w: contribution would exceed the goal target", ErrValidation)
	ErrWalletExists        = fmt.Errorf("%w: wallet already exists", ErrValidation)
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

// IsClientError reports whether err is caused by the request rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrPermissionDenied)
}
