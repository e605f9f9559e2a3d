package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so callers can branch with errors.Is without importing vendor packages.
var (
	// Request / decision taxonomy
	ErrValidation      = errors.New("invalid or incomplete request")
	ErrExternalService = errors.New("external service call failed")
	ErrAdvisorParse    = errors.New("advisor response could not be parsed")
	ErrStateConflict   = errors.New("an open record already exists for the symbol")
	ErrQuantization    = errors.New("order size cannot be quantized")

	// Exchange specific errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrTimeout              = errors.New("operation timed out")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrPositionNotFound     = errors.New("position not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Persistence specific errors
	ErrNotFound     = errors.New("record not found")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
