package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Strategy errors
	ErrInvalidGridConfiguration = errors.New("invalid grid configuration")
	ErrInsufficientFunds        = errors.New("insufficient funds for operation")
	ErrPositionAlreadyOpen      = errors.New("exchange position already open for symbol")
	ErrReconciliationMismatch   = errors.New("local state disagrees with exchange")
	ErrStaleOrRaceLoss          = errors.New("order already final on the exchange")
	ErrQueueFull                = errors.New("symbol event queue is full")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrExchangeRejected     = errors.New("exchange rejected the request")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderWouldTrigger    = errors.New("order would immediately trigger")
	ErrDuplicateClientID    = errors.New("client order id already used")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)

// IsTransient reports whether err is worth retrying unchanged.
func IsTransient(err error) bool {
	return errors.Is(err, ErrExchangeUnavailable) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
