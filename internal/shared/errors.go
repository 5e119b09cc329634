package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Error taxonomy surfaced to callers
	ErrValidation   = fmt.Errorf("validation failed")
	ErrNotFound     = fmt.Errorf("not found")
	ErrExternalSync = fmt.Errorf("external sync failed")
	ErrPersistence  = fmt.Errorf("persistence failed")

	// Validation specifics
	ErrUnsupportedMediaType = fmt.Errorf("%w: unsupported media type", ErrValidation)
	ErrInvalidRule          = fmt.Errorf("%w: invalid rule", ErrValidation)

	// Lookups
	ErrOwnerNotFound    = fmt.Errorf("owner %w", ErrNotFound)
	ErrListNotFound     = fmt.Errorf("smart list %w", ErrNotFound)
	ErrIgnoreNotFound   = fmt.Errorf("ignore entry %w", ErrNotFound)
	ErrPlaylistNotFound = fmt.Errorf("playlist %w", ErrNotFound)

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")

	// Daemon errors
	ErrAlreadyRunning = fmt.Errorf("another instance is already running")

	// Scheduler errors
	ErrRefreshInProgress = fmt.Errorf("refresh already running for this owner")
)

// ValidationError describes a single invalid field. It unwraps to [ErrValidation].
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrValidation
}
