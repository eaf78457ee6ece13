package founders

import "errors"

// Client errors. Handlers map these to 400.
var (
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("email already registered")
	ErrInvalidTier    = errors.New("invalid plan or billing cycle")
	ErrSignupNotFound = errors.New("signup not found")
)

// Server errors. Handlers map these to 500.
var (
	ErrStore         = errors.New("failed to save signup")
	ErrStorageUpdate = errors.New("failed to update signup after subscription")
)

// IsClientError reports whether err was caused by the request rather than by
// the store or the processor.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTier) ||
		errors.Is(err, ErrSignupNotFound)
}
