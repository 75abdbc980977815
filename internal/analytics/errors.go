package analytics

import (
	"errors"
	"fmt"
)

// Error categories returned by the analytics operations. Callers match them
// with errors.Is; the wrapped message carries the detail.
var (
	ErrNotFound     = errors.New("campaign not found")
	ErrForbidden    = errors.New("not authorized to access this campaign")
	ErrInvalidRange = errors.New("invalid date range")
	ErrValidation   = errors.New("validation failed")
	ErrStoreFailure = errors.New("store failure")
)

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ErrorKind returns a short label for err's category, used in metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "store"
	}
}
