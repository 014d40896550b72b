package domain

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrNotFound         = errors.New("resource not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrConflict         = errors.New("conflict")
	ErrTemplateInUse    = errors.New("template in use")
	ErrPlatform         = errors.New("platform error")
	ErrPersistence      = errors.New("persistence error")
	ErrNotifier         = errors.New("notifier error")
	ErrReloadParse      = errors.New("reload parse error")
	ErrUnavailable      = errors.New("service unavailable")
)

// IsRetryable reports whether a failed transition may be retried by the caller
// without changing its input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPlatform) || errors.Is(err, ErrPersistence)
}
