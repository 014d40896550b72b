package http

import (
	"errors"
	"net/http"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
)

type mappedError struct {
	status    int
	code      string
	message   string
	retryable bool
}

func mapDomainError(err error) mappedError {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return mappedError{http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), false}
	case errors.Is(err, domain.ErrUnauthorized):
		return mappedError{http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials", false}
	case errors.Is(err, domain.ErrPermissionDenied):
		return mappedError{http.StatusForbidden, "FORBIDDEN", err.Error(), false}
	case errors.Is(err, domain.ErrNotFound):
		return mappedError{http.StatusNotFound, "NOT_FOUND", err.Error(), false}
	case errors.Is(err, domain.ErrQuotaExceeded):
		return mappedError{http.StatusConflict, "QUOTA_EXCEEDED", err.Error(), false}
	case errors.Is(err, domain.ErrTemplateInUse):
		return mappedError{http.StatusConflict, "TEMPLATE_IN_USE", err.Error(), false}
	case errors.Is(err, domain.ErrConflict):
		return mappedError{http.StatusConflict, "CONFLICT", err.Error(), true}
	case errors.Is(err, domain.ErrReloadParse):
		return mappedError{http.StatusUnprocessableEntity, "RELOAD_PARSE_ERROR", err.Error(), false}
	case errors.Is(err, domain.ErrPlatform):
		return mappedError{http.StatusBadGateway, "PLATFORM_ERROR", "chat platform request failed", true}
	case errors.Is(err, domain.ErrNotifier):
		return mappedError{http.StatusBadGateway, "NOTIFIER_ERROR", "notifier request failed", false}
	case errors.Is(err, domain.ErrPersistence):
		return mappedError{http.StatusServiceUnavailable, "PERSISTENCE_ERROR", "storage unavailable", true}
	case errors.Is(err, domain.ErrUnavailable):
		return mappedError{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", err.Error(), true}
	default:
		return mappedError{http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", false}
	}
}
