package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"anwesha-auth/internal/domain"
	"anwesha-auth/internal/identity"
	"anwesha-auth/internal/repository"
	"anwesha-auth/internal/service"
)

// statusFor traduce los errores de sesion e identidad a codigos HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, service.ErrRegistrationIncomplete):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrProfileMissing):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrStatusRegression),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrAnweshaIDReassigned),
		errors.Is(err, domain.ErrUIDImmutable),
		errors.Is(err, identity.ErrAlreadyVerified):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrInvalidFieldPath),
		errors.Is(err, domain.ErrInvalidRecord):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, repository.ErrDocumentNotFound),
		errors.Is(err, identity.ErrAccountNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, identity.ErrOTPNotRequested),
		errors.Is(err, identity.ErrOTPExpired),
		errors.Is(err, identity.ErrOTPInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrRateLimited),
		errors.Is(err, identity.ErrOTPAttemptsExceeded):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, identity.ErrEmailSendFailure):
		return http.StatusServiceUnavailable, "email delivery unavailable"
	case errors.Is(err, service.ErrAnweshaIDExhausted):
		return http.StatusServiceUnavailable, "could not allocate anwesha id, try again"
	case errors.Is(err, service.ErrSessionDisposed):
		return http.StatusGone, "session ended"
	default:
		return http.StatusInternalServerError, ""
	}
}

// writeError responde con el codigo de statusFor; los 500 se loguean y usan fallback como mensaje.
func writeError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	code, msg := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error(fallback, zap.Error(err))
		msg = fallback
	}
	c.JSON(code, gin.H{"error": msg})
}
