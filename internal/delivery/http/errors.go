package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err),
		errors.Is(err, domain.ErrInvalidScope),
		errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrSubmissionNotFound),
		errors.Is(err, domain.ErrProblemNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrVerdictMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidProblemData):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrPublishFailed),
		errors.Is(err, domain.ErrProblemServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Internal errors are logged and hidden.
func respondError(c *gin.Context, logger *zap.Logger, err error, fields ...zap.Field) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("Request failed", append(fields, zap.Error(err))...)
		c.JSON(status, gin.H{"error": "Internal server error"})
	case http.StatusBadGateway:
		logger.Warn("Upstream returned invalid data", append(fields, zap.Error(err))...)
		c.JSON(status, gin.H{"error": err.Error()})
	case http.StatusServiceUnavailable:
		logger.Warn("Dependency unavailable", append(fields, zap.Error(err))...)
		c.JSON(status, gin.H{"error": "Service temporarily unavailable"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}
