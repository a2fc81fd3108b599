package utils

import (
	"errors"
	"net/http"

	"doc-rag-platform/models"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithServiceUnavailable sends a 503 for retryable upstream failures
func RespondWithServiceUnavailable(c *gin.Context, message string) {
	RespondWithError(c, http.StatusServiceUnavailable, "service_unavailable", message, nil)
}

// RespondWithPipelineError maps a pipeline failure onto the HTTP envelope.
// Upstream outages and unpersisted answers are retryable 503s; malformed
// input is the caller's fault; anything unclassified is a 500.
func RespondWithPipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		RespondWithNotFound(c, err.Error())
	case errors.Is(err, models.ErrMalformedInput):
		RespondWithBadRequest(c, err.Error(), nil)
	case errors.Is(err, models.ErrRateLimited),
		errors.Is(err, models.ErrUpstreamUnavailable),
		errors.Is(err, models.ErrAnswerNotPersisted):
		RespondWithServiceUnavailable(c, err.Error())
	default:
		RespondWithInternalError(c, "request failed", err.Error())
	}
}
