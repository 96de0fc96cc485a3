package api

import (
	"net/http"

	apperrors "rapidresponse/internal/common/errors"

	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Details string              `json:"details,omitempty"`
}

// statusFor maps an error code to its HTTP status. Codes are matched through their
// parent relation, so CLASSIFICATION_FAILED maps like UPSTREAM_UNAVAILABLE.
func statusFor(code apperrors.ErrorCode) int {
	switch {
	case apperrors.IsKindOf(code, apperrors.ErrCodeInvalidInput):
		return http.StatusBadRequest
	case apperrors.IsKindOf(code, apperrors.ErrCodeNotFound):
		return http.StatusNotFound
	case apperrors.IsKindOf(code, apperrors.ErrCodeInvalidTransition):
		return http.StatusConflict
	case apperrors.IsKindOf(code, apperrors.ErrCodeUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	stdErr, ok := apperrors.AsStandard(err)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorBody{
			Code:    apperrors.ErrCodeInternal,
			Message: "Internal server error",
		}})
		return
	}

	body := errorBody{Code: stdErr.Code, Message: stdErr.Message, Details: stdErr.Details}
	status := statusFor(stdErr.Code)
	if status == http.StatusInternalServerError {
		// Storage details stay in the log.
		body.Details = ""
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func invalidInput(c *gin.Context, details string) {
	respondError(c, apperrors.NewInvalidInputError(details))
}
