package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Leganyst/cleaning-platform/internal/apperror"
)

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details string `json:"details,omitempty"`
	State   string `json:"state,omitempty"`
	Event   string `json:"event,omitempty"`
}

// statusFor подбирает HTTP-код и текст для пользователя по виду ошибки.
func statusFor(kind apperror.Kind) (int, string) {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest, "invalid input"
	case apperror.KindNotFound:
		return http.StatusNotFound, "not found"
	case apperror.KindForbidden:
		return http.StatusForbidden, "forbidden"
	case apperror.KindInvalidTransition:
		return http.StatusConflict, "action no longer available"
	case apperror.KindClaimAlreadyAssigned:
		return http.StatusConflict, "this job was just taken"
	case apperror.KindClaimNotEligible:
		return http.StatusUnprocessableEntity, "provider is not eligible for this job"
	case apperror.KindCollaboratorTimeout:
		return http.StatusGatewayTimeout, "upstream timeout"
	case apperror.KindCollaboratorUnavailable:
		return http.StatusServiceUnavailable, "upstream unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	kind := apperror.KindOf(err)
	status, msg := statusFor(kind)
	resp := errorResponse{Error: msg, Kind: string(kind)}

	var typed *apperror.Error
	if errors.As(err, &typed) {
		resp.Details = typed.Error()
		resp.State = typed.State
		resp.Event = typed.Event
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", RequestIDFrom(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		if kind == apperror.KindInternal {
			resp.Details = ""
		}
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Error:   "invalid input",
		Kind:    string(apperror.KindValidation),
		Details: err.Error(),
	})
}
