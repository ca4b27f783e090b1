package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/poldracklab/cogat/internal/domain/atlas"
	"github.com/poldracklab/cogat/internal/platform/apierr"
)

type APIError struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondAppError maps store and service errors onto HTTP statuses. Link
// failures are checked before not-found because a LinkError wraps both.
func RespondAppError(c *gin.Context, err error) {
	var (
		apiErr  *apierr.Error
		dup     *atlas.DuplicateNameError
		propErr *atlas.PropertyError
	)
	switch {
	case errors.As(err, &apiErr):
		c.JSON(statusOr(apiErr.Status, http.StatusInternalServerError), ErrorEnvelope{Error: APIError{
			Message: apiErr.Error(),
			Code:    apiErr.Code,
			Fields:  apiErr.Fields,
			Details: apiErr.Details,
		}})
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, ErrorEnvelope{Error: APIError{
			Message: dup.Error(),
			Code:    "duplicate_name",
			Details: map[string]any{"ids": dup.IDs},
		}})
	case errors.As(err, &propErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorEnvelope{Error: APIError{
			Message: "validation failed",
			Code:    "validation_failed",
			Fields:  propErr.Fields,
		}})
	case errors.Is(err, atlas.ErrLinkFailure):
		c.JSON(http.StatusUnprocessableEntity, ErrorEnvelope{Error: APIError{
			Message: "unable to associate nodes",
			Code:    "link_failed",
			Details: map[string]any{"cause": err.Error()},
		}})
	case errors.Is(err, atlas.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, atlas.ErrInvalidRelation):
		RespondError(c, http.StatusBadRequest, "invalid_relation", err)
	case errors.Is(err, atlas.ErrUnknownEntityType):
		RespondError(c, http.StatusBadRequest, "unknown_entity_type", err)
	case errors.Is(err, atlas.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, context.DeadlineExceeded):
		RespondError(c, http.StatusGatewayTimeout, "timeout", errors.New("query timed out"))
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", errors.New("internal error"))
	}
}

func statusOr(status, fallback int) int {
	if status == 0 {
		return fallback
	}
	return status
}
