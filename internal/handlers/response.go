package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thomasmilici/domux-backend/internal/pkg/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondAppError maps a pipeline error onto the wire: the HTTP status comes
// from the error kind, the message is the user-facing one.
func RespondAppError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), ErrorEnvelope{
		Error: APIError{
			Message: apperr.UserMessage(err),
			Code:    string(apperr.KindOf(err)),
		},
	})
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
