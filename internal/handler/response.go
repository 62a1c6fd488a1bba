package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/legalconnect/scheduler/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// RespondError maps the error taxonomy onto HTTP status codes. Unknown
// errors surface as 500 with a generic message.
func RespondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch apperrors.CodeOf(err) {
	case apperrors.ErrValidation:
		status = http.StatusBadRequest
		message = err.Error()
	case apperrors.ErrConflict:
		status = http.StatusConflict
		message = err.Error()
	case apperrors.ErrPermission:
		status = http.StatusForbidden
		message = err.Error()
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
		message = err.Error()
	case apperrors.ErrTransient:
		status = http.StatusBadGateway
		message = "upstream temporarily unavailable, please retry"
	}

	c.JSON(status, NewErrorResponse(message))
}
