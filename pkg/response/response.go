package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cadot-io/user-api/internal/apperrors"
)

// APIResponse is the envelope every endpoint returns. Error carries the
// machine-readable kind plus optional field details; internal causes never
// leak past the boundary.
type APIResponse[T any] struct {
	Status    int         `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id"`
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      T           `json:"data,omitempty"`
	Meta      interface{} `json:"meta,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody is the machine-readable error payload.
type ErrorBody struct {
	Kind    apperrors.Kind    `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func Success[T any](ctx *gin.Context, status int, data T, message string, meta interface{}) {
	if status == 0 {
		status = http.StatusOK
	}
	ctx.JSON(status, APIResponse[T]{
		Status:    status,
		Timestamp: time.Now(),
		RequestID: ctx.GetString("request_id"),
		Success:   true,
		Message:   message,
		Data:      data,
		Meta:      meta,
	})
}

// Fail writes a taxonomy error derived from err.
func Fail(ctx *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	write(ctx, apperrors.HTTPStatus(kind), kind, apperrors.Message(err), nil)
}

// FailValidation writes a validation error with per-field details.
func FailValidation(ctx *gin.Context, details map[string]string) {
	write(ctx, http.StatusBadRequest, apperrors.KindValidation, "invalid payload", details)
}

// AbortWith writes the error and aborts the handler chain; used by middleware.
func AbortWith(ctx *gin.Context, err error) {
	Fail(ctx, err)
	ctx.Abort()
}

func write(ctx *gin.Context, status int, kind apperrors.Kind, message string, details map[string]string) {
	ctx.JSON(status, APIResponse[any]{
		Status:    status,
		Timestamp: time.Now(),
		RequestID: ctx.GetString("request_id"),
		Success:   false,
		Message:   message,
		Error:     &ErrorBody{Kind: kind, Message: message, Details: details},
	})
}
