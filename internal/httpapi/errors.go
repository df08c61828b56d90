package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"maru-platform/internal/auth"
	"maru-platform/internal/rbac"
	"maru-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
)

const (
	CodeBadRequest = "COMMON_400"
	CodeNotFound   = "COMMON_404"
	CodeInternal   = "COMMON_500"
)

const timestampLayout = "2006-01-02T15:04:05"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	Path      string `json:"path"`
}

// classify maps err onto a status, application code and user-facing message.
func classify(err error) (int, string, string) {
	if code, ok := auth.CodeOf(err); ok {
		if code == auth.CodeAccessDenied {
			return http.StatusForbidden, string(code), code.Message()
		}
		return http.StatusUnauthorized, string(code), code.Message()
	}
	switch {
	case errors.Is(err, rbac.ErrAuthorizationDenied):
		return http.StatusForbidden, string(auth.CodeAccessDenied), auth.CodeAccessDenied.Message()
	case errors.Is(err, rbac.ErrUnauthenticated):
		return http.StatusUnauthorized, string(auth.CodeAuthRequired), auth.CodeAuthRequired.Message()
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, CodeBadRequest, "invalid request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "resource not found"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal server error"
	}
}

// WriteError renders err as an ErrorResponse and aborts the chain.
func WriteError(c *gin.Context, err error) {
	status, code, msg := classify(err)

	log := logger.FromGin(c)
	attrs := []any{"code", code, "path", c.Request.URL.Path, "err", err}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	body := ErrorResponse{
		Timestamp: time.Now().UTC().Format(timestampLayout),
		Status:    status,
		Error:     http.StatusText(status),
		Code:      code,
		Message:   msg,
		Path:      c.Request.URL.Path,
	}
	// Internal failures keep their cause in the logs only.
	if status < http.StatusInternalServerError {
		body.Detail = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// Errors renders the last error attached by middleware or handlers, when
// nothing has been written yet.
func Errors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		WriteError(c, c.Errors.Last().Err)
	}
}

// Recovery turns panics into a 500 ErrorResponse.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		WriteError(c, fmt.Errorf("panic: %v", recovered))
	})
}

// NotFound is the NoRoute handler.
func NotFound(c *gin.Context) {
	WriteError(c, fmt.Errorf("%w: %s %s", ErrNotFound, c.Request.Method, c.Request.URL.Path))
}
