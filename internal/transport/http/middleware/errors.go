package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the payload nested under "error" in every failure response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorEnvelope wraps ErrorBody so clients always find failures under one key.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusMethodNotAllowed:    "method_not_allowed",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "validation_error",
	http.StatusTooManyRequests:     "rate_limited",
	http.StatusInternalServerError: "internal_error",
	http.StatusServiceUnavailable:  "service_unavailable",
}

// ErrorCode returns the machine-readable code for an HTTP status.
func ErrorCode(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= http.StatusInternalServerError {
		return "internal_error"
	}
	return "request_error"
}

// NewErrorEnvelope builds the envelope for status, tagging it with the request id.
func NewErrorEnvelope(c *gin.Context, status int, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{
		Code:      ErrorCode(status),
		Message:   message,
		Details:   details,
		RequestID: GetRequestID(c),
	}}
}

// AbortWithError writes the error envelope and stops the handler chain.
func AbortWithError(c *gin.Context, status int, message string, details any) {
	c.AbortWithStatusJSON(status, NewErrorEnvelope(c, status, message, details))
}
