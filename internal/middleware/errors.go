package middleware

import (
	"github.com/gin-gonic/gin"
)

// Error codes carried in the "code" field of error responses.
const (
	CodeUnauthorized = "unauthorized"
	CodeConflict     = "conflict"
	CodeNotFound     = "not_found"
	CodeBadRequest   = "bad_request"
	CodeUnavailable  = "unavailable"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// AbortError writes the error envelope and stops the handler chain.
func AbortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFrom(c),
	})
}
