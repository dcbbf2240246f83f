package handlers

import (
	"errors"
	"net/http"

	"student-records-api/internal/auth"
	"student-records-api/internal/middleware"
	"student-records-api/internal/repo"
	"student-records-api/internal/services"
	"student-records-api/internal/tasks"

	"github.com/gin-gonic/gin"
)

// fail maps a domain error onto the JSON error envelope. Unknown errors are
// logged and reported as 500 without leaking their text.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		middleware.AbortError(c, http.StatusBadRequest, middleware.CodeConflict, "Username already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		middleware.AbortError(c, http.StatusUnauthorized, middleware.CodeUnauthorized, "Incorrect username or password")
	case errors.Is(err, auth.ErrInvalidInput):
		middleware.AbortError(c, http.StatusBadRequest, middleware.CodeBadRequest, err.Error())
	case errors.Is(err, repo.ErrNotFound):
		middleware.AbortError(c, http.StatusNotFound, middleware.CodeNotFound, "Student not found")
	case errors.Is(err, services.ErrFileNotFound):
		middleware.AbortError(c, http.StatusNotFound, middleware.CodeNotFound, "File not found")
	case errors.Is(err, services.ErrEmptyIDList), errors.Is(err, services.ErrInvalidPath):
		middleware.AbortError(c, http.StatusBadRequest, middleware.CodeBadRequest, err.Error())
	case errors.Is(err, tasks.ErrQueueFull), errors.Is(err, tasks.ErrClosed):
		middleware.AbortError(c, http.StatusServiceUnavailable, middleware.CodeUnavailable, "Background queue unavailable, retry later")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("request failed")
		middleware.AbortError(c, http.StatusInternalServerError, middleware.CodeInternal, "internal server error")
	}
}

func badRequest(c *gin.Context, msg string) {
	middleware.AbortError(c, http.StatusBadRequest, middleware.CodeBadRequest, msg)
}

// MessageResponse is the body of actions that return no resource.
type MessageResponse struct {
	Message string `json:"message"`
}

// TaskAccepted is returned when work was queued in the background.
type TaskAccepted struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}
