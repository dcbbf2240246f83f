package middleware

import (
	"net/http"

	"student-records-api/internal/auth"

	"github.com/gin-gonic/gin"
)

// Context keys set by SessionAuth.
const (
	ContextUserID       = "user_id"
	ContextUsername     = "username"
	ContextSessionToken = "session_token"
)

// SessionAuth validates the session cookie. Requests without a live session
// are rejected before any handler runs.
func SessionAuth(v auth.SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(auth.CookieName)
		if err != nil || token == "" {
			AbortError(c, http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
			return
		}

		user, ok, err := v.Validate(c.Request.Context(), token)
		if err != nil {
			LoggerFrom(c).Error().Err(err).Msg("session lookup failed")
			AbortError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
			return
		}
		if !ok {
			AbortError(c, http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired session token")
			return
		}

		// Store user info in context for use in handlers
		c.Set(ContextUserID, user.ID)
		c.Set(ContextUsername, user.Username)
		c.Set(ContextSessionToken, token)

		c.Next()
	}
}

// UserID returns the authenticated user's id set by SessionAuth.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
