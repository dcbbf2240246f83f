package handlers

import (
	"context"
	"net/http"

	"student-records-api/internal/auth"
	"student-records-api/internal/middleware"
	"student-records-api/internal/models"

	"github.com/gin-gonic/gin"
)

// Sessions is the part of the session store the auth endpoints use.
type Sessions interface {
	Register(ctx context.Context, username, password string) (models.User, error)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	Logout(ctx context.Context, token string) error
}

// CredentialsRequest is the register and login payload.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler serves /auth.
type AuthHandler struct {
	sessions Sessions
	cookie   auth.CookieOptions
}

// NewAuthHandler returns an AuthHandler issuing cookies with opts.
func NewAuthHandler(s Sessions, opts auth.CookieOptions) *AuthHandler {
	return &AuthHandler{sessions: s, cookie: opts}
}

// Register creates an account.
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request. Username and password are required.")
		return
	}
	if _, err := h.sessions.Register(c.Request.Context(), req.Username, req.Password); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "User registered successfully"})
}

// Login verifies credentials and sets the session cookie.
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request. Username and password are required.")
		return
	}
	sess, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	auth.SetCookie(c.Writer, sess, h.cookie)
	c.JSON(http.StatusOK, MessageResponse{Message: "Login successful"})
}

// Logout destroys the current session and clears the cookie.
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), c.GetString(middleware.ContextSessionToken)); err != nil {
		fail(c, err)
		return
	}
	auth.ClearCookie(c.Writer, h.cookie)
	c.JSON(http.StatusOK, MessageResponse{Message: "Logout successful"})
}
