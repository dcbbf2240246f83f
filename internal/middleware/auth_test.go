package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"student-records-api/internal/auth"
	"student-records-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	users map[string]models.User
	err   error
	calls int
}

func (s *stubValidator) Validate(_ context.Context, token string) (models.User, bool, error) {
	s.calls++
	if s.err != nil {
		return models.User{}, false, s.err
	}
	u, ok := s.users[token]
	return u, ok, nil
}

func protectedRouter(v auth.SessionValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(SessionAuth(v))
	r.GET("/protected", func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "username": c.GetString(ContextUsername)})
	})
	return r
}

func TestSessionAuth_Success(t *testing.T) {
	v := &stubValidator{users: map[string]models.User{"tok": {ID: 3, Username: "alice"}}}
	r := protectedRouter(v)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "tok"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":3,"username":"alice"}`, w.Body.String())
}

func TestSessionAuth_MissingCookie(t *testing.T) {
	v := &stubValidator{}
	r := protectedRouter(v)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, v.calls)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, CodeUnauthorized, body.Code)
	require.Equal(t, w.Header().Get("X-Request-ID"), body.RequestID)
}

func TestSessionAuth_UnknownToken(t *testing.T) {
	r := protectedRouter(&stubValidator{})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "stale"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionAuth_ValidatorError(t *testing.T) {
	r := protectedRouter(&stubValidator{err: errors.New("db locked")})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "tok"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
