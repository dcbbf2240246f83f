package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"student-records-api/internal/middleware"
	"student-records-api/internal/realtime"
	"student-records-api/internal/tasks"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestEvents_DeliversTaskCompletion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub()
	h := NewEventsHandler(hub, nil)

	r := gin.New()
	r.GET("/events", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uint(4))
		c.Next()
	}, h.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Connected(4) == 1 }, time.Second, 5*time.Millisecond)
	hub.NotifyTask(tasks.Result{ID: "t-9", Kind: tasks.KindImport, UserID: 4, Affected: 12})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev realtime.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	require.Equal(t, "t-9", ev.TaskID)
	require.EqualValues(t, 12, ev.Affected)

	_ = conn.Close()
	require.Eventually(t, func() bool { return hub.Connected(4) == 0 }, time.Second, 5*time.Millisecond)
}

func TestEvents_RequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/events", NewEventsHandler(realtime.NewHub(), nil).Serve)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://api.example.com/events", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	require.True(t, check(req("")))
	require.True(t, check(req("https://app.example.com")))
	require.True(t, check(req("http://api.example.com")))
	require.False(t, check(req("https://evil.example.com")))
	require.True(t, originChecker([]string{"*"})(req("https://evil.example.com")))
}
