// Package realtime fans background-task events out to the websocket
// connections of the user who submitted the task.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"student-records-api/internal/tasks"
)

// Client represents a single websocket client connection.
// The network conn itself is managed in the ws handler.
type Client interface {
	Send(message []byte) bool
	Close()
}

// Event is the message pushed to clients when one of their tasks finishes.
type Event struct {
	Type     string     `json:"type"`
	TaskID   string     `json:"task_id"`
	Kind     tasks.Kind `json:"kind"`
	Status   string     `json:"status"`
	Affected int64      `json:"affected"`
	Error    string     `json:"error,omitempty"`
	Finished time.Time  `json:"finished_at"`
}

// TaskEvent converts a task result into an Event.
func TaskEvent(res tasks.Result) Event {
	ev := Event{
		Type:     "task_completed",
		TaskID:   res.ID,
		Kind:     res.Kind,
		Status:   "succeeded",
		Affected: res.Affected,
		Finished: time.Now().UTC(),
	}
	if res.Err != nil {
		ev.Status = "failed"
		ev.Error = res.Err.Error()
	}
	return ev
}

// Hub maintains active user connections and broadcasts events to them.
type Hub struct {
	mu              sync.RWMutex
	userIDToClients map[uint]map[Client]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{userIDToClients: make(map[uint]map[Client]struct{})}
}

// Register adds a client under a user ID.
func (h *Hub) Register(userID uint, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.userIDToClients[userID]; !ok {
		h.userIDToClients[userID] = make(map[Client]struct{})
	}
	h.userIDToClients[userID][client] = struct{}{}
}

// Unregister removes a client; if user has no more clients, cleans up map.
func (h *Hub) Unregister(userID uint, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.userIDToClients[userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.userIDToClients, userID)
		}
	}
}

// Connected reports how many clients a user has open.
func (h *Hub) Connected(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userIDToClients[userID])
}

// Broadcast sends a message to all clients of a user and returns how many
// accepted it. Failed clients are cleaned up by their handler.
func (h *Hub) Broadcast(userID uint, message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.userIDToClients[userID] {
		if c.Send(message) {
			sent++
		}
	}
	return sent
}

// NotifyTask is a tasks.Options.OnDone hook that pushes the result to its
// owner.
func (h *Hub) NotifyTask(res tasks.Result) {
	msg, err := json.Marshal(TaskEvent(res))
	if err != nil {
		return
	}
	h.Broadcast(res.UserID, msg)
}
