package realtime

import (
	"log/slog"
	"sync"

	"social/internal/metrics"
)

// Hub tracks the live sessions of one namespace and delivers events to them.
// Recipients are snapshotted under the lock and sent to outside it.
type Hub struct {
	namespace string
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewHub(namespace string, m *metrics.Metrics) *Hub {
	return &Hub{
		namespace: namespace,
		metrics:   m,
		logger:    slog.Default().With("component", "hub", "namespace", namespace),
		sessions:  make(map[string]*Session),
	}
}

func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()
}

// Remove reports whether the session was present.
func (h *Hub) Remove(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[connID]; !ok {
		return false
	}
	delete(h.sessions, connID)
	return true
}

// ToUser delivers event to every connection of userID and returns how many
// connections accepted it.
func (h *Hub) ToUser(userID string, event Event) int {
	return h.ToRoom(PersonalRoom(userID), event, "")
}

// ToRoom delivers event to every session joined to room except excludeConnID.
func (h *Hub) ToRoom(room string, event Event, excludeConnID string) int {
	return h.deliver(h.snapshot(func(s *Session) bool {
		return s.ID() != excludeConnID && s.InRoom(room)
	}), event)
}

// BroadcastAll delivers event to every session except excludeConnID.
func (h *Hub) BroadcastAll(event Event, excludeConnID string) int {
	return h.deliver(h.snapshot(func(s *Session) bool {
		return s.ID() != excludeConnID
	}), event)
}

// LeaveRoom removes every session of userID from room and returns how many
// sessions were joined.
func (h *Hub) LeaveRoom(userID, room string) int {
	left := 0
	for _, s := range h.snapshot(func(s *Session) bool { return s.UserID() == userID }) {
		if s.Leave(room) {
			left++
		}
	}
	return left
}

// Send delivers event to a single session, recording the outcome.
func (h *Hub) Send(s *Session, event Event) bool {
	return h.deliver([]*Session{s}, event) == 1
}

func (h *Hub) snapshot(match func(*Session) bool) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if match(s) {
			targets = append(targets, s)
		}
	}
	return targets
}

func (h *Hub) deliver(targets []*Session, event Event) int {
	delivered := 0
	for _, s := range targets {
		if err := s.Send(event); err != nil {
			h.metrics.Dropped(h.namespace)
			h.logger.Warn("dropping event", "event", event.EventName(), "conn_id", s.ID(), "user_id", s.UserID(), "error", err)
			continue
		}
		h.metrics.Delivered(h.namespace, event.EventName())
		delivered++
	}
	return delivered
}
