package devserver

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub tracks the live coaching sessions
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *zap.Logger
}

// NewHub creates a new session hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*session),
		logger:   logger,
	}
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("Session registered",
		zap.String("sessionID", s.id),
		zap.String("userID", s.userID),
		zap.Int("active", count))
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("Session unregistered",
		zap.String("sessionID", s.id),
		zap.Int("active", count))
}

// Count returns the number of live sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// idleSince returns sessions that have not received a message since cutoff.
func (h *Hub) idleSince(cutoff time.Time) []*session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*session
	for _, s := range h.sessions {
		if s.lastSeen().Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// CloseAll closes every live session connection
func (h *Hub) CloseAll() {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.conn.Close()
	}
}
