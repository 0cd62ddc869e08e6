package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks active call sessions. Sessions are fully independent; the hub
// exists only for registration bookkeeping and shutdown.
type Hub struct {
	// Registered sessions.
	sessions map[string]*CallSession

	// Register requests from the sessions.
	register chan *CallSession

	// Unregister requests from sessions.
	unregister chan *CallSession

	mu sync.RWMutex

	logger *zap.Logger
}

// NewHub creates a new call session hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]*CallSession),
		register:   make(chan *CallSession),
		unregister: make(chan *CallSession),
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case session := <-h.register:
			h.mu.Lock()
			h.sessions[session.id] = session
			h.mu.Unlock()
			h.logger.Info("Call session registered", zap.String("sessionID", session.id))

		case session := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[session.id]; ok {
				delete(h.sessions, session.id)
				close(session.send)
			}
			h.mu.Unlock()
			h.logger.Info("Call session unregistered", zap.String("sessionID", session.id))
		}
	}
}

// Count returns the number of active call sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown force-closes every active session's socket. In-flight sessions
// observe the closed connection at their next read or write and unwind.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, session := range h.sessions {
		session.conn.Close()
	}
	h.logger.Info("Hub shutdown requested", zap.Int("activeSessions", len(h.sessions)))
}
