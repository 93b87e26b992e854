// Package socketref is a reference implementation of the real-time
// socket collaborator: it owns the playerId → sessionId map and the
// send_notify delivery path. It exists so the engine's notification
// fan-out (server.Notifier) can be exercised end-to-end in integration
// tests without a production socket layer; it is not part of the
// matching algorithm itself.
package socketref

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yadneshx17/matchmakingEngine/server"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks connected sessions and implements both
// server.SessionResolver (read side) and server.Dispatcher (write
// side). The core never mutates the map directly; only ServeHTTP (on
// connect) and disconnect (when a read loop ends) do.
type Hub struct {
	logger *zap.Logger

	mu        sync.RWMutex
	sessions  map[string]*websocket.Conn // sessionId -> conn
	players   map[string]string          // playerId -> sessionId
	observers map[*websocket.Conn]bool   // dashboard tail connections
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:    logger,
		sessions:  make(map[string]*websocket.Conn),
		players:   make(map[string]string),
		observers: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the connection and registers it under the
// "playerId" query parameter, mirroring the original socket manager's
// connect handshake.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		http.Error(w, "missing playerId", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("socketref: upgrade failed", zap.Error(err))
		}
		return
	}

	sessionID := playerID + ":" + r.RemoteAddr
	h.mu.Lock()
	h.sessions[sessionID] = conn
	h.players[playerID] = sessionID
	h.mu.Unlock()

	go h.readLoop(playerID, sessionID, conn)
}

func (h *Hub) readLoop(playerID, sessionID string, conn *websocket.Conn) {
	defer h.disconnect(playerID, sessionID, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) disconnect(playerID, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
	if h.players[playerID] == sessionID {
		delete(h.players, playerID)
	}
	_ = conn.Close()
}

// ServeDashboard upgrades an observer connection (cmd/dashboardtail) that
// only ever reads: every event broadcast via BroadcastDashboard is pushed
// to it until it hangs up.
func (h *Hub) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("socketref: dashboard upgrade failed", zap.Error(err))
		}
		return
	}

	h.mu.Lock()
	h.observers[conn] = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.observers, conn)
			h.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// BroadcastDashboard fans one dashboard_events payload out to every
// connected observer. Write failures drop the observer's message only;
// the read loop notices the dead connection and unregisters it.
func (h *Hub) BroadcastDashboard(evt server.Event) {
	envelope := struct {
		Event   string       `json:"event"`
		Payload server.Event `json:"payload"`
	}{Event: server.EventName(evt), Payload: evt}

	data, err := json.Marshal(envelope)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("socketref: marshalling dashboard event", zap.Error(err))
		}
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.observers))
	for conn := range h.observers {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil && h.logger != nil {
			h.logger.Warn("socketref: dashboard write failed", zap.Error(err))
		}
	}
}

// SessionID implements server.SessionResolver.
func (h *Hub) SessionID(playerID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sid, ok := h.players[playerID]
	return sid, ok
}

// Deliver implements server.Dispatcher: sends a send_notify message to
// the session over its websocket connection.
func (h *Hub) Deliver(_ context.Context, sessionID string, payload server.NotifyPayload) error {
	h.mu.RLock()
	conn, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil // session disappeared between resolve and dispatch
	}

	envelope := struct {
		Event   string               `json:"event"`
		Payload server.NotifyPayload `json:"payload"`
	}{Event: "send_notify", Payload: payload}

	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
