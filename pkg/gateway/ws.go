package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/replyclaw/pkg/logger"
	"github.com/tinyland-inc/replyclaw/pkg/onebot"
)

// handleUpstream accepts a reverse WebSocket connection from a OneBot
// peer and runs its read loop: reply frames go to the dispatcher, event
// frames through dedupe onto the bus.
func (s *Server) handleUpstream(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	up := s.registry.Register(conn)
	defer func() {
		s.registry.Unregister(up.ID)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if onebot.IsActionReply(data) {
			if !s.dispatcher.Resolve(onebot.ParseActionReply(data)) {
				logger.DebugC("gateway", "Dropped orphan action reply")
			}
			continue
		}
		event, err := onebot.ParseEvent(data)
		if err != nil {
			logger.DebugCF("gateway", "Dropped unparseable frame", map[string]any{"error": err.Error()})
			continue
		}
		if s.dedupe.Seen(event) {
			logger.DebugCF("gateway", "Dropped duplicate event", map[string]any{
				"message_id": event.MessageID(),
			})
			continue
		}
		if err := s.events.Publish(context.Background(), event); err != nil {
			return
		}
	}
}

// authorized checks the configured access token against the
// Authorization header or the access_token query parameter. An empty
// configured token disables the check.
func (s *Server) authorized(r *http.Request) bool {
	token := s.cfg.OneBot.AccessToken
	if token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.TrimPrefix(auth, "Bearer ") == token {
		return true
	}
	return r.URL.Query().Get("access_token") == token
}

// handleObserver attaches a mirror client. Observers only receive; any
// frames they send are discarded.
func (s *Server) handleObserver(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.hub.add(conn)
	defer s.hub.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// observerHub fans inbound events out to mirror clients. A client whose
// write fails is dropped.
type observerHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newObserverHub() *observerHub {
	return &observerHub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *observerHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *observerHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *observerHub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

func (h *observerHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
