package onebot

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/replyclaw/pkg/logger"
)

// Upstream is one connected OneBot peer. Writes are serialized; the
// WebSocket library allows only one concurrent writer per connection.
type Upstream struct {
	ID   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

// WriteJSON marshals v and sends it as a text frame.
func (u *Upstream) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &TransportError{Op: "encode", Err: err}
	}
	return u.WriteMessage(data)
}

// WriteMessage sends raw bytes as a text frame.
func (u *Upstream) WriteMessage(data []byte) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	if err := u.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Registry tracks connected peers. Candidates are listed in registration
// order; a connection that fails to send is removed by the dispatcher,
// not by the registry itself.
type Registry struct {
	mu        sync.RWMutex
	upstreams map[string]*Upstream
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{upstreams: make(map[string]*Upstream)}
}

// Register adds a connection and returns its handle.
func (r *Registry) Register(conn *websocket.Conn) *Upstream {
	up := &Upstream{ID: uuid.NewString(), conn: conn}
	r.mu.Lock()
	r.upstreams[up.ID] = up
	r.order = append(r.order, up.ID)
	count := len(r.upstreams)
	r.mu.Unlock()

	logger.InfoCF("onebot", "Upstream connected", map[string]any{
		"upstream_id": up.ID,
		"upstreams":   count,
	})
	return up
}

// Unregister removes a connection.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.upstreams, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	count := len(r.upstreams)
	r.mu.Unlock()

	logger.InfoCF("onebot", "Upstream disconnected", map[string]any{
		"upstream_id": id,
		"upstreams":   count,
	})
}

// ListActive returns the registered upstreams in registration order.
func (r *Registry) ListActive() []*Upstream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Upstream, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.upstreams[id])
	}
	return out
}

// Count returns the number of registered upstreams.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.upstreams)
}
