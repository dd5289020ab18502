package onebot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// wsPeer is a fake OneBot peer: a WebSocket server that records every
// frame it receives and optionally answers with a reply built from the
// request. The client side of the connection is what gets registered.
type wsPeer struct {
	conn   *websocket.Conn
	frames chan []byte
}

func newWSPeer(t *testing.T, respond func(req []byte) []byte) *wsPeer {
	t.Helper()
	frames := make(chan []byte, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
			if respond != nil {
				if out := respond(data); out != nil {
					if err := c.WriteMessage(websocket.TextMessage, out); err != nil {
						return
					}
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsPeer{conn: conn, frames: frames}
}

// pump reads reply frames off the client side and feeds them to the
// dispatcher, standing in for the gateway read loop.
func (p *wsPeer) pump(d *Dispatcher) {
	go func() {
		for {
			_, data, err := p.conn.ReadMessage()
			if err != nil {
				return
			}
			if IsActionReply(data) {
				d.Resolve(ParseActionReply(data))
			}
		}
	}()
}

func okReply(req []byte) []byte {
	echo := gjson.GetBytes(req, "echo").String()
	return []byte(`{"status":"ok","retcode":0,"data":{"message_id":555},"echo":"` + echo + `"}`)
}

func TestDispatchNoDeadlineWaitsForReply(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	peer := newWSPeer(t, func(req []byte) []byte {
		time.Sleep(150 * time.Millisecond)
		return okReply(req)
	})
	registry.Register(peer.conn)
	peer.pump(d)

	reply, err := d.Dispatch(context.Background(), "send_group_msg",
		map[string]any{"group_id": 9, "message": "slow"}, 0)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Failed() {
		t.Errorf("reply failed: %s", reply.FailureDetail())
	}
}

func TestDispatchNoDeadlineHonorsContext(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	peer := newWSPeer(t, nil) // never replies
	registry.Register(peer.conn)
	peer.pump(d)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := d.Dispatch(ctx, "send_private_msg", map[string]any{"user_id": 7, "message": "x"}, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
	if d.PendingCount() != 0 {
		t.Errorf("pending = %d after abandoned wait", d.PendingCount())
	}
}

func TestDispatchRoundTrip(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	peer := newWSPeer(t, okReply)
	registry.Register(peer.conn)
	peer.pump(d)

	reply, err := d.Dispatch(context.Background(), "send_private_msg",
		map[string]any{"user_id": 7, "message": "hi"}, 2*time.Second)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Failed() {
		t.Fatalf("reply reported failure: %s", reply.FailureDetail())
	}
	if got := reply.Get("data.message_id").Int(); got != 555 {
		t.Errorf("message_id = %d, want 555", got)
	}

	sent := <-peer.frames
	if gjson.GetBytes(sent, "action").String() != "send_private_msg" {
		t.Errorf("unexpected frame: %s", sent)
	}
	if gjson.GetBytes(sent, "echo").String() == "" {
		t.Error("frame carries no echo token")
	}
	if d.PendingCount() != 0 {
		t.Errorf("pending not drained: %d", d.PendingCount())
	}
}

func TestDispatchNoUpstream(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	_, err := d.Dispatch(context.Background(), "send_private_msg", nil, time.Second)
	if !errors.Is(err, ErrNoUpstream) {
		t.Fatalf("err = %v, want ErrNoUpstream", err)
	}
}

func TestDispatchTimeoutDoesNotResend(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	silent := newWSPeer(t, nil)
	backup := newWSPeer(t, okReply)
	registry.Register(silent.conn)
	registry.Register(backup.conn)
	backup.pump(d)

	_, err := d.Dispatch(context.Background(), "send_private_msg",
		map[string]any{"user_id": 7}, 150*time.Millisecond)
	if !errors.Is(err, ErrActionTimeout) {
		t.Fatalf("err = %v, want ErrActionTimeout", err)
	}

	// the frame reached the silent peer exactly once
	select {
	case <-silent.frames:
	case <-time.After(time.Second):
		t.Fatal("silent peer never received the frame")
	}
	// and was never retransmitted to the backup peer
	select {
	case frame := <-backup.frames:
		t.Fatalf("frame resent after timeout: %s", frame)
	case <-time.After(300 * time.Millisecond):
	}
	if registry.Count() != 2 {
		t.Errorf("registry count = %d, want 2", registry.Count())
	}
}

func TestDispatchFallsBackOnSendFailure(t *testing.T) {
	registry := NewRegistry()
	d := NewDispatcher(registry)
	dead := newWSPeer(t, nil)
	live := newWSPeer(t, okReply)
	registry.Register(dead.conn)
	registry.Register(live.conn)
	live.pump(d)

	dead.conn.Close()

	reply, err := d.Dispatch(context.Background(), "get_status", nil, 2*time.Second)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if reply.Echo() == "" {
		t.Error("reply carries no echo")
	}
	if registry.Count() != 1 {
		t.Errorf("failed upstream not unregistered: count = %d", registry.Count())
	}
}

func TestResolveFirstReplyWins(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	ch := make(chan ActionReply, 1)
	d.mu.Lock()
	d.pending["tok"] = ch
	d.mu.Unlock()

	first := ParseActionReply([]byte(`{"echo":"tok","status":"ok","data":{"n":1}}`))
	second := ParseActionReply([]byte(`{"echo":"tok","status":"ok","data":{"n":2}}`))
	if !d.Resolve(first) {
		t.Fatal("first reply not delivered")
	}
	if d.Resolve(second) {
		t.Fatal("second reply for the same token was delivered")
	}
	got := <-ch
	if got.Get("data.n").Int() != 1 {
		t.Error("waiter did not observe the first reply")
	}
}

func TestResolveOrphanReplyIgnored(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	orphan := ParseActionReply([]byte(`{"echo":"never-registered","status":"ok"}`))
	if d.Resolve(orphan) {
		t.Error("orphan reply was delivered")
	}
}
