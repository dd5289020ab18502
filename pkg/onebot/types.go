// Package onebot implements the bridge to OneBot 11 peers connected over
// reverse WebSocket: connection registry, action dispatch with reply
// correlation, inbound event deduplication, idempotent sends and
// background send tasks.
//
// Frames are kept as raw JSON and inspected with gjson; the peer's event
// schema is open-ended and only a handful of fields matter here.
package onebot

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ActionRequest is the frame sent to a peer to invoke an action. Echo is
// the correlation token the peer copies into its reply.
type ActionRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// IsActionReply reports whether a frame is a correlated action reply:
// any object carrying "echo" together with "status" or "retcode".
// Everything else is routed to the event path.
func IsActionReply(data []byte) bool {
	v := gjson.ParseBytes(data)
	if !v.IsObject() {
		return false
	}
	return v.Get("echo").Exists() && (v.Get("status").Exists() || v.Get("retcode").Exists())
}

// ActionReply is a decoded action reply frame.
type ActionReply struct {
	raw  gjson.Result
	data []byte
}

func ParseActionReply(data []byte) ActionReply {
	return ActionReply{raw: gjson.ParseBytes(data), data: data}
}

func (r ActionReply) Echo() string { return r.raw.Get("echo").String() }

// Failed reports an application-level failure embedded in the reply:
// a string status other than "ok", or a non-zero numeric retcode.
// Correlation still succeeded; this is the peer saying no.
func (r ActionReply) Failed() bool {
	if s := r.raw.Get("status"); s.Type == gjson.String && s.String() != "ok" {
		return true
	}
	if rc := r.raw.Get("retcode"); rc.Type == gjson.Number && rc.Int() != 0 {
		return true
	}
	return false
}

// FailureDetail renders the peer's status, retcode and wording for error
// surfaces.
func (r ActionReply) FailureDetail() string {
	status := r.raw.Get("status").String()
	retcode := r.raw.Get("retcode").Raw
	wording := strings.TrimSpace(r.raw.Get("wording").String())
	if wording == "" {
		wording = strings.TrimSpace(r.raw.Get("message").String())
	}
	return strings.TrimSpace(fmt.Sprintf("status=%s retcode=%s %s", status, retcode, wording))
}

// Get returns an arbitrary field of the reply, e.g. "data.url".
func (r ActionReply) Get(path string) gjson.Result { return r.raw.Get(path) }

// JSON returns the raw reply frame.
func (r ActionReply) JSON() []byte { return r.data }

// Event is an inbound peer event frame. Parsed lazily via gjson; the raw
// bytes are retained so the frame can be mirrored and persisted unchanged.
type Event struct {
	raw  gjson.Result
	data []byte
}

// ParseEvent decodes an event frame. It fails on non-objects and on
// objects without a post_type discriminator.
func ParseEvent(data []byte) (*Event, error) {
	v := gjson.ParseBytes(data)
	if !v.IsObject() {
		return nil, fmt.Errorf("event frame is not an object")
	}
	if !v.Get("post_type").Exists() {
		return nil, fmt.Errorf("event frame has no post_type")
	}
	return &Event{raw: v, data: data}, nil
}

func (e *Event) PostType() string { return e.raw.Get("post_type").String() }

func (e *Event) MessageType() string {
	return strings.ToLower(e.raw.Get("message_type").String())
}

func (e *Event) IsMessage() bool { return e.PostType() == "message" }

// MessageID returns the platform message identifier as a string, or ""
// when the event carries none.
func (e *Event) MessageID() string {
	id := e.raw.Get("message_id")
	if !id.Exists() || id.Type == gjson.Null {
		return ""
	}
	return id.String()
}

func (e *Event) UserID() int64  { return e.raw.Get("user_id").Int() }
func (e *Event) GroupID() int64 { return e.raw.Get("group_id").Int() }
func (e *Event) SelfID() int64  { return e.raw.Get("self_id").Int() }
func (e *Event) Time() int64    { return e.raw.Get("time").Int() }

// SenderID prefers sender.user_id over the top-level user_id; -1 when
// neither is present.
func (e *Event) SenderID() int64 {
	if v := e.raw.Get("sender.user_id"); v.Exists() {
		return v.Int()
	}
	if v := e.raw.Get("user_id"); v.Exists() {
		return v.Int()
	}
	return -1
}

// SenderName returns the group card if set, else the nickname, else "".
func (e *Event) SenderName() string {
	if card := strings.TrimSpace(e.raw.Get("sender.card").String()); card != "" {
		return card
	}
	return strings.TrimSpace(e.raw.Get("sender.nickname").String())
}

// IsFromSelf reports whether the event was produced by the bot account
// itself. Requires both identifiers to be present and non-negative.
func (e *Event) IsFromSelf() bool {
	sender := e.SenderID()
	self := int64(-2)
	if v := e.raw.Get("self_id"); v.Exists() {
		self = v.Int()
	}
	return sender >= 0 && self >= 0 && sender == self
}

// PlainText extracts the human-readable text of a message event:
// raw_message when present, otherwise the message string, otherwise the
// concatenated text segments of an array-form message.
func (e *Event) PlainText() string {
	if raw := strings.TrimSpace(e.raw.Get("raw_message").String()); raw != "" {
		return raw
	}
	msg := e.raw.Get("message")
	switch {
	case msg.Type == gjson.String:
		return strings.TrimSpace(msg.String())
	case msg.IsArray():
		var parts []string
		msg.ForEach(func(_, seg gjson.Result) bool {
			if text := seg.Get("data.text"); text.Type == gjson.String && strings.TrimSpace(text.String()) != "" {
				parts = append(parts, strings.TrimSpace(text.String()))
			}
			return true
		})
		return strings.TrimSpace(strings.Join(parts, " "))
	}
	return ""
}

// JSON returns the raw event frame.
func (e *Event) JSON() []byte { return e.data }

// SessionInfo identifies the conversation a message event belongs to.
type SessionInfo struct {
	SessionType string // "private" | "group"
	PeerID      int64
	Title       string
	UpdatedAt   int64
}

func (s SessionInfo) ID() string {
	return fmt.Sprintf("%s-%d", s.SessionType, s.PeerID)
}

// Session extracts session metadata from a message event. Returns false
// for non-message events, unsupported session types, and events without
// a usable peer identifier.
func (e *Event) Session() (SessionInfo, bool) {
	if !e.IsMessage() {
		return SessionInfo{}, false
	}
	mt := e.MessageType()
	if mt != "private" && mt != "group" {
		return SessionInfo{}, false
	}

	var peerField gjson.Result
	if mt == "group" {
		peerField = e.raw.Get("group_id")
	} else {
		peerField = e.raw.Get("user_id")
	}
	if !peerField.Exists() || peerField.Type == gjson.Null {
		return SessionInfo{}, false
	}
	peerID := peerField.Int()
	if peerID == 0 && peerField.String() != "0" {
		return SessionInfo{}, false
	}

	title := e.SenderName()
	if title == "" {
		title = fmt.Sprintf("Chat %d", peerID)
	}

	ts := e.Time()

	return SessionInfo{SessionType: mt, PeerID: peerID, Title: title, UpdatedAt: ts}, true
}
