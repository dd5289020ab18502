package onebot

import (
	"fmt"
	"sync"
)

const defaultDedupeCapacity = 1024

// Deduper suppresses replayed events, which reconnecting peers are prone
// to delivering. Keys live in a fixed-size insertion-order window; once
// the window is full the oldest key is evicted, so a sufficiently old
// replay is treated as new again.
type Deduper struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	cap   int
}

// NewDeduper creates a window of the given capacity; values below 1 use
// the default of 1024.
func NewDeduper(capacity int) *Deduper {
	if capacity < 1 {
		capacity = defaultDedupeCapacity
	}
	return &Deduper{
		seen: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// Seen records the event and reports whether it was already in the
// window. Events without a message identifier are never considered
// duplicates and are not recorded.
func (d *Deduper) Seen(e *Event) bool {
	msgID := e.MessageID()
	if msgID == "" {
		return false
	}
	key := fmt.Sprintf("%s|%s|%d|%d|%d|%s",
		e.PostType(), e.MessageType(), e.UserID(), e.GroupID(), e.SelfID(), msgID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	if len(d.order) >= d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
	return false
}

// Len returns the number of keys currently held.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
