package suggest

import "sync"

// Entry is one remembered conversation turn.
type Entry struct {
	Role string `json:"role"` // "user" | "assistant"
	Text string `json:"text"`
}

// ContextCache keeps a bounded window of recent turns per session, in
// memory. Oldest entries drop silently once the cap is reached.
type ContextCache struct {
	mu       sync.Mutex
	max      int
	sessions map[string][]Entry
}

func NewContextCache(maxEntries int) *ContextCache {
	if maxEntries < 1 {
		maxEntries = 30
	}
	return &ContextCache{
		max:      maxEntries,
		sessions: make(map[string][]Entry),
	}
}

// Append records a turn for the session, trimming to the cap.
func (c *ContextCache) Append(sessionKey string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.sessions[sessionKey], e)
	if len(entries) > c.max {
		entries = entries[len(entries)-c.max:]
	}
	c.sessions[sessionKey] = entries
}

// Get returns a copy of the session's window, oldest first.
func (c *ContextCache) Get(sessionKey string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.sessions[sessionKey]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// SetMaxEntries changes the cap and trims existing sessions down to it.
func (c *ContextCache) SetMaxEntries(n int) {
	if n < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.max = n
	for k, entries := range c.sessions {
		if len(entries) > n {
			c.sessions[k] = entries[len(entries)-n:]
		}
	}
}
