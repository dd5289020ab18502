// Package history persists chat events to SQLite so sessions survive a
// restart and the suggestion prompt can be built from real history.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/tinyland-inc/replyclaw/pkg/onebot"
)

// Message is one stored chat event.
type Message struct {
	ID          int64           `json:"id"`
	SessionType string          `json:"session_type"`
	PeerID      int64           `json:"peer_id"`
	Timestamp   int64           `json:"timestamp"`
	Event       json.RawMessage `json:"event"`
}

// Session is one known conversation.
type Session struct {
	SessionType string `json:"session_type"`
	PeerID      int64  `json:"peer_id"`
	Title       string `json:"title"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Store is the SQLite-backed chat history. WAL mode keeps concurrent
// reads from the HTTP surface cheap while the event loop writes.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the history database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		session_type TEXT NOT NULL,
		peer_id      INTEGER NOT NULL,
		dedupe_key   TEXT NOT NULL UNIQUE,
		ts           INTEGER NOT NULL,
		event_json   TEXT NOT NULL,
		created_at   TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_session ON chat_messages(session_type, peer_id, ts);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		session_type TEXT NOT NULL,
		peer_id      INTEGER NOT NULL,
		title        TEXT NOT NULL,
		updated_at   INTEGER NOT NULL,
		PRIMARY KEY (session_type, peer_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertEvent stores an inbound message event. Inserts are idempotent on
// the event's dedupe key, so a replay that slipped past the in-memory
// window is still stored once. Non-session events are skipped.
func (s *Store) InsertEvent(e *onebot.Event) error {
	si, ok := e.Session()
	if !ok {
		return nil
	}
	key := eventDedupeKey(e)
	ts := e.Time()
	if ts == 0 {
		ts = time.Now().Unix()
	}

	_, err := s.db.Exec(
		`INSERT INTO chat_messages (session_type, peer_id, dedupe_key, ts, event_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dedupe_key) DO NOTHING`,
		si.SessionType, si.PeerID, key, ts, string(e.JSON()), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return s.touchSession(si.SessionType, si.PeerID, si.Title, ts)
}

// InsertOutbound records a message this process sent, as a synthetic
// event, so the conversation reads both ways.
func (s *Store) InsertOutbound(sessionType string, peerID int64, message, messageID string) error {
	ts := time.Now().Unix()
	event := map[string]any{
		"post_type":    "message_sent",
		"message_type": sessionType,
		"message":      message,
		"message_id":   messageID,
		"time":         ts,
	}
	if sessionType == onebot.SessionGroup {
		event["group_id"] = peerID
	} else {
		event["user_id"] = peerID
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := "out-" + messageID
	if messageID == "" {
		key = "out-" + uuid.NewString()
	}
	_, err = s.db.Exec(
		`INSERT INTO chat_messages (session_type, peer_id, dedupe_key, ts, event_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dedupe_key) DO NOTHING`,
		sessionType, peerID, key, ts, string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert outbound: %w", err)
	}
	return s.touchSession(sessionType, peerID, "", ts)
}

// touchSession upserts the session row. An empty title keeps whatever
// title is already stored.
func (s *Store) touchSession(sessionType string, peerID int64, title string, ts int64) error {
	if title == "" {
		title = fmt.Sprintf("Chat %d", peerID)
	}
	_, err := s.db.Exec(
		`INSERT INTO chat_sessions (session_type, peer_id, title, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_type, peer_id) DO UPDATE SET
		   title = CASE WHEN excluded.title LIKE 'Chat %' THEN chat_sessions.title ELSE excluded.title END,
		   updated_at = MAX(chat_sessions.updated_at, excluded.updated_at)`,
		sessionType, peerID, title, ts,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// GetHistory returns the stored events for a session, oldest first,
// after skipping offset rows from the end. Limit caps the page size.
func (s *Store) GetHistory(sessionType string, peerID int64, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(
		`SELECT id, session_type, peer_id, ts, event_json
		 FROM chat_messages
		 WHERE session_type = ? AND peer_id = ?
		 ORDER BY ts DESC, id DESC
		 LIMIT ? OFFSET ?`,
		sessionType, peerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var eventJSON string
		if err := rows.Scan(&m.ID, &m.SessionType, &m.PeerID, &m.Timestamp, &eventJSON); err != nil {
			return nil, err
		}
		m.Event = json.RawMessage(eventJSON)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse to oldest-first for the caller
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListSessions returns known sessions, most recently active first.
func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT session_type, peer_id, title, updated_at
		 FROM chat_sessions
		 ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var se Session
		if err := rows.Scan(&se.SessionType, &se.PeerID, &se.Title, &se.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

func eventDedupeKey(e *onebot.Event) string {
	if id := e.MessageID(); id != "" {
		return fmt.Sprintf("%s|%s|%d|%d|%d|%s",
			e.PostType(), e.MessageType(), e.UserID(), e.GroupID(), e.SelfID(), id)
	}
	return "anon-" + uuid.NewString()
}
