package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tinyland-inc/replyclaw/pkg/history"
	"github.com/tinyland-inc/replyclaw/pkg/logger"
	"github.com/tinyland-inc/replyclaw/pkg/onebot"
	"github.com/tinyland-inc/replyclaw/pkg/suggest"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeSendError maps the send-path error taxonomy onto HTTP statuses.
func writeSendError(w http.ResponseWriter, err error) {
	var afe *onebot.ActionFailedError
	switch {
	case errors.Is(err, onebot.ErrNoUpstream):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, onebot.ErrActionTimeout), errors.Is(err, onebot.ErrInflightWaitTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &afe):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		var te *onebot.TransportError
		if errors.As(err, &te) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"upstreams": s.registry.Count(),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req onebot.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.sender.Submit(r.Context(), &req)
	if err != nil {
		writeSendError(w, err)
		return
	}
	s.recordOutbound(&req, res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSendMessageAsync(w http.ResponseWriter, r *http.Request) {
	var req onebot.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.tasks.Start(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

func (s *Server) handleSendTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("task_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	task, ok := s.tasks.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleRecallMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}
	timeout := time.Duration(s.cfg.OneBot.RecallTimeout) * time.Second
	if err := s.sender.Recall(r.Context(), req.MessageID, timeout); err != nil {
		writeSendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionType := r.URL.Query().Get("session_type")
	peerID, err := strconv.ParseInt(r.URL.Query().Get("peer_id"), 10, 64)
	if err != nil || (sessionType != onebot.SessionPrivate && sessionType != onebot.SessionGroup) {
		writeError(w, http.StatusBadRequest, "session_type and peer_id are required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	msgs, err := s.store.GetHistory(sessionType, peerID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []history.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleChatSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type suggestRequest struct {
	PeerID      int64  `json:"peer_id"`
	SessionType string `json:"session_type"`
	Tone        string `json:"tone"`
	Intent      string `json:"intent"`
}

func (r *suggestRequest) validate() error {
	if r.SessionType != onebot.SessionPrivate && r.SessionType != onebot.SessionGroup {
		return errors.New("invalid session_type")
	}
	if r.PeerID <= 0 {
		return errors.New("invalid peer_id")
	}
	return nil
}

func (s *Server) handleSuggestReply(w http.ResponseWriter, r *http.Request) {
	s.suggestReply(w, r, "")
}

// handleSuggestReplyOne regenerates a single suggestion, optionally
// pinned to a tone and intent, for replacing one slot in the UI.
func (s *Server) handleSuggestReplyOne(w http.ResponseWriter, r *http.Request) {
	s.suggestReply(w, r, "one")
}

func (s *Server) suggestReply(w http.ResponseWriter, r *http.Request, variant string) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionKey := req.SessionType + "-" + strconv.FormatInt(req.PeerID, 10)
	entries := s.contexts.Get(sessionKey)
	if len(entries) == 0 {
		entries = s.hydrateContext(sessionKey, req.SessionType, req.PeerID)
	}
	if latestInbound(entries) == "" {
		writeError(w, http.StatusBadRequest, "no inbound message to reply to")
		return
	}

	extra := ""
	if variant == "one" {
		extra = "Return exactly ONE suggestion."
		if req.Tone != "" {
			extra += " Its tone must be: " + req.Tone + "."
		}
		if req.Intent != "" {
			extra += " Its intent must be: " + req.Intent + "."
		}
	}

	genReq := buildGenerateRequest(s.cfg.Prompts.System, s.cfg.Prompts.UserTemplate,
		req.SessionType, req.PeerID, entries, extra)
	payload, err := s.generator.Generate(r.Context(), genReq)
	if err != nil {
		writeSuggestError(w, err)
		return
	}

	if variant == "one" {
		writeJSON(w, http.StatusOK, map[string]any{
			"peer_id":      payload.PeerID,
			"session_type": payload.SessionType,
			"sentiment":    payload.Sentiment,
			"suggestion":   payload.Suggestions[0],
		})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeSuggestError(w http.ResponseWriter, err error) {
	var pe *suggest.ProviderError
	var ce *suggest.ContractError
	switch {
	case errors.As(err, &pe):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &ce), errors.Is(err, suggest.ErrEchoRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// hydrateContext rebuilds an empty in-memory window from the history
// store, so suggestions survive a process restart.
func (s *Server) hydrateContext(sessionKey, sessionType string, peerID int64) []suggest.Entry {
	msgs, err := s.store.GetHistory(sessionType, peerID, s.cfg.App.MaxHistory, 0)
	if err != nil {
		logger.WarnCF("gateway", "Context hydration failed", map[string]any{"error": err.Error()})
		return nil
	}
	for _, m := range msgs {
		e, err := onebot.ParseEvent(m.Event)
		if err != nil {
			continue
		}
		text := e.PlainText()
		if text == "" {
			continue
		}
		role := "user"
		if e.PostType() == "message_sent" || e.IsFromSelf() {
			role = "assistant"
		}
		if sessionType == onebot.SessionGroup && role == "user" {
			if name := e.SenderName(); name != "" {
				text = name + ": " + text
			}
		}
		s.contexts.Append(sessionKey, suggest.Entry{Role: role, Text: text})
	}
	return s.contexts.Get(sessionKey)
}

// recordOutbound mirrors a successful send into history and the context
// window. Wired to both the synchronous handler and the task tracker.
func (s *Server) recordOutbound(req *onebot.SendRequest, res onebot.SendResult) {
	if res.Deduplicated {
		return
	}
	text := req.Message
	if text == "" {
		text = "[" + req.Mode + "]"
	}
	if err := s.store.InsertOutbound(req.SessionType, req.PeerID, text, res.MessageID); err != nil {
		logger.WarnCF("gateway", "Failed to record outbound message", map[string]any{"error": err.Error()})
	}
	sessionKey := req.SessionType + "-" + strconv.FormatInt(req.PeerID, 10)
	s.contexts.Append(sessionKey, suggest.Entry{Role: "assistant", Text: text})
}
