// Package gateway is the HTTP and WebSocket surface: it accepts reverse
// WebSocket connections from OneBot peers, routes their frames, and
// serves the send, history and suggestion APIs.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/replyclaw/pkg/bus"
	"github.com/tinyland-inc/replyclaw/pkg/config"
	"github.com/tinyland-inc/replyclaw/pkg/history"
	"github.com/tinyland-inc/replyclaw/pkg/logger"
	"github.com/tinyland-inc/replyclaw/pkg/onebot"
	"github.com/tinyland-inc/replyclaw/pkg/suggest"
)

type Server struct {
	cfg *config.Config

	registry   *onebot.Registry
	dispatcher *onebot.Dispatcher
	sender     *onebot.Sender
	tasks      *onebot.TaskTracker
	dedupe     *onebot.Deduper
	events     *bus.EventBus
	store      *history.Store
	contexts   *suggest.ContextCache
	generator  *suggest.Generator

	hub      *observerHub
	upgrader websocket.Upgrader
}

func New(cfg *config.Config) (*Server, error) {
	store, err := history.New(cfg.History.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	registry := onebot.NewRegistry()
	dispatcher := onebot.NewDispatcher(registry)
	sender := onebot.NewSender(dispatcher,
		onebot.SendTimeouts{
			Text:  time.Duration(cfg.OneBot.SendTimeoutText) * time.Second,
			Media: time.Duration(cfg.OneBot.SendTimeoutMedia) * time.Second,
			Face:  time.Duration(cfg.OneBot.SendTimeoutFace) * time.Second,
		},
		time.Duration(cfg.OneBot.RecentResultWindow)*time.Second,
		time.Duration(cfg.OneBot.InflightWaitCeil)*time.Second,
	)

	client := suggest.NewClient(cfg.LLM.APIBase, cfg.LLM.APIKey, cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSeconds*float64(time.Second)))
	generator := suggest.NewGenerator(client, suggest.Thresholds{
		SubstringMinLen:  cfg.Echo.SubstringMinLen,
		ContainedMinLen:  cfg.Echo.ContainedMinLen,
		ContainedMaxDiff: cfg.Echo.ContainedMaxDiff,
		LongRatioMinLen:  cfg.Echo.LongRatioMinLen,
		LongRatio:        cfg.Echo.LongRatio,
		ShortRatio:       cfg.Echo.ShortRatio,
	})

	s := &Server{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		sender:     sender,
		tasks:      onebot.NewTaskTracker(sender),
		dedupe:     onebot.NewDeduper(0),
		events:     bus.NewEventBus(),
		store:      store,
		contexts:   suggest.NewContextCache(cfg.App.MaxHistory),
		generator:  generator,
		hub:        newObserverHub(),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	s.tasks.OnSuccess = s.recordOutbound
	return s, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /onebot/event", s.handleUpstream)
	mux.HandleFunc("GET /ws", s.handleObserver)
	mux.HandleFunc("POST /onebot/send_message", s.handleSendMessage)
	mux.HandleFunc("POST /onebot/send_message_async", s.handleSendMessageAsync)
	mux.HandleFunc("GET /onebot/send_task_status", s.handleSendTaskStatus)
	mux.HandleFunc("POST /onebot/recall_message", s.handleRecallMessage)
	mux.HandleFunc("GET /chat/history", s.handleChatHistory)
	mux.HandleFunc("GET /chat/sessions", s.handleChatSessions)
	mux.HandleFunc("POST /suggest/reply", s.handleSuggestReply)
	mux.HandleFunc("POST /suggest/reply_one", s.handleSuggestReplyOne)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.processEvents(ctx)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port),
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.InfoCF("gateway", "Listening", map[string]any{"addr": httpSrv.Addr})
	err := httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close releases the server's resources.
func (s *Server) Close() error {
	s.events.Close()
	s.hub.closeAll()
	return s.store.Close()
}

// processEvents drains the bus: persist, remember for prompting, mirror
// to observers.
func (s *Server) processEvents(ctx context.Context) {
	for {
		e, ok := s.events.Consume(ctx)
		if !ok {
			return
		}
		if err := s.store.InsertEvent(e); err != nil {
			logger.ErrorCF("gateway", "Failed to persist event", map[string]any{"error": err.Error()})
		}
		s.rememberEvent(e)
		s.hub.broadcast(e.JSON())
	}
}

// rememberEvent appends a message event to its session's context window.
// Messages from the bot account count as the user's own turns.
func (s *Server) rememberEvent(e *onebot.Event) {
	si, ok := e.Session()
	if !ok {
		return
	}
	text := e.PlainText()
	if text == "" {
		return
	}
	role := "user"
	if e.IsFromSelf() {
		role = "assistant"
	}
	if si.SessionType == onebot.SessionGroup && role == "user" {
		if name := e.SenderName(); name != "" {
			text = name + ": " + text
		}
	}
	s.contexts.Append(si.ID(), suggest.Entry{Role: role, Text: text})
}
