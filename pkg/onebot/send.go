package onebot

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tinyland-inc/replyclaw/pkg/logger"
	"github.com/tinyland-inc/replyclaw/pkg/utils"
)

// Send modes.
const (
	ModeText  = "text"
	ModeImage = "image"
	ModeVideo = "video"
	ModeFace  = "face"
)

// Session types.
const (
	SessionPrivate = "private"
	SessionGroup   = "group"
)

// SendRequest describes one outbound message.
type SendRequest struct {
	SessionType string `json:"session_type"`
	Mode        string `json:"mode"`
	PeerID      int64  `json:"peer_id"`
	Message     string `json:"message"`
	FilePath    string `json:"file_path,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	FaceID      int    `json:"face_id,omitempty"`
}

// Validate checks the request shape before any key is computed.
func (r *SendRequest) Validate() error {
	if r.SessionType != SessionPrivate && r.SessionType != SessionGroup {
		return fmt.Errorf("invalid session_type %q", r.SessionType)
	}
	if r.PeerID <= 0 {
		return fmt.Errorf("invalid peer_id %d", r.PeerID)
	}
	switch r.Mode {
	case ModeText:
		if strings.TrimSpace(r.Message) == "" {
			return errors.New("text mode requires a message")
		}
	case ModeImage:
		if r.FilePath == "" && r.ImageBase64 == "" {
			return errors.New("image mode requires file_path or image_base64")
		}
	case ModeVideo:
		if r.FilePath == "" {
			return errors.New("video mode requires file_path")
		}
	case ModeFace:
		if r.FaceID < 0 {
			return fmt.Errorf("invalid face_id %d", r.FaceID)
		}
	default:
		return fmt.Errorf("invalid mode %q", r.Mode)
	}
	return nil
}

// IdempotencyKey fingerprints the request's observable intent. Inline
// image bytes enter via their own hash so two requests with identical
// payloads collapse without hashing megabytes twice into the outer key.
func (r *SendRequest) IdempotencyKey() string {
	imgHash := ""
	if r.ImageBase64 != "" {
		sum := sha1.Sum([]byte(r.ImageBase64))
		imgHash = fmt.Sprintf("%x", sum)
	}
	payload := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%d",
		r.SessionType, r.Mode, r.PeerID, r.Message, r.FilePath, imgHash, r.FaceID)
	sum := sha1.Sum([]byte(payload))
	return fmt.Sprintf("%x", sum)
}

// composeMessage renders the request into a CQ-code message string. The
// media segment always leads; a caption follows it.
func (r *SendRequest) composeMessage() string {
	switch r.Mode {
	case ModeImage:
		ref := "base64://" + r.ImageBase64
		if r.ImageBase64 == "" {
			ref = utils.NormalizeFileRef(r.FilePath)
		}
		head := fmt.Sprintf("[CQ:image,file=%s]", cqEscapeParam(ref))
		if r.Message != "" && !strings.HasPrefix(r.Message, "[CQ:image,") {
			return head + r.Message
		}
		return head
	case ModeVideo:
		head := fmt.Sprintf("[CQ:video,file=%s]", cqEscapeParam(utils.NormalizeFileRef(r.FilePath)))
		if r.Message != "" && r.Message != r.FilePath {
			return head + r.Message
		}
		return head
	case ModeFace:
		head := fmt.Sprintf("[CQ:face,id=%d]", r.FaceID)
		if r.Message != "" {
			return head + r.Message
		}
		return head
	default:
		return r.Message
	}
}

func cqEscapeParam(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "[", "&#91;")
	s = strings.ReplaceAll(s, "]", "&#93;")
	return strings.ReplaceAll(s, ",", "&#44;")
}

// SendResult is the outcome of a completed send.
type SendResult struct {
	MessageID    string `json:"message_id"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// SendTimeouts holds the per-mode dispatch deadlines.
type SendTimeouts struct {
	Text  time.Duration
	Media time.Duration
	Face  time.Duration
}

func (t SendTimeouts) forMode(mode string) time.Duration {
	switch mode {
	case ModeImage, ModeVideo:
		return t.Media
	case ModeFace:
		return t.Face
	default:
		return t.Text
	}
}

// ActionCaller is the dispatch surface the send layer needs. Satisfied
// by Dispatcher.
type ActionCaller interface {
	Dispatch(ctx context.Context, action string, params any, timeout time.Duration) (ActionReply, error)
}

type inflightSend struct {
	done   chan struct{}
	result SendResult
	err    error
}

type recentResult struct {
	at     time.Time
	result SendResult
}

// Sender collapses duplicate outbound requests onto a single dispatch.
// At most one remote send per idempotency key is in flight; concurrent
// duplicates attach to the same outcome, and a success is answered from
// cache for a short window afterwards.
type Sender struct {
	dispatcher   ActionCaller
	timeouts     SendTimeouts
	recentWindow time.Duration
	attachWait   time.Duration

	mu       sync.Mutex
	inflight map[string]*inflightSend
	recent   map[string]recentResult

	now func() time.Time
}

func NewSender(dispatcher ActionCaller, timeouts SendTimeouts, recentWindow, attachWait time.Duration) *Sender {
	return &Sender{
		dispatcher:   dispatcher,
		timeouts:     timeouts,
		recentWindow: recentWindow,
		attachWait:   attachWait,
		inflight:     make(map[string]*inflightSend),
		recent:       make(map[string]recentResult),
		now:          time.Now,
	}
}

// Submit performs the send with the per-mode deadline, deduplicating
// against recent successes and in-flight duplicates.
func (s *Sender) Submit(ctx context.Context, req *SendRequest) (SendResult, error) {
	return s.submit(ctx, req, s.timeouts.forMode(req.Mode))
}

// SubmitBackground is Submit without a reply deadline. Long uploads run
// off the request path and wait for the peer as long as ctx allows.
func (s *Sender) SubmitBackground(ctx context.Context, req *SendRequest) (SendResult, error) {
	return s.submit(ctx, req, 0)
}

func (s *Sender) submit(ctx context.Context, req *SendRequest, timeout time.Duration) (SendResult, error) {
	if err := req.Validate(); err != nil {
		return SendResult{}, err
	}
	key := req.IdempotencyKey()

	s.mu.Lock()
	if rr, ok := s.recent[key]; ok {
		if s.now().Sub(rr.at) <= s.recentWindow {
			s.mu.Unlock()
			logger.DebugCF("onebot", "Send answered from recent cache", map[string]any{"key": key})
			out := rr.result
			out.Deduplicated = true
			return out, nil
		}
		delete(s.recent, key)
	}
	if fl, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		return s.attach(ctx, key, fl)
	}
	fl := &inflightSend{done: make(chan struct{})}
	s.inflight[key] = fl
	s.mu.Unlock()

	result, err := s.dispatch(ctx, req, timeout)

	fl.result, fl.err = result, err
	s.mu.Lock()
	delete(s.inflight, key)
	if err == nil {
		s.recent[key] = recentResult{at: s.now(), result: result}
	}
	s.mu.Unlock()
	close(fl.done)

	return result, err
}

// attach waits for a duplicate's outcome, bounded by the attach ceiling
// so a waiter is never parked longer than the underlying dispatch could
// possibly take.
func (s *Sender) attach(ctx context.Context, key string, fl *inflightSend) (SendResult, error) {
	logger.DebugCF("onebot", "Duplicate send attached to in-flight call", map[string]any{"key": key})
	timer := time.NewTimer(s.attachWait)
	defer timer.Stop()
	select {
	case <-fl.done:
		if fl.err != nil {
			return SendResult{}, fl.err
		}
		out := fl.result
		out.Deduplicated = true
		return out, nil
	case <-timer.C:
		return SendResult{}, ErrInflightWaitTimeout
	case <-ctx.Done():
		return SendResult{}, ctx.Err()
	}
}

func (s *Sender) dispatch(ctx context.Context, req *SendRequest, timeout time.Duration) (SendResult, error) {
	action := "send_private_msg"
	params := map[string]any{"message": req.composeMessage()}
	if req.SessionType == SessionGroup {
		action = "send_group_msg"
		params["group_id"] = req.PeerID
	} else {
		params["user_id"] = req.PeerID
	}

	reply, err := s.dispatcher.Dispatch(ctx, action, params, timeout)
	if err != nil {
		return SendResult{}, err
	}
	if reply.Failed() {
		return SendResult{}, &ActionFailedError{Action: action, Detail: reply.FailureDetail()}
	}
	return SendResult{MessageID: reply.Get("data.message_id").String()}, nil
}

// Recall deletes a previously sent message.
func (s *Sender) Recall(ctx context.Context, messageID string, timeout time.Duration) error {
	var id any = messageID
	if n, err := strconv.ParseInt(messageID, 10, 64); err == nil {
		id = n
	}
	reply, err := s.dispatcher.Dispatch(ctx, "delete_msg", map[string]any{"message_id": id}, timeout)
	if err != nil {
		return err
	}
	if reply.Failed() {
		return &ActionFailedError{Action: "delete_msg", Detail: reply.FailureDetail()}
	}
	return nil
}
