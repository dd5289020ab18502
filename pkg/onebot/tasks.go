package onebot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/replyclaw/pkg/logger"
)

// TaskStatus is the lifecycle state of a background send.
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskSending TaskStatus = "sending"
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
)

// SendTask is the pollable record of a background send. Terminal states
// are final; records are retained for the process lifetime.
type SendTask struct {
	ID          string      `json:"task_id"`
	Mode        string      `json:"mode"`
	SessionType string      `json:"session_type"`
	PeerID      int64       `json:"peer_id"`
	Status      TaskStatus  `json:"status"`
	Progress    int         `json:"progress"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	Result      *SendResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// TaskTracker runs long sends off the request path and answers
// non-blocking progress polls. The peer offers no progress signal, so
// while a task is sending the tracker reports a time-based estimate that
// never decreases and never reaches 100 before completion.
// Submitter is the send surface a task needs. Satisfied by Sender. The
// deadline-free variant is used so slow uploads are not cut off by the
// synchronous per-mode timeouts.
type Submitter interface {
	SubmitBackground(ctx context.Context, req *SendRequest) (SendResult, error)
}

type TaskTracker struct {
	sender Submitter

	// OnSuccess, when set, observes each successful send. Set before the
	// first Start.
	OnSuccess func(req *SendRequest, res SendResult)

	mu    sync.RWMutex
	tasks map[string]*SendTask

	now func() time.Time
}

func NewTaskTracker(sender Submitter) *TaskTracker {
	return &TaskTracker{
		sender: sender,
		tasks:  make(map[string]*SendTask),
		now:    time.Now,
	}
}

// Start validates the request, records a queued task and launches its
// execution. Returns the task id immediately.
func (t *TaskTracker) Start(req *SendRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	task := &SendTask{
		ID:          uuid.NewString(),
		Mode:        req.Mode,
		SessionType: req.SessionType,
		PeerID:      req.PeerID,
		Status:      TaskQueued,
		Progress:    3,
		CreatedAt:   t.now(),
	}
	t.mu.Lock()
	t.tasks[task.ID] = task
	t.mu.Unlock()

	logger.InfoCF("onebot", "Background send queued", map[string]any{
		"task_id": task.ID,
		"mode":    req.Mode,
		"peer_id": req.PeerID,
	})

	go t.run(task.ID, req)
	return task.ID, nil
}

func (t *TaskTracker) run(id string, req *SendRequest) {
	started := t.now()
	t.mu.Lock()
	if task, ok := t.tasks[id]; ok {
		task.Status = TaskSending
		task.StartedAt = &started
		task.Progress = 10
	}
	t.mu.Unlock()

	result, err := t.sender.SubmitBackground(context.Background(), req)

	t.mu.Lock()
	task, ok := t.tasks[id]
	if ok {
		task.Progress = 100
		if err != nil {
			task.Status = TaskFailed
			task.Error = err.Error()
		} else {
			task.Status = TaskSuccess
			task.Result = &result
		}
	}
	t.mu.Unlock()

	if err != nil {
		logger.WarnCF("onebot", "Background send failed", map[string]any{
			"task_id": id,
			"error":   err.Error(),
		})
		return
	}
	logger.InfoCF("onebot", "Background send finished", map[string]any{
		"task_id":    id,
		"message_id": result.MessageID,
	})
	if t.OnSuccess != nil {
		t.OnSuccess(req, result)
	}
}

// Status polls a task. While the task is sending, progress advances along
// a time curve capped at 95 and is pinned monotonic against earlier polls.
func (t *TaskTracker) Status(id string) (SendTask, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[id]
	if !ok {
		return SendTask{}, false
	}
	if task.Status == TaskSending && task.StartedAt != nil {
		elapsed := t.now().Sub(*task.StartedAt).Seconds()
		estimate := 10 + int(6*elapsed)
		if estimate > 95 {
			estimate = 95
		}
		if estimate > task.Progress {
			task.Progress = estimate
		}
	}
	return *task, true
}
