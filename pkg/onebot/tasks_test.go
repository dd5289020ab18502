package onebot

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSubmitter struct {
	release chan struct{}
	result  SendResult
	err     error
}

func (f *fakeSubmitter) SubmitBackground(ctx context.Context, req *SendRequest) (SendResult, error) {
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

func TestTaskLifecycleSuccess(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{}), result: SendResult{MessageID: "900"}}
	tr := NewTaskTracker(sub)

	id, err := tr.Start(textReq())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	task, ok := tr.Status(id)
	if !ok {
		t.Fatal("task not found")
	}
	if task.Status != TaskQueued && task.Status != TaskSending {
		t.Fatalf("status = %s", task.Status)
	}

	close(sub.release)
	waitTerminal(t, tr, id)

	task, _ = tr.Status(id)
	if task.Status != TaskSuccess {
		t.Fatalf("status = %s, want success", task.Status)
	}
	if task.Progress != 100 {
		t.Errorf("terminal progress = %d, want 100", task.Progress)
	}
	if task.Result == nil || task.Result.MessageID != "900" {
		t.Errorf("result = %+v", task.Result)
	}
}

func TestTaskLifecycleFailure(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("peer rejected")}
	tr := NewTaskTracker(sub)

	id, err := tr.Start(textReq())
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, tr, id)

	task, _ := tr.Status(id)
	if task.Status != TaskFailed || task.Progress != 100 {
		t.Fatalf("task = %+v", task)
	}
	if task.Error != "peer rejected" {
		t.Errorf("error = %q", task.Error)
	}
}

func TestTaskProgressMonotonic(t *testing.T) {
	sub := &fakeSubmitter{release: make(chan struct{})}
	tr := NewTaskTracker(sub)
	base := time.Now()
	tr.now = func() time.Time { return base }

	id, err := tr.Start(textReq())
	if err != nil {
		t.Fatal(err)
	}

	// wait until the runner has flipped the task to sending
	deadline := time.After(time.Second)
	for {
		task, _ := tr.Status(id)
		if task.Status == TaskSending {
			break
		}
		select {
		case <-deadline:
			t.Fatal("task never started sending")
		case <-time.After(5 * time.Millisecond):
		}
	}

	prev := 0
	for _, elapsed := range []time.Duration{0, 2 * time.Second, 5 * time.Second, time.Minute} {
		tr.now = func() time.Time { return base.Add(elapsed) }
		task, _ := tr.Status(id)
		if task.Progress < prev {
			t.Fatalf("progress decreased: %d after %d", task.Progress, prev)
		}
		if task.Progress > 95 {
			t.Fatalf("progress %d exceeds cap while sending", task.Progress)
		}
		prev = task.Progress
	}
	if prev != 95 {
		t.Errorf("progress after a minute = %d, want 95", prev)
	}

	// a later poll reporting an earlier clock must not move progress back
	tr.now = func() time.Time { return base }
	task, _ := tr.Status(id)
	if task.Progress != 95 {
		t.Errorf("progress regressed to %d", task.Progress)
	}

	close(sub.release)
	waitTerminal(t, tr, id)
}

func TestTaskSuccessHook(t *testing.T) {
	sub := &fakeSubmitter{result: SendResult{MessageID: "7001"}}
	tr := NewTaskTracker(sub)

	type recorded struct {
		req *SendRequest
		res SendResult
	}
	hookC := make(chan recorded, 1)
	tr.OnSuccess = func(req *SendRequest, res SendResult) {
		hookC <- recorded{req: req, res: res}
	}

	req := textReq()
	id, err := tr.Start(req)
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, tr, id)

	select {
	case got := <-hookC:
		if got.res.MessageID != "7001" {
			t.Errorf("hook result = %+v", got.res)
		}
		if got.req.PeerID != req.PeerID || got.req.Mode != req.Mode {
			t.Errorf("hook request = %+v", got.req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("success hook never fired")
	}
}

func TestTaskFailureSkipsHook(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("peer rejected")}
	tr := NewTaskTracker(sub)

	fired := make(chan struct{}, 1)
	tr.OnSuccess = func(*SendRequest, SendResult) { fired <- struct{}{} }

	id, err := tr.Start(textReq())
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, tr, id)

	select {
	case <-fired:
		t.Error("hook fired for a failed send")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTaskUnknownID(t *testing.T) {
	tr := NewTaskTracker(&fakeSubmitter{})
	if _, ok := tr.Status("nope"); ok {
		t.Error("unknown task reported found")
	}
}

func TestTaskStartValidates(t *testing.T) {
	tr := NewTaskTracker(&fakeSubmitter{})
	if _, err := tr.Start(&SendRequest{SessionType: "x"}); err == nil {
		t.Error("invalid request accepted")
	}
}

func waitTerminal(t *testing.T, tr *TaskTracker, id string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		task, ok := tr.Status(id)
		if ok && (task.Status == TaskSuccess || task.Status == TaskFailed) {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("task %s never reached a terminal state", id)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
