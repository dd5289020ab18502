package onebot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/replyclaw/pkg/logger"
)

// Dispatcher correlates action requests with their replies through echo
// tokens. One waiter per token; replies for unknown tokens are dropped.
type Dispatcher struct {
	registry *Registry

	mu      sync.Mutex
	pending map[string]chan ActionReply
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		pending:  make(map[string]chan ActionReply),
	}
}

// Dispatch sends an action to a connected peer and waits for the
// correlated reply. Candidates are tried in order; a connection whose
// write fails is unregistered and the next one is tried, because nothing
// was transmitted yet. Once a write succeeds the action is never resent,
// so a missing reply ends in ErrActionTimeout even though the peer may
// have executed the action. A timeout <= 0 waits indefinitely, bounded
// only by ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, action string, params any, timeout time.Duration) (ActionReply, error) {
	candidates := d.registry.ListActive()
	if len(candidates) == 0 {
		return ActionReply{}, ErrNoUpstream
	}

	echo := uuid.NewString()
	req := ActionRequest{Action: action, Params: params, Echo: echo}

	var ch chan ActionReply
	var lastErr error
	for _, up := range candidates {
		ch = make(chan ActionReply, 1)
		d.mu.Lock()
		d.pending[echo] = ch
		d.mu.Unlock()

		if err := up.WriteJSON(req); err != nil {
			d.mu.Lock()
			delete(d.pending, echo)
			d.mu.Unlock()
			d.registry.Unregister(up.ID)
			lastErr = err
			ch = nil
			logger.WarnCF("onebot", "Upstream write failed, trying next", map[string]any{
				"action":      action,
				"upstream_id": up.ID,
				"error":       err.Error(),
			})
			continue
		}
		break
	}
	if ch == nil {
		return ActionReply{}, fmt.Errorf("all upstreams failed to send: %w", lastErr)
	}
	defer func() {
		d.mu.Lock()
		delete(d.pending, echo)
		d.mu.Unlock()
	}()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	select {
	case reply := <-ch:
		return reply, nil
	case <-timeoutC:
		logger.WarnCF("onebot", "Action reply timed out", map[string]any{
			"action": action,
			"echo":   echo,
		})
		return ActionReply{}, fmt.Errorf("%s: %w", action, ErrActionTimeout)
	case <-ctx.Done():
		return ActionReply{}, ctx.Err()
	}
}

// Resolve delivers a reply to its waiter. Returns false when no waiter
// holds the token, in which case the reply is discarded.
func (d *Dispatcher) Resolve(reply ActionReply) bool {
	echo := reply.Echo()
	if echo == "" {
		return false
	}
	d.mu.Lock()
	ch, ok := d.pending[echo]
	if ok {
		delete(d.pending, echo)
	}
	d.mu.Unlock()
	if !ok {
		return false
	}
	ch <- reply
	return true
}

// PendingCount returns the number of in-flight actions.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
