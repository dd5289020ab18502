// Package bus decouples the WebSocket read loops from event processing:
// upstream connections publish decoded events, one processor consumes
// them in arrival order per connection.
package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tinyland-inc/replyclaw/pkg/onebot"
)

// ErrBusClosed is returned when publishing to a closed EventBus.
var ErrBusClosed = errors.New("event bus closed")

type EventBus struct {
	events chan *onebot.Event
	done   chan struct{}
	closed atomic.Bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		events: make(chan *onebot.Event, 100),
		done:   make(chan struct{}),
	}
}

func (eb *EventBus) Publish(ctx context.Context, e *onebot.Event) error {
	if eb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case eb.events <- e:
		return nil
	case <-eb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (eb *EventBus) Consume(ctx context.Context) (*onebot.Event, bool) {
	select {
	case e, ok := <-eb.events:
		return e, ok
	case <-eb.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (eb *EventBus) Close() {
	if eb.closed.CompareAndSwap(false, true) {
		close(eb.done)
	}
}
