package onebot

import (
	"errors"
	"fmt"
)

// ErrNoUpstream is returned when an action is attempted while no peer is
// connected.
var ErrNoUpstream = errors.New("no upstream connected")

// ErrActionTimeout is returned when a dispatched action produced no
// correlated reply within its window. The action may still have taken
// effect on the peer.
var ErrActionTimeout = errors.New("action reply timed out")

// ErrInflightWaitTimeout is returned when a duplicate send gave up
// waiting for the in-flight call it attached to.
var ErrInflightWaitTimeout = errors.New("timed out waiting for in-flight duplicate send")

// TransportError wraps a WebSocket write failure. The frame was not
// delivered, so retrying on another path is safe.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ActionFailedError reports an application-level refusal from the peer:
// the reply arrived but carried a failure status or retcode.
type ActionFailedError struct {
	Action string
	Detail string
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("action %s failed: %s", e.Action, e.Detail)
}
