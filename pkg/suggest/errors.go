package suggest

import (
	"errors"
	"fmt"
)

// ErrEchoRejected means the provider answered with a structurally valid
// payload, but every suggestion was filtered as an echo of the message
// being replied to, on the retry as well.
var ErrEchoRejected = errors.New("all suggestions rejected as echoes")

// ProviderError is a transport-level failure from the completion
// provider: connection error, timeout, or a non-success HTTP status.
// Never retried.
type ProviderError struct {
	Status int
	Msg    string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider http %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("provider request failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ContractError means the provider's output did not satisfy the strict
// JSON contract: malformed JSON, schema mismatch, or empty content.
// Worth exactly one retry with a stricter instruction.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return "output contract violated: " + e.Reason
}
