package suggest

import (
	"context"

	"github.com/tinyland-inc/replyclaw/pkg/logger"
)

const schemaHint = `
Respond with a single JSON object of this exact shape:
{"peer_id": <number>, "session_type": "private"|"group", "sentiment": "positive"|"neutral"|"negative"|"urgent", "suggestions": [{"text": "...", "tone": "...", "intent": "...", "notes": "..."}]}
"suggestions" holds 1 to 3 entries. Do not wrap the object in markdown.`

const strictInstruction = `Your previous output was not usable. Respond with the JSON object ALONE: no code fences, no commentary, no text before or after the object, and suggestions that do not repeat the message being replied to.`

// Completer is the provider surface the generator needs. Satisfied by
// Client.
type Completer interface {
	Complete(ctx context.Context, messages []Message, forceJSON bool) (string, error)
}

// GenerateRequest carries one generation call.
type GenerateRequest struct {
	PeerID        int64
	SessionType   string
	LatestMessage string
	SystemPrompt  string
	UserPrompt    string
}

// Generator turns a conversation into 1-3 reply suggestions, enforcing
// the JSON contract with at most one stricter retry and filtering
// echo-like suggestions.
type Generator struct {
	client Completer
	echo   Thresholds
}

func NewGenerator(client Completer, echo Thresholds) *Generator {
	return &Generator{client: client, echo: echo}
}

// Generate runs up to two provider calls. The retry fires on a contract
// violation or on a first attempt whose suggestions were all filtered as
// echoes; provider transport errors are terminal on either attempt. The
// returned payload always carries the caller's peer id and session type.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*ReplyPayload, error) {
	messages := []Message{
		{Role: "system", Content: req.SystemPrompt + "\n" + schemaHint},
		{Role: "user", Content: req.UserPrompt},
	}

	payload, firstErr := g.attempt(ctx, req, messages)
	if firstErr == nil {
		return payload, nil
	}
	if _, retryable := firstErr.(*ContractError); !retryable && firstErr != ErrEchoRejected {
		return nil, firstErr
	}

	logger.InfoCF("suggest", "Retrying with stricter instruction", map[string]any{
		"peer_id": req.PeerID,
		"reason":  firstErr.Error(),
	})
	retryMessages := append(messages, Message{Role: "user", Content: strictInstruction})
	payload, err := g.attempt(ctx, req, retryMessages)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// attempt is one provider call followed by parsing and echo filtering.
func (g *Generator) attempt(ctx context.Context, req GenerateRequest, messages []Message) (*ReplyPayload, error) {
	raw, err := g.client.Complete(ctx, messages, true)
	if err != nil {
		return nil, err
	}

	payload, err := parsePayload(raw)
	if err != nil {
		return nil, err
	}

	kept := payload.Suggestions[:0:0]
	for _, s := range payload.Suggestions {
		if IsEchoLike(s.Text, req.LatestMessage, g.echo) {
			logger.DebugCF("suggest", "Suggestion dropped as echo", map[string]any{
				"peer_id": req.PeerID,
			})
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return nil, ErrEchoRejected
	}

	payload.Suggestions = kept
	payload.PeerID = flexInt64(req.PeerID)
	payload.SessionType = req.SessionType
	return payload, nil
}
