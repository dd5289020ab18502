package gateway

import (
	"fmt"
	"strings"

	"github.com/tinyland-inc/replyclaw/pkg/suggest"
)

const defaultSystemPrompt = `You help the user reply to chat messages. Given the recent conversation, propose natural reply suggestions the user could send as themselves. Write in the same language as the conversation.`

const defaultUserTemplate = `Conversation ({{session_type}} chat):
{{history}}

The latest incoming message is:
{{latest_message}}

Propose reply suggestions for me to send.`

// renderHistory flattens the context window into prompt lines. Assistant
// turns are the user's own sent messages.
func renderHistory(entries []suggest.Entry) string {
	if len(entries) == 0 {
		return "(no earlier messages)"
	}
	var sb strings.Builder
	for _, e := range entries {
		label := "Them"
		if e.Role == "assistant" {
			label = "Me"
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, e.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// latestInbound returns the newest user-role entry, which is the message
// the suggestions answer.
func latestInbound(entries []suggest.Entry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == "user" {
			return entries[i].Text
		}
	}
	return ""
}

// buildGenerateRequest assembles the prompts for one generation call.
// Extra, when non-empty, is appended to the user prompt (used by the
// single-slot endpoint to pin tone and intent).
func buildGenerateRequest(systemPrompt, userTemplate, sessionType string, peerID int64, entries []suggest.Entry, extra string) suggest.GenerateRequest {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if userTemplate == "" {
		userTemplate = defaultUserTemplate
	}
	latest := latestInbound(entries)

	user := userTemplate
	user = strings.ReplaceAll(user, "{{session_type}}", sessionType)
	user = strings.ReplaceAll(user, "{{history}}", renderHistory(entries))
	user = strings.ReplaceAll(user, "{{latest_message}}", latest)
	if extra != "" {
		user += "\n" + extra
	}

	return suggest.GenerateRequest{
		PeerID:        peerID,
		SessionType:   sessionType,
		LatestMessage: latest,
		SystemPrompt:  systemPrompt,
		UserPrompt:    user,
	}
}
