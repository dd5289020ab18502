package gateway

import (
	"strings"
	"testing"

	"github.com/tinyland-inc/replyclaw/pkg/suggest"
)

func TestRenderHistory(t *testing.T) {
	if got := renderHistory(nil); got != "(no earlier messages)" {
		t.Errorf("empty history: %q", got)
	}
	entries := []suggest.Entry{
		{Role: "user", Text: "dinner tonight?"},
		{Role: "assistant", Text: "sounds good"},
	}
	got := renderHistory(entries)
	if got != "Them: dinner tonight?\nMe: sounds good" {
		t.Errorf("rendered history:\n%s", got)
	}
}

func TestLatestInbound(t *testing.T) {
	entries := []suggest.Entry{
		{Role: "user", Text: "first"},
		{Role: "assistant", Text: "mine"},
		{Role: "user", Text: "second"},
	}
	if got := latestInbound(entries); got != "second" {
		t.Errorf("latest = %q", got)
	}
	if got := latestInbound([]suggest.Entry{{Role: "assistant", Text: "x"}}); got != "" {
		t.Errorf("assistant-only history: %q", got)
	}
}

func TestBuildGenerateRequest(t *testing.T) {
	entries := []suggest.Entry{{Role: "user", Text: "see you at 8"}}
	req := buildGenerateRequest("", "", "private", 7, entries, "")
	if req.PeerID != 7 || req.SessionType != "private" {
		t.Errorf("identity: %+v", req)
	}
	if req.LatestMessage != "see you at 8" {
		t.Errorf("latest = %q", req.LatestMessage)
	}
	if !strings.Contains(req.UserPrompt, "Them: see you at 8") {
		t.Errorf("history missing from prompt:\n%s", req.UserPrompt)
	}
	if !strings.Contains(req.UserPrompt, "private chat") {
		t.Errorf("session type missing from prompt:\n%s", req.UserPrompt)
	}
	if req.SystemPrompt == "" {
		t.Error("system prompt empty")
	}
}

func TestBuildGenerateRequestCustomTemplate(t *testing.T) {
	entries := []suggest.Entry{{Role: "user", Text: "hello"}}
	req := buildGenerateRequest("sys", "last={{latest_message}}", "group", 9, entries, "pin tone")
	if req.SystemPrompt != "sys" {
		t.Errorf("system = %q", req.SystemPrompt)
	}
	if req.UserPrompt != "last=hello\npin tone" {
		t.Errorf("user prompt = %q", req.UserPrompt)
	}
}
