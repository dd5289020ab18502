package suggest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Sentiments the payload may carry.
var validSentiments = map[string]bool{
	"positive": true,
	"neutral":  true,
	"negative": true,
	"urgent":   true,
}

// Suggestion is one proposed reply.
type Suggestion struct {
	Text   string `json:"text"`
	Tone   string `json:"tone"`
	Intent string `json:"intent"`
	Notes  string `json:"notes"`
}

// ReplyPayload is the full structured result of one generation call.
// It is never partially valid; parsePayload rejects anything that does
// not satisfy the whole shape.
type ReplyPayload struct {
	PeerID      flexInt64    `json:"peer_id"`
	SessionType string       `json:"session_type"`
	Sentiment   string       `json:"sentiment"`
	Suggestions []Suggestion `json:"suggestions"`
}

// flexInt64 tolerates providers echoing the peer id back as a string.
// The value is overwritten with the caller's anyway.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt64(n)
	return nil
}

func (f flexInt64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(f), 10)), nil
}

// cleanModelOutput strips the wrappers models put around JSON: code
// fences, box control tags, stray prose. If the remainder is not itself
// a bracketed object, the substring from the first { to the last } is
// taken as a best-effort repair.
func cleanModelOutput(raw string) string {
	s := strings.TrimSpace(raw)
	for _, tag := range []string{"<|begin_of_box|>", "<|end_of_box|>"} {
		s = strings.ReplaceAll(s, tag, "")
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.Index(s, "\n"); i >= 0 && !strings.HasPrefix(s, "{") {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// parsePayload cleans, decodes and validates one provider response.
func parsePayload(raw string) (*ReplyPayload, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ContractError{Reason: "empty content"}
	}
	cleaned := cleanModelOutput(raw)

	var p ReplyPayload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return nil, &ContractError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if !validSentiments[p.Sentiment] {
		return nil, &ContractError{Reason: fmt.Sprintf("invalid sentiment %q", p.Sentiment)}
	}
	if len(p.Suggestions) < 1 || len(p.Suggestions) > 3 {
		return nil, &ContractError{Reason: fmt.Sprintf("expected 1-3 suggestions, got %d", len(p.Suggestions))}
	}
	for i, s := range p.Suggestions {
		if strings.TrimSpace(s.Text) == "" {
			return nil, &ContractError{Reason: fmt.Sprintf("suggestion %d has empty text", i)}
		}
	}
	return &p, nil
}
