// Package suggest generates reply suggestions for a chat session through
// an OpenAI-compatible completion provider, enforcing a strict JSON
// output contract and filtering suggestions that merely echo the message
// they answer.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a minimal chat-completions client. Only the fields this
// service needs; provider SDKs hide the response_format fallback and the
// list-of-parts content shape we have to handle.
type Client struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	HTTP        *http.Client
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		Model:       model,
		Temperature: 0.7,
		HTTP:        &http.Client{Timeout: timeout},
	}
}

type chatCompletionRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	Temperature    float64   `json:"temperature,omitempty"`
	ResponseFormat any       `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete performs one chat-completion call and returns the assistant
// text. With forceJSON the request carries response_format json_object;
// if the provider rejects exactly that with a 400, the same content is
// resubmitted once without it.
func (c *Client) Complete(ctx context.Context, messages []Message, forceJSON bool) (string, error) {
	text, status, errMsg, err := c.do(ctx, messages, forceJSON)
	if err != nil {
		return "", err
	}
	if status == http.StatusBadRequest && forceJSON && strings.Contains(strings.ToLower(errMsg), "response_format") {
		text, status, errMsg, err = c.do(ctx, messages, false)
		if err != nil {
			return "", err
		}
	}
	if status < 200 || status >= 300 {
		if errMsg == "" {
			errMsg = "request rejected"
		}
		return "", &ProviderError{Status: status, Msg: errMsg}
	}
	return text, nil
}

func (c *Client) do(ctx context.Context, messages []Message, forceJSON bool) (text string, status int, errMsg string, err error) {
	body := chatCompletionRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: c.Temperature,
	}
	if forceJSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", 0, "", &ProviderError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", 0, "", &ProviderError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", 0, "", &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, "", &ProviderError{Err: err}
	}

	var out chatCompletionResponse
	if uerr := json.Unmarshal(raw, &out); uerr != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", resp.StatusCode, string(raw), nil
		}
		return "", 0, "", &ProviderError{Status: resp.StatusCode, Msg: "undecodable response body"}
	}
	if out.Error != nil {
		errMsg = out.Error.Message
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode, errMsg, nil
	}
	if len(out.Choices) == 0 {
		return "", 0, "", &ProviderError{Status: resp.StatusCode, Msg: "empty choices"}
	}
	return decodeContent(out.Choices[0].Message.Content), resp.StatusCode, errMsg, nil
}

// decodeContent accepts the two content shapes providers emit: a plain
// string, or a list of parts whose text fields are concatenated.
func decodeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []any
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			sb.WriteString(v)
		case map[string]any:
			if t, ok := v["text"].(string); ok {
				sb.WriteString(t)
			}
		}
	}
	return sb.String()
}

// TestConnection performs a tiny completion round trip to verify the
// configured endpoint and credentials.
func (c *Client) TestConnection(ctx context.Context) error {
	text, err := c.Complete(ctx, []Message{{Role: "user", Content: "Reply with the single word: ok"}}, false)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("provider returned empty content")
	}
	return nil
}
