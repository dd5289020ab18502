package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func contentResponse(content any) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestCompleteStringContent(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, contentResponse("hello there"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", "test-model", 5*time.Second)
	got, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, false)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hello there" {
		t.Errorf("content = %q", got)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestCompletePartListContent(t *testing.T) {
	parts := []any{
		map[string]any{"type": "text", "text": "part one "},
		map[string]any{"type": "text", "text": "part two"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, contentResponse(parts))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", 5*time.Second)
	got, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "part one part two" {
		t.Errorf("content = %q", got)
	}
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":{"message":"upstream overloaded"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", 5*time.Second)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, true)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if pe.Status != http.StatusBadGateway || pe.Msg != "upstream overloaded" {
		t.Errorf("provider error = %+v", pe)
	}
}

func TestCompleteResponseFormatFallback(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		bodies = append(bodies, body)
		if _, ok := body["response_format"]; ok {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"message":"response_format is not supported by this model"}}`)
			return
		}
		io.WriteString(w, contentResponse("plain ok"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", 5*time.Second)
	got, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, true)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "plain ok" {
		t.Errorf("content = %q", got)
	}
	if len(bodies) != 2 {
		t.Fatalf("requests = %d, want 2", len(bodies))
	}
	if _, ok := bodies[0]["response_format"]; !ok {
		t.Error("first request missing response_format")
	}
	if _, ok := bodies[1]["response_format"]; ok {
		t.Error("second request still carries response_format")
	}
}

func TestCompleteUnrelatedBadRequestNotRetried(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"model not found"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", 5*time.Second)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, true)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
}

func TestCompleteConnectionError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", "test-model", time.Second)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, false)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if pe.Status != 0 {
		t.Errorf("status = %d, want 0 for transport failure", pe.Status)
	}
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, contentResponse("ok"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "test-model", 5*time.Second)
	if err := c.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection: %v", err)
	}
}
