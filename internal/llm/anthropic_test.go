package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicChatNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "be terse" {
			t.Fatalf("system = %q", req.System)
		}
		resp := anthropicResponse{
			Model:      req.Model,
			Role:       "assistant",
			StopReason: "end_turn",
			Content:    []anthropicContent{{Type: "text", Text: "hi there"}},
			Usage:      anthropicUsage{InputTokens: 3, OutputTokens: 2},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestAnthropicClient(srv.URL)
	resp, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompletionOptions{
		Model:        "claude-sonnet-4",
		SystemPrompt: "be terse",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hi there" {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Fatalf("total tokens = %d, want 5", resp.Usage.TotalTokens)
	}
	if resp.StopReason != "end_turn" {
		t.Fatalf("stop reason = %q", resp.StopReason)
	}
}

func TestAnthropicChatNormalizesToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := anthropicResponse{
			Content: []anthropicContent{
				{Type: "tool_use", ID: "toolu_1", Name: "memory_search", Input: map[string]any{"query": "foo"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestAnthropicClient(srv.URL)
	resp, err := client.Chat(context.Background(), nil, CompletionOptions{Model: "claude-sonnet-4"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(resp.Content, `"tool":"memory_search"`) {
		t.Fatalf("expected inline tool call JSON, got %q", resp.Content)
	}
}

func TestAnthropicSystemMessagesExtracted(t *testing.T) {
	msgs, system := convertToAnthropic([]Message{
		{Role: "system", Content: "rule one"},
		{Role: "system", Content: "rule two"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	if system != "rule one\n\nrule two" {
		t.Fatalf("system = %q", system)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %+v", msgs)
	}
}

// newTestAnthropicClient builds an AnthropicClient whose transport rewrites
// every request to target instead of the real Anthropic endpoint, so tests
// can exercise Chat/ChatStream against an httptest server.
func newTestAnthropicClient(url string) *AnthropicClient {
	c := NewAnthropicClient("test-key", nil)
	c.httpClient.Transport = &rewriteHostTransport{target: url, base: c.httpClient.Transport}
	return c
}

// rewriteHostTransport redirects requests to anthropicAPIURL at a local test
// server instead, so Chat/ChatStream can be exercised without a real network call.
type rewriteHostTransport struct {
	target string
	base   http.RoundTripper
}

func (t *rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	newURL := fmt.Sprintf("%s%s", t.target, req.URL.Path)
	u, err := req.URL.Parse(newURL)
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.URL = u
	req.Host = u.Host
	return t.base.RoundTrip(req)
}
