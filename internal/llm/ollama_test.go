package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaChatNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Messages[0].Role != "system" {
			t.Fatalf("expected system prompt prepended, got role %q", req.Messages[0].Role)
		}
		resp := ollamaChatResponse{
			Model: req.Model,
			Message: ollamaMessage{
				Role:    "assistant",
				Content: "hello there",
			},
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       5,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	resp, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, CompletionOptions{
		Model:        "llama3",
		SystemPrompt: "be terse",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected Success=true")
	}
	if resp.Content != "hello there" {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("total tokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestOllamaChatNormalizesNativeToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ollamaChatResponse{
			Message: ollamaMessage{
				Role: "assistant",
				ToolCalls: []ollamaToolCall{{
					Function: struct {
						Name      string         `json:"name"`
						Arguments map[string]any `json:"arguments"`
					}{Name: "shell", Arguments: map[string]any{"command": "ls"}},
				}},
			},
			Done: true,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	resp, err := client.Chat(context.Background(), nil, CompletionOptions{Model: "llama3"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(resp.Content, `"tool":"shell"`) {
		t.Fatalf("expected inline tool call JSON, got %q", resp.Content)
	}
	if !strings.Contains(resp.Content, `"command":"ls"`) {
		t.Fatalf("expected arguments in inline JSON, got %q", resp.Content)
	}
}

func TestOllamaChatStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunks := []ollamaChatResponse{
			{Message: ollamaMessage{Content: "Hel"}},
			{Message: ollamaMessage{Content: "lo"}},
			{Message: ollamaMessage{Content: ""}, Done: true},
		}
		enc := json.NewEncoder(w)
		for _, c := range chunks {
			enc.Encode(c)
		}
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	var tokens []string
	resp, err := client.ChatStream(context.Background(), nil, CompletionOptions{Model: "llama3"}, func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if strings.Join(tokens, "") != "Hello" {
		t.Fatalf("streamed tokens = %q", tokens)
	}
	if resp.Content != "Hello" {
		t.Fatalf("final content = %q", resp.Content)
	}
}

func TestOllamaPingFailsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from Ping")
	}
}
