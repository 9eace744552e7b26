// Package llm provides LLM client implementations.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/polaco1782/opencrank/internal/httpkit"
)

// OllamaClient is a client for the Ollama API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: baseURL,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(5*time.Minute), // large local models with tools need time
			httpkit.WithRetry(2, 500*time.Millisecond),
		),
	}
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  *ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model     string        `json:"model"`
	CreatedAt string        `json:"created_at"`
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// Chat sends a chat completion request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, history []Message, opts CompletionOptions) (*ChatResponse, error) {
	return c.ChatStream(ctx, history, opts, nil)
}

// ChatStream sends a streaming chat request to Ollama.
// If callback is non-nil, tokens are streamed to it.
func (c *OllamaClient) ChatStream(ctx context.Context, history []Message, opts CompletionOptions, callback StreamCallback) (*ChatResponse, error) {
	stream := callback != nil

	req := ollamaChatRequest{
		Model:    opts.Model,
		Messages: convertToOllama(history, opts.SystemPrompt),
		Stream:   stream,
		Tools:    opts.Tools,
		Options: &ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var final ollamaChatResponse
	if !stream {
		if err := json.NewDecoder(resp.Body).Decode(&final); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	} else {
		var contentBuilder strings.Builder
		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChatResponse
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					break
				}
				return nil, fmt.Errorf("decode stream chunk: %w", err)
			}
			if chunk.Message.Content != "" {
				contentBuilder.WriteString(chunk.Message.Content)
				callback(chunk.Message.Content)
			}
			if len(chunk.Message.ToolCalls) > 0 {
				final.Message.ToolCalls = chunk.Message.ToolCalls
			}
			if chunk.Done {
				toolCalls := final.Message.ToolCalls
				final = chunk
				final.Message.Content = contentBuilder.String()
				if len(final.Message.ToolCalls) == 0 {
					final.Message.ToolCalls = toolCalls
				}
				break
			}
		}
	}

	calls := make([]wireToolCall, 0, len(final.Message.ToolCalls))
	for _, tc := range final.Message.ToolCalls {
		calls = append(calls, wireToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}

	return &ChatResponse{
		Success:    true,
		Content:    appendInlineToolCalls(final.Message.Content, calls),
		StopReason: doneReason(final.Done),
		Model:      final.Model,
		Usage: Usage{
			InputTokens:  final.PromptEvalCount,
			OutputTokens: final.EvalCount,
			TotalTokens:  final.PromptEvalCount + final.EvalCount,
		},
	}, nil
}

func doneReason(done bool) string {
	if done {
		return "stop"
	}
	return ""
}

// convertToOllama flattens provider-neutral history into Ollama's wire
// message shape, prepending the system prompt as a system-role message.
func convertToOllama(history []Message, systemPrompt string) []ollamaMessage {
	msgs := make([]ollamaMessage, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}

	return nil
}

// ListModels returns available models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}
