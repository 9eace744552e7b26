// Package llm provides a provider-neutral chat completion interface.
//
// Every provider adapter (Ollama, Anthropic, ...) exchanges messages in its
// own wire format internally but exposes the same Message/ChatResponse shape
// to callers. Native tool-call objects returned by a provider are flattened
// into the inline "{\"tool\": ..., \"arguments\": ...}" text convention the
// agent loop parses out of plain assistant content, so the loop never needs
// to know which provider produced a given response.
package llm

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message is one turn of conversation history. Tool invocations and their
// results travel as plain text within Content (inline JSON calls, and
// [TOOL_RESULT ...] framed results) rather than as structured fields, so
// history round-trips through any provider unchanged.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions configures a single chat completion request.
type CompletionOptions struct {
	Model                 string
	SystemPrompt          string
	MaxTokens             int
	Temperature           float64
	SkipContextManagement bool
	Tools                 []map[string]any
}

// Usage reports token accounting for a completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ChatResponse is the unified result of a chat completion, regardless of
// which provider produced it.
type ChatResponse struct {
	Success    bool
	Content    string
	StopReason string
	Model      string
	Usage      Usage
	Error      string
	CreatedAt  time.Time
}

// StreamCallback receives incremental text tokens during a streaming call.
type StreamCallback func(token string)

// wireToolCall is the provider-neutral shape a provider adapter normalizes
// its native tool-call representation into before flattening to text.
type wireToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// appendInlineToolCalls flattens native tool calls onto content using the
// inline JSON invocation format the agent loop's parser recognizes.
func appendInlineToolCalls(content string, calls []wireToolCall) string {
	if len(calls) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	for _, c := range calls {
		args := c.Arguments
		if args == nil {
			args = map[string]any{}
		}
		payload, err := json.Marshal(map[string]any{
			"tool":      c.Name,
			"arguments": args,
		})
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.Write(payload)
	}
	return b.String()
}
