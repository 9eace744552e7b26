// Package agent implements the core agent loop: an iterative
// "think → emit tool calls → execute → feed results back" orchestrator
// over a model adapter and a tool registry.
package agent

import (
	"context"

	"github.com/polaco1782/opencrank/internal/contextmgr"
	"github.com/polaco1782/opencrank/internal/llm"
)

// Message is one turn of conversation history, shared verbatim with the
// model adapter's wire type.
type Message = llm.Message

// ToolResultKind tags the variant of a ToolResult.
type ToolResultKind int

const (
	// ResultOK is a successful tool execution; the loop continues.
	ResultOK ToolResultKind = iota
	// ResultStop is a successful tool execution that ends the run.
	ResultStop
	// ResultFail is a failed tool execution, surfaced back to the model.
	ResultFail
)

// ToolResult is the tagged variant a tool executor returns.
type ToolResult struct {
	Kind           ToolResultKind
	Output         string
	Error          string
	ShouldContinue bool
}

// OK builds a successful, loop-continuing tool result.
func OK(output string) ToolResult {
	return ToolResult{Kind: ResultOK, Output: output, ShouldContinue: true}
}

// Stop builds a successful tool result that ends the run.
func Stop(output string) ToolResult {
	return ToolResult{Kind: ResultStop, Output: output, ShouldContinue: false}
}

// Fail builds a failing tool result.
func Fail(err string) ToolResult {
	return ToolResult{Kind: ResultFail, Error: err}
}

// ParsedToolCall is a tool invocation parsed out of assistant text, with
// the character span it occupied in the producing text.
type ParsedToolCall struct {
	ToolName   string
	Arguments  map[string]any
	Start, End int
	Valid      bool
	ParseError string
	Raw        string
}

// ToolParam describes one declared parameter of a tool, used for
// schema-directed argument recovery when parsing fails.
type ToolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     any
}

// ToolDescriptor is the registry-facing shape of a registered tool.
type ToolDescriptor struct {
	Name        string
	Description string
	Params      []ToolParam
}

// ToolExecutor is the subset of the Tool Registry the loop depends on.
// internal/tools.Registry implements this.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) ToolResult
	Has(name string) bool
	Descriptors() []ToolDescriptor
	Preamble() string
}

// ContentChunker is the subset of the Content Chunker the loop depends on
// for auto-chunking oversized tool output. internal/chunker.Store implements it.
type ContentChunker interface {
	Store(content, source string, chunkSize int) string
	GetTotalChunks(id string) int
}

// ModelAdapter is the abstract completion endpoint the loop drives.
type ModelAdapter interface {
	Chat(ctx context.Context, history []Message, opts llm.CompletionOptions) (*llm.ChatResponse, error)
}

// ContextManager is the subset of the Context Manager the loop consults
// before each model call. internal/contextmgr.Manager implements it.
type ContextManager interface {
	Estimate(systemPrompt string, history []Message) contextmgr.Usage
	Resume(ctx context.Context, systemPrompt string, history []Message) ([]Message, error)
}

// Config controls the loop's bounded-iteration and recovery behavior.
type Config struct {
	MaxIterations         int
	MaxConsecutiveErrors  int
	MaxTokenLimitRetries  int
	AutoChunkLargeResults bool
	MaxToolResultSize     int
	ChunkSize             int
	Model                 string
	Temperature           float64
	MaxTokens             int
}

// DefaultConfig returns the loop's default operating parameters.
func DefaultConfig() Config {
	return Config{
		MaxIterations:         15,
		MaxConsecutiveErrors:  3,
		MaxTokenLimitRetries:  2,
		AutoChunkLargeResults: true,
		MaxToolResultSize:     4000,
		ChunkSize:             8000,
		MaxTokens:             4096,
	}
}

// Result is the outcome of one Agent run. Exactly one of
// (Success && !Paused), Paused, or !Success is externally meaningful.
type Result struct {
	Success       bool
	Paused        bool
	FinalResponse string
	Error         string
	Iterations    int
	ToolCallsMade int
	ToolsUsed     []string
	PauseMessage  string
}
