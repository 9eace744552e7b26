// Package contextmgr implements the Context Manager: character-based
// usage estimation against a model's context window, and the resume
// cycle that replaces most of a session's history with a persisted
// summary once usage crosses a threshold.
package contextmgr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polaco1782/opencrank/internal/llm"
	"github.com/polaco1782/opencrank/internal/prompts"
)

// perMessageOverhead approximates role/framing overhead per message in
// the character-based usage estimate.
const perMessageOverhead = 20

// Message is one turn of conversation history, shared verbatim with the
// llm and agent packages so real ModelAdapter implementations satisfy
// this package's interface without an adapter shim.
type Message = llm.Message

// Usage is the Context Usage value: character totals and the derived
// usage ratio against the configured budget.
type Usage struct {
	SystemPromptChars int
	HistoryChars      int
	TotalChars        int
	BudgetChars       int
	UsageRatio        float64
	NeedsResume       bool
}

// Config controls the Context Manager's thresholds and resume behavior.
type Config struct {
	MaxContextChars      int
	ReserveForResponse   int
	UsageThreshold       float64 // default 0.75
	MaxResumeChars       int     // default 3000
	AutoSaveMemory       bool
	SessionKey           string
	// DailyLogDir is the directory daily resume logs are appended to, as
	// memory/YYYY-MM-DD.md. Empty disables the daily-log side of persistence.
	DailyLogDir string
}

// DefaultConfig returns the Context Manager's default operating parameters.
func DefaultConfig() Config {
	return Config{
		MaxContextChars:    100_000,
		ReserveForResponse: 4_000,
		UsageThreshold:     0.75,
		MaxResumeChars:     3_000,
		AutoSaveMemory:     true,
	}
}

// ModelAdapter is the abstract completion endpoint used to generate
// resumes; it mirrors agent.ModelAdapter so callers can pass the same
// underlying client without an import cycle.
type ModelAdapter interface {
	Chat(ctx context.Context, history []Message, opts llm.CompletionOptions) (*llm.ChatResponse, error)
}

// MemoryStore is the subset of the Memory Store the Context Manager
// persists resumes to and loads them back from.
type MemoryStore interface {
	SaveMemory(content, category, tags string, importance int) error
	SearchTopHit(query string) (content string, ok bool, err error)
}

// Manager is the Context Manager.
type Manager struct {
	cfg   Config
	model ModelAdapter
	mem   MemoryStore
	log   *slog.Logger
}

// New constructs a Manager. mem may be nil if auto_save_memory is unused.
func New(cfg Config, model ModelAdapter, mem MemoryStore, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cfg: cfg, model: model, mem: mem, log: log.With("component", "contextmgr")}
}

// Estimate computes Context Usage for a system prompt and history.
func (m *Manager) Estimate(systemPrompt string, history []Message) Usage {
	u := Usage{SystemPromptChars: len(systemPrompt)}
	for _, msg := range history {
		u.HistoryChars += len(msg.Content) + perMessageOverhead
	}
	u.TotalChars = u.SystemPromptChars + u.HistoryChars
	u.BudgetChars = m.cfg.MaxContextChars - m.cfg.ReserveForResponse

	if u.BudgetChars <= 0 {
		u.UsageRatio = 1.0
	} else {
		u.UsageRatio = float64(u.TotalChars) / float64(u.BudgetChars)
	}

	threshold := m.cfg.UsageThreshold
	if threshold <= 0 {
		threshold = 0.75
	}
	u.NeedsResume = u.UsageRatio >= threshold
	return u
}

// Resume runs the resume cycle described in the Context Manager's
// design: generate a summary, optionally persist it, find the most
// recent real user message, and return the rebuilt history. On any
// failure it returns the error and the original history unchanged.
func (m *Manager) Resume(ctx context.Context, systemPrompt string, history []Message) ([]Message, error) {
	if m.model == nil {
		return history, fmt.Errorf("contextmgr: resume: no model adapter configured")
	}
	if len(history) == 0 {
		return history, fmt.Errorf("contextmgr: resume: empty history")
	}

	resumeHistory := append(append([]Message(nil), history...), Message{Role: "user", Content: prompts.ResumePrompt})
	resp, err := m.model.Chat(ctx, resumeHistory, llm.CompletionOptions{
		SystemPrompt:          systemPrompt,
		Temperature:           0.2,
		MaxTokens:             1024,
		SkipContextManagement: true,
	})
	if err != nil {
		return history, fmt.Errorf("contextmgr: resume: generating summary: %w", err)
	}
	if resp == nil || !resp.Success {
		return history, fmt.Errorf("contextmgr: resume: model reported failure: %s", errOrUnknown(resp))
	}

	resume := resp.Content
	maxChars := m.cfg.MaxResumeChars
	if maxChars <= 0 {
		maxChars = 3000
	}
	if len(resume) > maxChars {
		resume = resume[:maxChars] + "\n… [truncated] …"
	}

	if m.cfg.AutoSaveMemory {
		if err := m.appendDailyLog(resume); err != nil {
			m.log.Warn("failed to append resume to daily log", "error", err)
		}
		if m.mem != nil {
			if err := m.mem.SaveMemory(resume, "resume", "context,resume,session", 8); err != nil {
				m.log.Warn("failed to save resume memory entry", "error", err)
			}
		}
	}

	lastUserMessage := lastRealUserMessage(history)

	rebuilt := make([]Message, 0, 4)
	if systemPrompt != "" {
		rebuilt = append(rebuilt, Message{Role: "system", Content: systemPrompt})
	}
	rebuilt = append(rebuilt, Message{Role: "user", Content: fmt.Sprintf("[CONTEXT RESUME]\n%s\n[END CONTEXT RESUME]", resume)})
	rebuilt = append(rebuilt, Message{Role: "assistant", Content: "Understood. I have the summary of our session so far and am ready to continue."})
	if lastUserMessage != "" {
		rebuilt = append(rebuilt, Message{Role: "user", Content: lastUserMessage})
	}

	return rebuilt, nil
}

// lastRealUserMessage scans history from the end for the most recent
// user turn that is not a tool-result framing, returning "" if none.
func lastRealUserMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" && !strings.Contains(history[i].Content, "[TOOL_RESULT") {
			return history[i].Content
		}
	}
	return ""
}

// LoadFromMemory looks up the most recent resume for sessionKey via the
// Memory Store's BM25 search, returning "" on miss.
func (m *Manager) LoadFromMemory(sessionKey string) (string, error) {
	if m.mem == nil {
		return "", nil
	}
	content, ok, err := m.mem.SearchTopHit(fmt.Sprintf("context resume %s", sessionKey))
	if err != nil {
		return "", fmt.Errorf("contextmgr: load_from_memory: %w", err)
	}
	if !ok {
		return "", nil
	}
	return content, nil
}

func errOrUnknown(resp *llm.ChatResponse) string {
	if resp == nil {
		return "no response"
	}
	if resp.Error != "" {
		return resp.Error
	}
	return "unknown error"
}
