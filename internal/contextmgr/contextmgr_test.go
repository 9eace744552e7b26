package contextmgr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/polaco1782/opencrank/internal/llm"
)

func TestEstimateUsageRatio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxContextChars = 1000
	cfg.ReserveForResponse = 200
	m := New(cfg, nil, nil, nil)

	history := []Message{
		{Role: "user", Content: strings.Repeat("a", 300)},
		{Role: "assistant", Content: strings.Repeat("b", 300)},
	}
	usage := m.Estimate("system prompt", history)

	// budget = 800; total = 13(system) + (300+20)*2 = 653; ratio = 0.816,
	// which is at or above the default 0.75 threshold.
	if usage.BudgetChars != 800 {
		t.Fatalf("budget = %d, want 800", usage.BudgetChars)
	}
	if !usage.NeedsResume {
		t.Fatalf("expected needs_resume true at ratio %f", usage.UsageRatio)
	}
}

func TestEstimateNeedsResumeAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxContextChars = 1000
	cfg.ReserveForResponse = 0
	cfg.UsageThreshold = 0.75
	m := New(cfg, nil, nil, nil)

	history := []Message{{Role: "user", Content: strings.Repeat("a", 780)}}
	usage := m.Estimate("", history)
	if !usage.NeedsResume {
		t.Fatalf("usage = %+v, expected needs_resume true", usage)
	}
}

func TestEstimateZeroBudgetSaturates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxContextChars = 10
	cfg.ReserveForResponse = 20 // budget goes negative
	m := New(cfg, nil, nil, nil)

	usage := m.Estimate("x", nil)
	if usage.UsageRatio != 1.0 || !usage.NeedsResume {
		t.Fatalf("usage = %+v, expected ratio 1.0 and needs_resume true", usage)
	}
}

type fakeResumeModel struct {
	content string
	skipSet bool
}

func (f *fakeResumeModel) Chat(ctx context.Context, history []Message, opts llm.CompletionOptions) (*llm.ChatResponse, error) {
	f.skipSet = opts.SkipContextManagement
	return &llm.ChatResponse{Success: true, Content: f.content}, nil
}

type fakeMemStore struct {
	saved   []string
	hit     string
	hasHit  bool
}

func (f *fakeMemStore) SaveMemory(content, category, tags string, importance int) error {
	f.saved = append(f.saved, content)
	return nil
}

func (f *fakeMemStore) SearchTopHit(query string) (string, bool, error) {
	return f.hit, f.hasHit, nil
}

func TestResumeRebuildsHistoryAndPersists(t *testing.T) {
	model := &fakeResumeModel{content: "summary of everything so far"}
	mem := &fakeMemStore{}
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.DailyLogDir = dir
	m := New(cfg, model, mem, nil)

	history := []Message{
		{Role: "user", Content: "please build the widget"},
		{Role: "assistant", Content: `{"tool": "echo", "arguments": {}}`},
		{Role: "user", Content: "[TOOL_RESULT tool=echo success=true]\nok\n[/TOOL_RESULT]"},
	}

	rebuilt, err := m.Resume(context.Background(), "be helpful", history)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !model.skipSet {
		t.Fatal("expected SkipContextManagement to be set on the resume call")
	}
	if len(mem.saved) != 1 || mem.saved[0] != "summary of everything so far" {
		t.Fatalf("saved = %v", mem.saved)
	}

	if rebuilt[0].Role != "system" || rebuilt[0].Content != "be helpful" {
		t.Fatalf("rebuilt[0] = %+v", rebuilt[0])
	}
	if !strings.Contains(rebuilt[1].Content, "[CONTEXT RESUME]") {
		t.Fatalf("rebuilt[1] = %+v", rebuilt[1])
	}
	// The most recent *real* user message (not a [TOOL_RESULT one) must
	// reappear at the end.
	last := rebuilt[len(rebuilt)-1]
	if last.Role != "user" || last.Content != "please build the widget" {
		t.Fatalf("last = %+v", last)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one daily log file, got %v (err %v)", entries, err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if !strings.Contains(string(data), "summary of everything so far") {
		t.Fatalf("daily log missing resume content: %s", data)
	}
}

func TestResumeTruncatesOversizedSummary(t *testing.T) {
	model := &fakeResumeModel{content: strings.Repeat("x", 5000)}
	cfg := DefaultConfig()
	cfg.MaxResumeChars = 100
	m := New(cfg, model, nil, nil)

	rebuilt, err := m.Resume(context.Background(), "", []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !strings.Contains(rebuilt[0].Content, "truncated") {
		t.Fatalf("expected truncation marker in %q", rebuilt[0].Content)
	}
}

func TestLoadFromMemoryMiss(t *testing.T) {
	m := New(DefaultConfig(), nil, &fakeMemStore{hasHit: false}, nil)
	content, err := m.LoadFromMemory("session-1")
	if err != nil {
		t.Fatalf("LoadFromMemory: %v", err)
	}
	if content != "" {
		t.Fatalf("expected empty on miss, got %q", content)
	}
}

func TestLoadFromMemoryHit(t *testing.T) {
	m := New(DefaultConfig(), nil, &fakeMemStore{hit: "previous resume", hasHit: true}, nil)
	content, err := m.LoadFromMemory("session-1")
	if err != nil {
		t.Fatalf("LoadFromMemory: %v", err)
	}
	if content != "previous resume" {
		t.Fatalf("content = %q", content)
	}
}
