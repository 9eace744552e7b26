package agent

import (
	"strings"
	"testing"
)

func TestIsContextLimitError(t *testing.T) {
	cases := map[string]bool{
		"request exceeds the model's context window":    true,
		"prompt exceeds maximum token budget":            true,
		"Context length exceeded":                        true,
		"maximum context reached":                        true,
		"TOKEN LIMIT hit":                                 true,
		"connection refused":                              false,
		"rate limited, try again later":                   false,
	}
	for msg, want := range cases {
		if got := isContextLimitError(msg); got != want {
			t.Errorf("isContextLimitError(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestTruncateOversizedToolResults(t *testing.T) {
	big := strings.Repeat("x", truncateThreshold+500)
	history := []Message{
		{Role: "user", Content: "[TOOL_RESULT tool=shell success=true]\n" + big + "\n[/TOOL_RESULT]"},
	}

	out, changed := recoverFromTokenLimit(history)
	if !changed {
		t.Fatal("expected truncation to report a change")
	}
	if len(out[0].Content) >= len(history[0].Content) {
		t.Fatalf("expected shorter content, got %d bytes vs original %d", len(out[0].Content), len(history[0].Content))
	}
	if !strings.Contains(out[0].Content, "[TOOL_RESULT") || !strings.Contains(out[0].Content, "[/TOOL_RESULT]") {
		t.Fatalf("expected tags preserved, got %q", out[0].Content)
	}
	if !strings.Contains(out[0].Content, "truncated") {
		t.Fatalf("expected truncation marker, got %q", out[0].Content)
	}
}

func TestRebuildHistoryTailAnchorsOnLastMessageWhenUser(t *testing.T) {
	history := []Message{
		{Role: "system", Content: "rules"},
		{Role: "assistant", Content: "one"},
		{Role: "user", Content: "two"},
		{Role: "assistant", Content: "three"},
		{Role: "user", Content: "four"},
		{Role: "assistant", Content: "five"},
		{Role: "user", Content: "six"},
	}

	out, changed := rebuildHistoryTail(history)
	if !changed {
		t.Fatal("expected rebuild to report a change")
	}
	// first preserved, bridge not needed (first is system), then just
	// the last message ("six"), since it is itself user-role.
	if len(out) != 2 || out[1].Content != "six" {
		t.Fatalf("expected a 2-message tail anchored on the last message, got %+v", out)
	}
}

func TestRebuildHistoryTailEnforcesAlternation(t *testing.T) {
	history := []Message{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "one"},
		{Role: "user", Content: "two"}, // malformed input: two users in a row
		{Role: "assistant", Content: "three"},
		{Role: "user", Content: "four"},
		{Role: "assistant", Content: "five"},
		{Role: "user", Content: "six"},
	}

	out, changed := rebuildHistoryTail(history)
	if !changed {
		t.Fatal("expected rebuild to report a change")
	}
	for i := 1; i < len(out); i++ {
		if out[i].Role == out[i-1].Role {
			t.Fatalf("alternation violated at %d: %+v", i, out)
		}
	}
	if out[0].Role != "system" {
		t.Fatalf("expected first message preserved, got %+v", out[0])
	}
}

func TestRebuildHistoryTailInsertsBridgeWhenFirstIsUser(t *testing.T) {
	history := make([]Message, 0, 8)
	history = append(history, Message{Role: "user", Content: "original instructions"})
	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, Message{Role: role, Content: "turn"})
	}

	out, changed := rebuildHistoryTail(history)
	if !changed {
		t.Fatal("expected rebuild to report a change")
	}
	if out[0].Content != "original instructions" || out[1].Role != "assistant" {
		t.Fatalf("expected bridge assistant turn after first user message, got %+v", out[:2])
	}
}

func TestRecoverFromTokenLimitFailsWhenNothingToDo(t *testing.T) {
	history := []Message{{Role: "user", Content: "short message"}}
	_, changed := recoverFromTokenLimit(history)
	if changed {
		t.Fatal("expected no progress on a short history with nothing to truncate")
	}
}
