package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/polaco1782/opencrank/internal/llm"
)

// scriptedModel replays a fixed sequence of replies, one per Chat call.
type scriptedModel struct {
	replies []string
	errs    []error
	calls   int
}

func (m *scriptedModel) Chat(ctx context.Context, history []Message, opts llm.CompletionOptions) (*llm.ChatResponse, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.replies) {
		return &llm.ChatResponse{Success: true, Content: ""}, nil
	}
	return &llm.ChatResponse{Success: true, Content: m.replies[i]}, nil
}

// fakeTools is a minimal ToolExecutor for loop tests.
type fakeTools struct {
	descs    []ToolDescriptor
	executed []string
	result   ToolResult
}

func (f *fakeTools) Execute(ctx context.Context, name string, args map[string]any) ToolResult {
	f.executed = append(f.executed, name)
	if f.result.Kind == 0 && f.result.Output == "" && f.result.Error == "" {
		return OK(fmt.Sprintf("ran %s", name))
	}
	return f.result
}

func (f *fakeTools) Has(name string) bool {
	for _, d := range f.descs {
		if d.Name == name {
			return true
		}
	}
	return false
}

func (f *fakeTools) Descriptors() []ToolDescriptor { return f.descs }
func (f *fakeTools) Preamble() string              { return "Tools available." }

func newLoopForTest(model ModelAdapter, tools ToolExecutor) *Loop {
	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	return New(model, tools, nil, cfg, nil)
}

func TestRunTerminatesOnPlainAnswer(t *testing.T) {
	model := &scriptedModel{replies: []string{"The sky is blue."}}
	tools := &fakeTools{}
	loop := newLoopForTest(model, tools)

	res := loop.Run(context.Background(), NewSession(), "why is the sky blue?", "be helpful")

	if !res.Success || res.Paused {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.FinalResponse != "The sky is blue." {
		t.Fatalf("final response = %q", res.FinalResponse)
	}
}

func TestRunExecutesToolCallThenAnswers(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"tool": "echo", "arguments": {"text": "hi"}}`,
		"Done, the tool ran.",
	}}
	tools := &fakeTools{descs: []ToolDescriptor{{Name: "echo"}}}
	loop := newLoopForTest(model, tools)

	res := loop.Run(context.Background(), NewSession(), "echo hi", "")

	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if len(tools.executed) != 1 || tools.executed[0] != "echo" {
		t.Fatalf("executed = %v, want [echo]", tools.executed)
	}
	if res.FinalResponse != "Done, the tool ran." {
		t.Fatalf("final response = %q", res.FinalResponse)
	}
}

func TestRunUnknownToolDiagnostic(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"tool": "nope", "arguments": {}}`,
		"ok, moving on",
	}}
	tools := &fakeTools{descs: []ToolDescriptor{{Name: "echo"}}}
	loop := newLoopForTest(model, tools)

	res := loop.Run(context.Background(), NewSession(), "do a thing", "")

	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if len(tools.executed) != 0 {
		t.Fatalf("unknown tool should not execute, got %v", tools.executed)
	}
}

func TestRunDuplicateWithinReplySkipped(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"tool": "echo", "arguments": {"text": "hi"}} {"tool": "echo", "arguments": {"text": "hi"}}`,
		"done",
	}}
	tools := &fakeTools{descs: []ToolDescriptor{{Name: "echo"}}}
	loop := newLoopForTest(model, tools)

	res := loop.Run(context.Background(), NewSession(), "echo twice", "")

	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if len(tools.executed) != 1 {
		t.Fatalf("expected the duplicate call within one reply to be skipped, executed = %v", tools.executed)
	}
}

func TestRunRepeatedAcrossConsecutiveIterationsSkipped(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"tool": "echo", "arguments": {"text": "hi"}}`,
		`{"tool": "echo", "arguments": {"text": "hi"}}`,
		"done",
	}}
	tools := &fakeTools{descs: []ToolDescriptor{{Name: "echo"}}}
	loop := newLoopForTest(model, tools)

	res := loop.Run(context.Background(), NewSession(), "echo", "")

	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if len(tools.executed) != 1 {
		t.Fatalf("expected second consecutive identical call to be skipped, executed = %v", tools.executed)
	}
}

func TestRunIntentToActGoadsModel(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"Let me check that for you.",
		"The answer is 42.",
	}}
	tools := &fakeTools{}
	loop := newLoopForTest(model, tools)

	res := loop.Run(context.Background(), NewSession(), "what's the answer?", "")

	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if model.calls != 2 {
		t.Fatalf("expected the goad turn to trigger a second model call, calls = %d", model.calls)
	}
	if res.FinalResponse != "The answer is 42." {
		t.Fatalf("final response = %q", res.FinalResponse)
	}
}

func TestRunQuestionTerminatesWithoutGoading(t *testing.T) {
	model := &scriptedModel{replies: []string{"Which directory would you like me to use?"}}
	tools := &fakeTools{}
	loop := newLoopForTest(model, tools)

	res := loop.Run(context.Background(), NewSession(), "set up a project", "")

	if !res.Success {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if model.calls != 1 {
		t.Fatalf("expected a clarifying question not to be goaded, calls = %d", model.calls)
	}
}

func TestRunPausesAtMaxIterations(t *testing.T) {
	replies := make([]string, 0)
	for i := 0; i < 10; i++ {
		replies = append(replies, `{"tool": "echo", "arguments": {"text": "`+fmt.Sprint(i)+`"}}`)
	}
	model := &scriptedModel{replies: replies}
	tools := &fakeTools{descs: []ToolDescriptor{{Name: "echo"}}}
	loop := newLoopForTest(model, tools)

	res := loop.Run(context.Background(), NewSession(), "keep going", "")

	if !res.Paused {
		t.Fatalf("expected pause at max iterations, got %+v", res)
	}
	if res.Success {
		t.Fatalf("expected success=false on pause, got %+v", res)
	}
	if res.PauseMessage == "" {
		t.Fatalf("expected a pause message")
	}
}

func TestRunStopToolEndsRunSuccessfully(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"tool": "finish", "arguments": {}}`}}
	tools := &fakeTools{
		descs:  []ToolDescriptor{{Name: "finish"}},
		result: Stop("all done"),
	}
	loop := newLoopForTest(model, tools)

	res := loop.Run(context.Background(), NewSession(), "wrap up", "")

	if !res.Success || res.Paused {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunFailsAfterConsecutiveModelErrors(t *testing.T) {
	model := &scriptedModel{errs: []error{
		fmt.Errorf("connection refused"),
		fmt.Errorf("connection refused"),
		fmt.Errorf("connection refused"),
	}}
	tools := &fakeTools{}
	loop := newLoopForTest(model, tools)

	session := NewSession()
	session.Append(Message{Role: "user", Content: "earlier turn"})

	res := loop.Run(context.Background(), session, "try again", "")

	if res.Success {
		t.Fatalf("expected failure after exhausting consecutive-error budget")
	}
	if len(session.History()) != 1 {
		t.Fatalf("expected rollback to pre-run history, got %d messages", len(session.History()))
	}
}

func TestClassifyIntentCases(t *testing.T) {
	cases := []struct {
		reply string
		want  intentKind
	}{
		{"The result is 7.", intentNone},
		{"What would you like me to name the file?", intentQuestion},
		{"Let me check the logs now.", intentToAct},
		{"I'll go ahead and create that file.", intentToAct},
	}
	for _, c := range cases {
		if got := classifyIntent(c.reply); got != c.want {
			t.Errorf("classifyIntent(%q) = %v, want %v", c.reply, got, c.want)
		}
	}
}

func TestFormatToolResultFraming(t *testing.T) {
	out := formatToolResult("echo", OK("hello"), false, 0, nil)
	want := "[TOOL_RESULT tool=echo success=true]\nhello\n[/TOOL_RESULT]"
	if out != want {
		t.Fatalf("formatToolResult = %q, want %q", out, want)
	}

	failOut := formatToolResult("echo", Fail("boom"), false, 0, nil)
	if failOut != "[TOOL_RESULT tool=echo success=false]\nError: boom\n[/TOOL_RESULT]" {
		t.Fatalf("formatToolResult (fail) = %q", failOut)
	}
}
