package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/polaco1782/opencrank/internal/llm"
	"github.com/polaco1782/opencrank/internal/prompts"
)

// Loop is the Agent Loop: an iterative think -> emit tool calls ->
// execute -> feed results back orchestrator over a Model Adapter and a
// Tool Registry. One Loop exclusively owns its Tool Registry, Content
// Chunker, and Config; it is driven against one Session per Run call.
type Loop struct {
	model   ModelAdapter
	tools   ToolExecutor
	chunker ContentChunker
	ctxmgr  ContextManager
	cfg     Config
	log     *slog.Logger
}

// New constructs a Loop. Consult SetContextManager to enable automatic
// resume cycles; without one, the loop never resumes on its own and
// relies entirely on the model's own context window limit surfacing as
// a token-limit error.
func New(model ModelAdapter, tools ToolExecutor, chunker ContentChunker, cfg Config, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{model: model, tools: tools, chunker: chunker, cfg: cfg, log: log.With("component", "agent")}
}

// SetContextManager attaches a Context Manager the loop consults before
// each model call, running a resume cycle when usage crosses threshold.
func (l *Loop) SetContextManager(cm ContextManager) {
	l.ctxmgr = cm
}

// Run drives one Agent run: it appends userMessage to session's history,
// augments systemPrompt with the tools preamble, and iterates until
// termination, pause, or failure.
func (l *Loop) Run(ctx context.Context, session *Session, userMessage, systemPrompt string) Result {
	history := session.History()
	initialLen := len(history)

	history = append(history, Message{Role: "user", Content: userMessage})
	augmentedPrompt := l.tools.Preamble() + "\n\n" + systemPrompt

	result := Result{Success: true}
	consecutiveErrors := 0
	tokenLimitRetries := 0
	lastIterationKeys := make(map[string]int) // dedupe key -> iteration index last used
	toolsUsedSeen := make(map[string]bool)
	nudgedEmptyResponse := false

	rollback := func() {
		session.SetHistory(history[:initialLen])
	}

	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		if l.ctxmgr != nil {
			if usage := l.ctxmgr.Estimate(augmentedPrompt, history); usage.NeedsResume {
				rebuilt, err := l.ctxmgr.Resume(ctx, "", history)
				if err != nil {
					l.log.Warn("context resume failed; continuing with unresumed history", "error", err)
				} else {
					history = rebuilt
					session.SetHistory(history)
					l.log.Info("context resume applied", "usage_ratio", usage.UsageRatio)
				}
			}
		}

		opts := llm.CompletionOptions{
			Model:        l.cfg.Model,
			SystemPrompt: augmentedPrompt,
			MaxTokens:    l.cfg.MaxTokens,
			Temperature:  l.cfg.Temperature,
		}

		resp, err := l.model.Chat(ctx, history, opts)
		if err != nil || (resp != nil && !resp.Success) {
			errMsg := errString(err, resp)
			if isContextLimitError(errMsg) && tokenLimitRetries < l.cfg.MaxTokenLimitRetries {
				recovered, ok := recoverFromTokenLimit(history)
				if ok {
					history = recovered
					tokenLimitRetries++
					l.log.Warn("token-limit recovery applied", "attempt", tokenLimitRetries)
					iteration-- // this attempt didn't consume the iteration budget
					continue
				}
				rollback()
				result.Success = false
				result.Error = fmt.Sprintf("token-limit recovery exhausted: %s", errMsg)
				result.Iterations = iteration + 1
				return result
			}

			consecutiveErrors++
			l.log.Warn("model call failed", "error", errMsg, "consecutive_errors", consecutiveErrors)
			if consecutiveErrors >= l.cfg.MaxConsecutiveErrors {
				rollback()
				result.Success = false
				result.Error = fmt.Sprintf("model call failed %d times in a row: %s", consecutiveErrors, errMsg)
				result.Iterations = iteration + 1
				return result
			}
			continue
		}

		consecutiveErrors = 0
		tokenLimitRetries = 0

		reply := resp.Content
		calls := ParseToolCalls(reply)

		if len(calls) == 0 && strings.TrimSpace(reply) == "" {
			if !nudgedEmptyResponse {
				nudgedEmptyResponse = true
				history = append(history, Message{Role: "user", Content: prompts.EmptyResponseNudge})
				session.SetHistory(history)
				continue
			}
			result.FinalResponse = prompts.EmptyResponseFallback
			result.Iterations = iteration + 1
			result.ToolsUsed = sortedKeys(toolsUsedSeen)
			return result
		}

		if len(calls) == 0 {
			switch classifyIntent(reply) {
			case intentToAct:
				history = append(history, Message{Role: "assistant", Content: reply})
				history = append(history, Message{Role: "user", Content: goadMessage})
				session.SetHistory(history)
				continue
			default:
				history = append(history, Message{Role: "assistant", Content: reply})
				session.SetHistory(history)
				result.FinalResponse = strings.TrimSpace(reply)
				result.Iterations = iteration + 1
				result.ToolsUsed = sortedKeys(toolsUsedSeen)
				return result
			}
		}

		seenThisReply := make(map[string]bool)
		var resultBodies []string
		shouldContinueLoop := true

		for _, call := range calls {
			name := call.ToolName
			args := call.Arguments

			if !call.Valid {
				if rec, ok := l.recoverInvalidCall(call); ok {
					args = rec
				} else {
					resultBodies = append(resultBodies, formatToolResult(name, Fail(recoveryDiagnostic(name)), false, 0, nil))
					continue
				}
			}

			if name == "tool_call" {
				resultBodies = append(resultBodies, formatToolResult(name, Fail("\"tool_call\" is not a tool name; emit the actual tool's name in the \"tool\" field"), false, 0, nil))
				continue
			}

			key := dedupeKey(name, args)
			if seenThisReply[key] {
				resultBodies = append(resultBodies, formatToolResult(name, duplicateSkippedResult(), false, 0, nil))
				continue
			}
			seenThisReply[key] = true

			if lastIter, ok := lastIterationKeys[key]; ok && lastIter == iteration-1 {
				resultBodies = append(resultBodies, formatToolResult(name, repeatedPreviousIterationResult(), false, 0, nil))
				lastIterationKeys[key] = iteration
				continue
			}
			lastIterationKeys[key] = iteration

			if !l.tools.Has(name) {
				names := make([]string, 0)
				for _, d := range l.tools.Descriptors() {
					names = append(names, d.Name)
				}
				resultBodies = append(resultBodies, formatToolResult(name, Fail(unknownToolDiagnostic(name, names)), false, 0, nil))
				continue
			}

			res := l.tools.Execute(ctx, name, args)

			if res.Kind != ResultFail {
				toolsUsedSeen[name] = true
				result.ToolCallsMade++
			}
			if !res.ShouldContinue && res.Kind != ResultFail {
				shouldContinueLoop = false
			}

			resultBodies = append(resultBodies, formatToolResult(name, res, l.cfg.AutoChunkLargeResults, l.cfg.MaxToolResultSize, l.chunker))
		}

		history = append(history, Message{Role: "assistant", Content: reply})
		history = append(history, Message{Role: "user", Content: strings.Join(resultBodies, "\n\n")})
		session.SetHistory(history)

		if !shouldContinueLoop {
			result.FinalResponse = nonToolText(reply, calls)
			result.Iterations = iteration + 1
			result.ToolsUsed = sortedKeys(toolsUsedSeen)
			return result
		}
	}

	result.Success = false
	result.Paused = true
	result.Iterations = l.cfg.MaxIterations
	result.ToolsUsed = sortedKeys(toolsUsedSeen)
	result.PauseMessage = "Paused after reaching the iteration limit. Reply with /continue to resume, " +
		"/continue <N> to resume with a larger iteration budget, /continue no-stop to resume without a " +
		"re-pause, or /cancel to abandon this run."
	return result
}

// recoverInvalidCall applies schema-directed argument recovery to an
// invalid ParsedToolCall whose tool name is still known.
func (l *Loop) recoverInvalidCall(call ParsedToolCall) (map[string]any, bool) {
	for _, d := range l.tools.Descriptors() {
		if d.Name == call.ToolName {
			return recoverArguments(call.Raw, d.Params)
		}
	}
	return nil, false
}

// nonToolText returns the reply text outside every parsed tool-call span,
// trimmed.
func nonToolText(reply string, calls []ParsedToolCall) string {
	var b strings.Builder
	last := 0
	for _, c := range calls {
		if c.Start > last {
			b.WriteString(reply[last:c.Start])
		}
		last = c.End
	}
	if last < len(reply) {
		b.WriteString(reply[last:])
	}
	return strings.TrimSpace(b.String())
}

func errString(err error, resp *llm.ChatResponse) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return resp.Error
	}
	return "unknown model error"
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
