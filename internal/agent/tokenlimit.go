package agent

import "strings"

// contextLimitMarkers are the case-insensitive substrings that classify a
// model-call error as a context-limit error.
var contextLimitMarkers = []string{
	"too long", "context length", "maximum context", "token limit", "context size",
}

// isContextLimitError reports whether err's message indicates the model
// rejected the call for exceeding its context window.
func isContextLimitError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	if strings.Contains(lower, "exceeds") && (strings.Contains(lower, "context") || strings.Contains(lower, "token")) {
		return true
	}
	for _, marker := range contextLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

const (
	truncateThreshold  = 10000
	truncateKeepChars  = 2000
	truncationMarker   = "\n… [truncated] …\n"
	bridgeMessage      = "Earlier conversation context was truncated to fit context window."
)

// recoverFromTokenLimit attempts the two-strategy Token-Limit Recovery
// algorithm against history, returning the recovered history and whether
// any progress was made.
func recoverFromTokenLimit(history []Message) ([]Message, bool) {
	if truncated, ok := truncateOversizedToolResults(history); ok {
		return truncated, true
	}
	if len(history) > 6 {
		if rebuilt, ok := rebuildHistoryTail(history); ok {
			return rebuilt, true
		}
	}
	return history, false
}

// truncateOversizedToolResults shortens any [TOOL_RESULT ...]...[/TOOL_RESULT]
// body larger than truncateThreshold characters to its first
// truncateKeepChars characters plus a truncation marker, preserving the
// open/close tags. Reports whether any message changed.
func truncateOversizedToolResults(history []Message) ([]Message, bool) {
	const openTag = "[TOOL_RESULT"
	const closeTag = "[/TOOL_RESULT]"

	changed := false
	out := make([]Message, len(history))
	copy(out, history)

	for i, m := range out {
		if m.Role != "user" || !strings.Contains(m.Content, openTag) {
			continue
		}
		newContent, didChange := truncateToolResultBodies(m.Content, openTag, closeTag)
		if didChange {
			out[i].Content = newContent
			changed = true
		}
	}
	return out, changed
}

func truncateToolResultBodies(content, openTag, closeTag string) (string, bool) {
	var b strings.Builder
	changed := false
	rest := content

	for {
		openIdx := strings.Index(rest, openTag)
		if openIdx < 0 {
			b.WriteString(rest)
			break
		}
		headerEnd := strings.Index(rest[openIdx:], "]")
		if headerEnd < 0 {
			b.WriteString(rest)
			break
		}
		headerEnd += openIdx + 1 // position just past ']'

		closeIdx := strings.Index(rest[headerEnd:], closeTag)
		if closeIdx < 0 {
			b.WriteString(rest)
			break
		}
		closeIdx += headerEnd

		b.WriteString(rest[:headerEnd])
		body := rest[headerEnd:closeIdx]
		if len(body) > truncateThreshold {
			if len(body) > truncateKeepChars {
				body = body[:truncateKeepChars] + truncationMarker
			}
			changed = true
		}
		b.WriteString(body)
		b.WriteString(closeTag)

		rest = rest[closeIdx+len(closeTag):]
	}
	return b.String(), changed
}

// rebuildHistoryTail replaces history with the first message, an optional
// synthetic assistant bridge, and a tail anchored at the most recent
// user message found among the last 4 messages (including the very last
// message), enforcing role alternation by skipping any message whose
// role equals the previous kept message's role. If none of the last 4
// messages is user-role, the tail falls back to just the single last
// message.
func rebuildHistoryTail(history []Message) ([]Message, bool) {
	if len(history) == 0 {
		return history, false
	}

	tailStart := len(history) - 1
	for back := 1; back <= 4 && back <= len(history); back++ {
		idx := len(history) - back
		if history[idx].Role == "user" {
			tailStart = idx
			break
		}
	}

	first := history[0]
	rebuilt := []Message{first}
	if first.Role == "user" {
		rebuilt = append(rebuilt, Message{Role: "assistant", Content: bridgeMessage})
	}

	for _, m := range history[tailStart:] {
		if len(rebuilt) > 0 && rebuilt[len(rebuilt)-1].Role == m.Role {
			continue
		}
		rebuilt = append(rebuilt, m)
	}

	if len(rebuilt) >= len(history) {
		return history, false
	}
	return rebuilt, true
}
