package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// lookaheadWindow is how far past a candidate '{' the parser peeks for the
// literal substring "tool" before attempting a full brace match.
const lookaheadWindow = 200

// ParseToolCalls scans assistant text for inline {"tool": "...", "arguments":
// {...}} invocations and returns them in source order with precise spans,
// recovering from the common malformed-JSON failure modes LLMs produce.
// It never panics on malformed input — unparseable candidates come back as
// invalid ParsedToolCall values with ParseError populated.
func ParseToolCalls(text string) []ParsedToolCall {
	var calls []ParsedToolCall

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}

		window := text[i:min(i+lookaheadWindow, len(text))]
		if !strings.Contains(window, `"tool"`) {
			continue
		}

		end := findMatchingBrace(text, i)
		if end < 0 {
			continue
		}

		candidate := text[i:end]
		call := parseCandidate(candidate)
		call.Start = i
		call.End = end
		calls = append(calls, call)

		i = end - 1 // resume scanning after the matched span
	}

	return calls
}

// findMatchingBrace returns the index just past the '}' matching the '{' at
// start, tracking string/escape state so braces inside string values don't
// perturb the depth count. Returns -1 if no match is found.
func findMatchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// parseCandidate attempts to parse one brace-matched candidate as a tool
// call, applying recovery passes in order when direct parsing fails.
func parseCandidate(candidate string) ParsedToolCall {
	raw := candidate

	obj, err := tryParseJSON(candidate)
	if err != nil {
		repaired := recoveryPassA(candidate)
		if obj, err = tryParseJSON(repaired); err != nil {
			repaired = recoveryPassB(repaired)
			obj, err = tryParseJSON(repaired)
		}
	}
	if err != nil {
		return ParsedToolCall{Valid: false, ParseError: err.Error(), Raw: raw}
	}

	name, ok := obj["tool"].(string)
	if !ok || name == "" {
		return ParsedToolCall{Valid: false, ParseError: "missing or empty \"tool\" field", Raw: raw}
	}

	args, argErr := extractArguments(obj["arguments"])
	if argErr != "" {
		return ParsedToolCall{ToolName: name, Valid: false, ParseError: argErr, Raw: raw}
	}

	return ParsedToolCall{ToolName: name, Arguments: args, Valid: true, Raw: raw}
}

func tryParseJSON(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// extractArguments normalizes the "arguments" field, which may be absent,
// an object, or (some models emit this) a JSON-encoded string.
func extractArguments(v any) (map[string]any, string) {
	switch a := v.(type) {
	case nil:
		return map[string]any{}, ""
	case map[string]any:
		return a, ""
	case string:
		parsed, err := tryParseJSON(a)
		if err != nil {
			repaired := recoveryPassB(recoveryPassA(a))
			parsed, err = tryParseJSON(repaired)
		}
		if err != nil {
			return nil, fmt.Sprintf("arguments string did not parse as JSON: %v", err)
		}
		return parsed, ""
	default:
		return map[string]any{}, ""
	}
}

// recoveryPassA strips common fencing/trailing-comma artifacts models add
// around JSON blocks.
func recoveryPassA(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\t' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop trailing comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// recoveryPassB escapes unescaped quotes found inside value strings — the
// common failure mode when a shell command or similar value contains raw
// double quotes the model didn't escape.
func recoveryPassB(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if !inString {
			b.WriteByte(c)
			if c == '"' {
				inString = true
			}
			continue
		}

		// Inside a string value.
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' {
			b.WriteByte(c)
			escaped = true
			continue
		}
		if c != '"' {
			b.WriteByte(c)
			continue
		}

		// Found a quote while "in string". Decide whether it really closes
		// the string: look at the next non-whitespace character.
		j := i + 1
		for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\t' || s[j] == '\r') {
			j++
		}
		if j >= len(s) || s[j] == ',' || s[j] == '}' || s[j] == ']' || s[j] == ':' {
			b.WriteByte(c)
			inString = false
			continue
		}
		// Not a real close — it's an embedded quote. Escape it and stay in-string.
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return b.String()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
