package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// recoverArguments attempts schema-directed argument recovery for an
// invalid ParsedToolCall, given the target tool's declared parameters.
// It returns the recovered arguments and true on success.
func recoverArguments(raw string, params []ToolParam) (map[string]any, bool) {
	recovered := make(map[string]any)
	missing := false

	for _, p := range params {
		val, found := findParamValue(raw, p.Name)
		if found {
			recovered[p.Name] = val
		} else if p.Required {
			missing = true
		}
	}

	if len(recovered) > 0 && !missing {
		return recovered, true
	}

	if len(params) == 1 {
		return map[string]any{params[0].Name: raw}, true
	}

	return nil, false
}

// findParamValue searches raw for "name": or 'name': or a bare
// identifier followed by : and extracts the adjacent quoted or bare
// value.
func findParamValue(raw, name string) (string, bool) {
	patterns := []string{
		fmt.Sprintf(`"%s"\s*:\s*"([^"]*)"`, regexp.QuoteMeta(name)),
		fmt.Sprintf(`'%s'\s*:\s*'([^']*)'`, regexp.QuoteMeta(name)),
		fmt.Sprintf(`\b%s\s*:\s*"([^"]*)"`, regexp.QuoteMeta(name)),
		fmt.Sprintf(`\b%s\s*:\s*'([^']*)'`, regexp.QuoteMeta(name)),
		fmt.Sprintf(`\b%s\s*:\s*([^\s,}]+)`, regexp.QuoteMeta(name)),
	}
	for _, pat := range patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(raw); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// recoveryDiagnostic is shown when recovery fails entirely.
func recoveryDiagnostic(toolName string) string {
	return fmt.Sprintf(
		`Could not parse arguments for tool %q. Emit valid JSON, e.g. {"tool": %q, "arguments": {"param": "value"}}. `+
			`For complex payloads (multi-line text, code), write the content to a file first and pass a file reference instead.`,
		toolName, toolName,
	)
}

// unknownToolDiagnostic lists the available tool names.
func unknownToolDiagnostic(name string, available []string) string {
	return fmt.Sprintf("unknown tool %q; available tools: %s", name, strings.Join(available, ", "))
}
