package agent

import (
	"encoding/json"
	"fmt"
	"sort"
)

// dedupeKey returns a stable key for duplicate suppression, keyed by tool
// name plus the canonical (sorted-key) JSON encoding of its arguments.
func dedupeKey(toolName string, args map[string]any) string {
	canonical, _ := json.Marshal(sortedMap(args))
	return toolName + ":" + string(canonical)
}

// sortedMap renders m as an ordered slice of key/value pairs so its JSON
// encoding is deterministic regardless of map iteration order.
func sortedMap(m map[string]any) []keyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]keyValue, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, keyValue{Key: k, Value: m[k]})
	}
	return pairs
}

type keyValue struct {
	Key   string `json:"k"`
	Value any    `json:"v"`
}

// formatToolResult renders res per the [TOOL_RESULT tool=<name>
// success=<bool>]<body>[/TOOL_RESULT] framing contract. When res is
// successful and output exceeds maxSize with autoChunk enabled, the body
// is replaced with a chunk summary referencing the Content Chunker.
func formatToolResult(name string, res ToolResult, autoChunk bool, maxSize int, chunker ContentChunker) string {
	success := res.Kind != ResultFail

	var body string
	switch {
	case !success:
		body = fmt.Sprintf("Error: %s", res.Error)
	case autoChunk && len(res.Output) > maxSize && chunker != nil:
		body = chunkSummary(name, res.Output, chunker)
	default:
		body = res.Output
	}

	return fmt.Sprintf("[TOOL_RESULT tool=%s success=%t]\n%s\n[/TOOL_RESULT]", name, success, body)
}

func chunkSummary(source, output string, chunker ContentChunker) string {
	id := chunker.Store(output, source, 0)
	total := chunker.GetTotalChunks(id)

	previewLen := 2000
	if len(output) < previewLen {
		previewLen = len(output)
	}
	return fmt.Sprintf(
		"Output was %d characters; stored as %s (%d chunks). Preview:\n%s\n\nUse content_chunk(id=%q, chunk=<index>) or content_search(id=%q, query=...) to read the rest.",
		len(output), id, total, output[:previewLen], id, id,
	)
}

// duplicateSkippedResult is the synthetic Tool Result for a call repeated
// within the same reply.
func duplicateSkippedResult() ToolResult {
	return OK("duplicate skipped: an identical call already ran earlier in this reply")
}

// repeatedPreviousIterationResult is the synthetic Tool Result for a call
// whose dedupe key matches the immediately previous iteration.
func repeatedPreviousIterationResult() ToolResult {
	return OK("same call as previous iteration: try a different approach instead of repeating it")
}
