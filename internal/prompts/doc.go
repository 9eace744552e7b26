// Package prompts contains all LLM prompt templates used internally by the
// agent runtime.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation, benefit from compile-time embedding,
// and can be validated by tests. User-facing configuration lives in config.yaml;
// this package holds the instructions we send to models for internal operations
// (the base system prompt, resume-cycle summarization, empty-response recovery).
//
// Convention: each prompt category gets its own file (system.go, resume.go,
// agent.go) with either an exported constant or a function that accepts the
// dynamic parts and returns the fully interpolated prompt string.
package prompts
