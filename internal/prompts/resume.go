package prompts

// ResumePrompt is the fixed structured-summary request the Context
// Manager appends as a user turn when usage crosses its threshold and a
// resume cycle runs. The resulting summary replaces most of the session
// history, so it asks for exactly what later turns need to pick back up.
const ResumePrompt = `This conversation is approaching its context limit. Produce a structured ` +
	`summary covering: original instructions, the user's request, work done so far, current state, ` +
	`important facts to retain, and next steps. Be concise; this summary will replace most of the ` +
	`conversation history.`
