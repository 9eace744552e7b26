package agent

import "strings"

// interrogativeLeads mark a reply as a genuine question to the user
// rather than an unexecuted intent to act.
var interrogativeLeads = []string{
	"which", "what", "where", "could you", "would you", "do you want",
}

// intentPhrases are fixed "I'm about to do something" phrasings that
// signal the model described an action instead of emitting the tool
// call for it.
var intentPhrases = []string{
	"let me ", "i'll ", "i will ", "i need to ", "now let me", "let's ",
	"i should ", "i'll do that", "i'm going to", "let me go ahead",
}

// intentKind classifies a zero-tool-call reply.
type intentKind int

const (
	intentNone     intentKind = iota // terminate successfully, reply is the final answer
	intentQuestion                   // terminate successfully, reply is a question to the user
	intentToAct                      // goad the model into emitting the tool call
)

// classifyIntent inspects a lower-cased reply with no parsed tool calls
// and decides whether it's a question, an unacted intent to act, or a
// plain final answer.
func classifyIntent(reply string) intentKind {
	lower := strings.ToLower(reply)

	if strings.Contains(lower, "?") {
		for _, lead := range interrogativeLeads {
			if strings.Contains(lower, lead) {
				return intentQuestion
			}
		}
	}

	for _, phrase := range intentPhrases {
		if strings.Contains(lower, phrase) {
			return intentToAct
		}
	}

	return intentNone
}

// goadMessage instructs the model to stop describing an action and emit
// the required tool-call JSON instead.
const goadMessage = `You described an action but didn't emit a tool call. ` +
	`Stop planning and respond with the tool call now, in the required ` +
	`JSON form: {"tool": "<name>", "arguments": {...}}.`
