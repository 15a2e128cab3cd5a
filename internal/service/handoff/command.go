package handoff

import "strings"

// Confirmation is sent to the operator after a "+" command.
const Confirmation = "✅ Bot reativado! IA assumiu novamente."

// Command is a control instruction typed on the operator line.
type Command struct {
	// ContactID is set for "+ <contact>".
	ContactID string
}

// ParseCommand recognises "+" and "+ <contact>".
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "+") {
		return Command{}, false
	}
	rest := strings.TrimSpace(text[1:])
	if rest == "" {
		return Command{}, true
	}
	if strings.ContainsAny(rest, " \t\n") {
		return Command{}, false
	}
	return Command{ContactID: rest}, true
}
