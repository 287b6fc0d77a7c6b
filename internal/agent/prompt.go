package agent

import (
	_ "embed"
	"os"
)

//go:embed prompt.txt
var defaultPrompt string

const promptOverrideFile = "pilot.prompt.txt"

// SystemPrompt returns the agent's system prompt. A pilot.prompt.txt in the
// working directory overrides the built-in one.
func SystemPrompt() string {
	if b, err := os.ReadFile(promptOverrideFile); err == nil && len(b) > 0 {
		return string(b)
	}
	return defaultPrompt
}
