package agent

import "regexp"

var (
	// .env style VAR=value lines
	envRegex = regexp.MustCompile(`(?m)^([A-Z_]+)=\S+$`)
	// JWT token heuristic
	jwtRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)
	// OpenAI and generic sk- keys
	skRegex = regexp.MustCompile(`sk-[a-zA-Z0-9\-]{20,}`)
	// Google API keys
	aizaRegex = regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`)
	// GitHub personal access tokens
	ghpRegex = regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`)
)

// Scrub redacts secrets from feedback text before it travels back to a
// provider. Applied to command output and web results, never to file
// context, since redacting file content would break anchored edits.
func Scrub(input string) string {
	input = envRegex.ReplaceAllString(input, "${1}=[REDACTED]")
	input = skRegex.ReplaceAllString(input, "[REDACTED_KEY]")
	input = jwtRegex.ReplaceAllString(input, "[REDACTED_JWT]")
	input = aizaRegex.ReplaceAllString(input, "[REDACTED_KEY]")
	input = ghpRegex.ReplaceAllString(input, "[REDACTED_KEY]")
	return input
}
