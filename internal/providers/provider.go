package providers

import (
	"context"
	"fmt"
)

// Usage carries the token accounting reported by a backend for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Reply is the raw result of one model call: the response text, token usage,
// and any chain-of-thought the backend exposes separately (e.g. reasoning
// content from DeepSeek, or <think> blocks from local models).
type Reply struct {
	Text      string
	Usage     Usage
	Reasoning string
}

// Provider is the uniform capability every backend implements. Call sends a
// system prompt plus the JSON-encoded task payload and blocks until the full
// response is available. Validate checks the stored credential or endpoint
// without mutating anything.
type Provider interface {
	Name() string
	Model() string
	Call(ctx context.Context, system string, payload []byte) (Reply, error)
	Validate(ctx context.Context) (bool, string)
}

// Options holds the per-provider generation settings read from the config
// store. Zero values mean "use the backend default".
type Options struct {
	Model       string
	Endpoint    string // ollama only
	MaxTokens   int
	Temperature float64
}

type ProviderAuthError struct {
	ProviderName string
	Msg          string
}

func (e *ProviderAuthError) Error() string {
	return e.Msg
}

// New builds the provider registered under name. An unknown name is a
// configuration error, not a crash.
func New(name string, opts Options) (Provider, error) {
	switch name {
	case "ollama":
		return NewOllama(opts), nil
	case "openai":
		return NewOpenAI(opts), nil
	case "anthropic":
		return NewAnthropic(opts), nil
	case "gemini":
		return NewGemini(opts), nil
	case "deepseek":
		return NewDeepSeek(opts), nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// Names lists the supported backends in display order.
func Names() []string {
	return []string{"ollama", "openai", "anthropic", "gemini", "deepseek"}
}
