package providers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Request is what a judge sends to its model.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Response is the raw text a model returned.
type Response struct {
	Content    string
	TokensUsed int
	// Cached is set when the response came from the response cache.
	Cached bool
}

// Backend is a model-serving endpoint a judge talks to.
type Backend interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown provider")

const defaultMaxTokens = 4096

// New creates a backend by provider name.
func New(provider, model string) (Backend, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%s: model must not be empty", provider)
	}
	switch provider {
	case "anthropic":
		return NewAnthropic(model)
	case "openai":
		return NewOpenAI(model)
	case "gemini", "google":
		return NewGemini(model)
	case "ollama", "lmstudio":
		return NewOllama(model)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// Known reports whether New understands the provider name.
func Known(provider string) bool {
	return slices.Contains(Names(), provider)
}

// Names lists the accepted provider names, aliases included.
func Names() []string {
	return []string{"anthropic", "openai", "gemini", "google", "ollama", "lmstudio"}
}

// KeyEnv returns the environment variable holding the provider's API key, if any.
func KeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini", "google":
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}
