package providers

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama talks to Ollama or LM Studio through their OpenAI-compatible endpoint.
type Ollama struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOllama creates a local-model backend. No API key is required by default.
func NewOllama(model string) (*Ollama, error) {
	return &Ollama{
		apiKey:  os.Getenv("TRIBUNAL_OLLAMA_API_KEY"),
		model:   model,
		baseURL: ollamaEndpoint(os.Getenv("OLLAMA_HOST")),
		client:  &http.Client{Timeout: 300 * time.Second},
	}, nil
}

// ollamaEndpoint normalizes OLLAMA_HOST-style values to the chat completions URL.
func ollamaEndpoint(host string) string {
	if host == "" {
		host = defaultOllamaURL
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	host = strings.TrimRight(host, "/")
	host = strings.TrimSuffix(host, "/v1/chat/completions")
	host = strings.TrimSuffix(host, "/v1")
	return host + "/v1/chat/completions"
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Complete(ctx context.Context, req Request) (Response, error) {
	var headers map[string]string
	if o.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + o.apiKey}
	}
	return chatCompletion(ctx, o.client, o.Name(), o.baseURL, headers, o.model, req)
}
