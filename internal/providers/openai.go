package providers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAI talks to the Chat Completions API.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAI creates an OpenAI backend from OPENAI_API_KEY.
// TRIBUNAL_OPENAI_BASE_URL overrides the endpoint.
func NewOpenAI(model string) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, &AuthError{Provider: "openai", Message: "OPENAI_API_KEY environment variable is not set"}
	}
	baseURL := os.Getenv("TRIBUNAL_OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAI{
		apiKey:  key,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	return chatCompletion(ctx, o.client, o.Name(), o.baseURL, headers, o.model, req)
}

// chatCompletion performs one OpenAI-compatible chat completion call.
func chatCompletion(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, model string, req Request) (Response, error) {
	body := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens: maxTokensOrDefault(req.MaxTokens),
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	var result chatResponse
	if err := postJSON(ctx, client, provider, url, headers, body, &result); err != nil {
		return Response{}, err
	}
	if len(result.Choices) == 0 {
		return Response{}, fmt.Errorf("%s: no choices in response: %w", provider, ErrEmptyResponse)
	}
	if result.Choices[0].Message.Content == "" {
		return Response{}, fmt.Errorf("%s: %w", provider, ErrEmptyResponse)
	}

	return Response{
		Content:    result.Choices[0].Message.Content,
		TokensUsed: result.Usage.TotalTokens,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	TotalTokens int `json:"total_tokens"`
}
