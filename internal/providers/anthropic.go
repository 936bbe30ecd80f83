package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic talks to the Messages API through the official SDK.
type Anthropic struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropic creates an Anthropic backend from ANTHROPIC_API_KEY.
// TRIBUNAL_ANTHROPIC_BASE_URL points it at a proxy or gateway.
func NewAnthropic(model string) (*Anthropic, error) {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil, &AuthError{Provider: "anthropic", Message: "ANTHROPIC_API_KEY environment variable is not set"}
	}
	return newAnthropic(model, key, os.Getenv("TRIBUNAL_ANTHROPIC_BASE_URL"), nil), nil
}

func newAnthropic(model, apiKey, baseURL string, httpClient *http.Client) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries belong to the caller; a judge gets exactly one attempt.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	opts = append(opts, option.WithHTTPClient(httpClient))
	client := anthropic.NewClient(opts...)
	return &Anthropic{api: &client, model: anthropic.Model(model)}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := a.api.Messages.New(ctx, params)
	if err != nil {
		return Response{}, anthropicError(err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return Response{}, fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}

	return Response{
		Content:    content.String(),
		TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}

// anthropicError converts SDK API errors into this package's typed errors.
func anthropicError(err error) error {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		return fmt.Errorf("anthropic: %w", err)
	}
	var header http.Header
	if apierr.Response != nil {
		header = apierr.Response.Header
	}
	return statusError("anthropic", apierr.StatusCode, header, []byte(apierr.Error()))
}
