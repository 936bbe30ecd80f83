package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const geminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Gemini talks to Google's generateContent API.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGemini creates a Gemini backend from GEMINI_API_KEY (or GOOGLE_API_KEY).
func NewGemini(model string) (*Gemini, error) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if key == "" {
		return nil, &AuthError{Provider: "gemini", Message: "GEMINI_API_KEY (or GOOGLE_API_KEY) environment variable is not set"}
	}
	return &Gemini{
		apiKey:  key,
		model:   model,
		baseURL: geminiAPIURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Complete(ctx context.Context, req Request) (Response, error) {
	endpoint := fmt.Sprintf("%s/%s:generateContent", g.baseURL, url.PathEscape(g.model))

	body := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		},
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: req.UserPrompt}},
			},
		},
		GenerationConfig: &geminiGenConfig{
			MaxOutputTokens: maxTokensOrDefault(req.MaxTokens),
		},
	}
	if req.Temperature > 0 {
		body.GenerationConfig.Temperature = &req.Temperature
	}

	// The key travels in a header so it never shows up in logged URLs.
	headers := map[string]string{"x-goog-api-key": g.apiKey}

	var result geminiResponse
	if err := postJSON(ctx, g.client, g.Name(), endpoint, headers, body, &result); err != nil {
		return Response{}, err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return Response{}, fmt.Errorf("gemini: no content in response: %w", ErrEmptyResponse)
	}

	var content strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}
	if content.Len() == 0 {
		return Response{}, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	return Response{
		Content:    content.String(),
		TokensUsed: result.UsageMetadata.TotalTokenCount,
	}, nil
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsage struct {
	TotalTokenCount int `json:"totalTokenCount"`
}
