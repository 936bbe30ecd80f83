package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tribunal/internal/cache"
	"github.com/dshills/tribunal/internal/review"
)

var testRequest = Request{SystemPrompt: "sys", UserPrompt: "user", MaxTokens: 10}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New("unknown", "model")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNew_EmptyModel(t *testing.T) {
	_, err := New("ollama", " ")
	assert.Error(t, err)
}

func TestNew_MissingKeyIsAuthError(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	for _, p := range []string{"anthropic", "openai", "gemini", "google"} {
		_, err := New(p, "m")
		assert.True(t, IsAuthError(err), "%s: %v", p, err)
	}
}

func TestNew_OllamaAliases(t *testing.T) {
	for _, p := range []string{"ollama", "lmstudio"} {
		b, err := New(p, "llama3")
		require.NoError(t, err)
		assert.Equal(t, "ollama", b.Name())
	}
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("anthropic"))
	assert.True(t, Known("google"))
	assert.False(t, Known("cohere"))
}

func TestOllamaEndpoint(t *testing.T) {
	tests := map[string]string{
		"":                                     "http://localhost:11434/v1/chat/completions",
		"http://host:1234/":                    "http://host:1234/v1/chat/completions",
		"http://host:1234/v1":                  "http://host:1234/v1/chat/completions",
		"http://host:1234/v1/chat/completions": "http://host:1234/v1/chat/completions",
		"127.0.0.1:11434":                      "http://127.0.0.1:11434/v1/chat/completions",
		"https://lmstudio.internal/v1/":        "https://lmstudio.internal/v1/chat/completions",
	}
	for in, want := range tests {
		assert.Equal(t, want, ollamaEndpoint(in), in)
	}
}

func TestAnthropic_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.EqualValues(t, 10, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"{\"disposition\":\"approve\"}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":100,"output_tokens":10}}`)
	}))
	defer server.Close()

	a := newAnthropic("claude-test", "test-key", server.URL, server.Client())
	resp, err := a.Complete(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, `{"disposition":"approve"}`, resp.Content)
	assert.Equal(t, 110, resp.TokensUsed)
	assert.Equal(t, "anthropic", a.Name())
}

func TestAnthropic_StatusErrors(t *testing.T) {
	tests := []struct {
		code  int
		check func(error) bool
		want  review.Failure
	}{
		{http.StatusUnauthorized, IsAuthError, review.FailureTransport},
		{http.StatusTooManyRequests, IsRateLimited, review.FailureRateLimited},
		{http.StatusInternalServerError, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.StatusCode == 500
		}, review.FailureTransport},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.code)
				fmt.Fprint(w, `{"type":"error","error":{"type":"api_error","message":"nope"}}`)
			}))
			defer server.Close()

			a := newAnthropic("claude-test", "k", server.URL, server.Client())
			_, err := a.Complete(context.Background(), testRequest)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type: %v", err)
			assert.Equal(t, tt.want, Classify(err))
			assert.EqualValues(t, 1, calls.Load(), "backends must not retry")
		})
	}
}

func TestAnthropic_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`)
	}))
	defer server.Close()

	_, err := newAnthropic("m", "k", server.URL, server.Client()).Complete(context.Background(), testRequest)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAI_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
		}
		assert.Equal(t, 10, req.MaxTokens)
		assert.NotNil(t, req.Temperature)

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "LGTM"}}},
			Usage:   chatUsage{TotalTokens: 50},
		})
	}))
	defer server.Close()

	o := &OpenAI{apiKey: "test-key", model: "gpt-test", baseURL: server.URL, client: server.Client()}
	req := testRequest
	req.Temperature = 0.2
	resp, err := o.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "LGTM", resp.Content)
	assert.Equal(t, 50, resp.TokensUsed)
}

func TestOpenAI_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{"rate limit", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}, func(t *testing.T, err error) {
			var re *RateLimitError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "7", re.RetryAfter)
		}},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}, func(t *testing.T, err error) {
			assert.True(t, IsAuthError(err))
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices":[]}`)
		}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrEmptyResponse)
		}},
		{"empty content", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":""}}]}`)
		}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrEmptyResponse)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}, func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "parsing response")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()
			o := &OpenAI{apiKey: "k", model: "m", baseURL: server.URL, client: server.Client()}
			_, err := o.Complete(context.Background(), testRequest)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestGemini_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"))

		json.NewEncoder(w).Encode(geminiResponse{
			Candidates:    []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: "DISPOSITION: "}, {Text: "approve"}}}}},
			UsageMetadata: geminiUsage{TotalTokenCount: 75},
		})
	}))
	defer server.Close()

	g := &Gemini{apiKey: "test-key", model: "gemini-test", baseURL: server.URL, client: server.Client()}
	resp, err := g.Complete(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, "DISPOSITION: approve", resp.Content)
	assert.Equal(t, 75, resp.TokensUsed)
}

func TestGemini_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer server.Close()

	g := &Gemini{apiKey: "k", model: "m", baseURL: server.URL, client: server.Client()}
	_, err := g.Complete(context.Background(), testRequest)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOllama_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer lm-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}},
		})
	}))
	defer server.Close()

	o := &Ollama{apiKey: "lm-key", model: "llama3", baseURL: ollamaEndpoint(server.URL), client: server.Client()}
	resp, err := o.Complete(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestOllama_NoAPIKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	o := &Ollama{model: "llama3", baseURL: ollamaEndpoint(server.URL), client: server.Client()}
	_, err := o.Complete(context.Background(), testRequest)
	require.NoError(t, err)
}

func TestComplete_HonorsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	o := &OpenAI{apiKey: "k", model: "m", baseURL: server.URL, client: server.Client()}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := o.Complete(ctx, testRequest)
	require.Error(t, err)
	assert.Equal(t, review.FailureTimeout, Classify(err))
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want review.Failure
	}{
		{nil, review.FailureNone},
		{context.DeadlineExceeded, review.FailureTimeout},
		{fmt.Errorf("sending request: %w", context.DeadlineExceeded), review.FailureTimeout},
		{fmt.Errorf("sending request: %w", timeoutErr{}), review.FailureTimeout},
		{&RateLimitError{Provider: "openai"}, review.FailureRateLimited},
		{fmt.Errorf("wrapped: %w", &RateLimitError{}), review.FailureRateLimited},
		{&AuthError{Provider: "openai"}, review.FailureTransport},
		{&StatusError{StatusCode: 503}, review.FailureTransport},
		{errors.New("connection refused"), review.FailureTransport},
		{context.Canceled, review.FailureTransport},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "openai: rate limited", (&RateLimitError{Provider: "openai"}).Error())
	assert.Contains(t, (&RateLimitError{Provider: "openai", RetryAfter: "3"}).Error(), "retry after 3")
	assert.Contains(t, (&AuthError{Provider: "gemini", Message: "bad key"}).Error(), "bad key")
	assert.Contains(t, (&StatusError{Provider: "x", StatusCode: 502, Body: "gw"}).Error(), "502")
}

type countingBackend struct {
	calls atomic.Int32
	err   error
}

func (b *countingBackend) Name() string { return "fake" }

func (b *countingBackend) Complete(ctx context.Context, req Request) (Response, error) {
	b.calls.Add(1)
	if b.err != nil {
		return Response{}, b.err
	}
	return Response{Content: "answer:" + req.UserPrompt, TokensUsed: 9}, nil
}

func TestWithCache(t *testing.T) {
	store, err := cache.New(true, t.TempDir(), time.Hour)
	require.NoError(t, err)
	next := &countingBackend{}
	b := WithCache(next, "m", store)

	first, err := b.Complete(context.Background(), testRequest)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := b.Complete(context.Background(), testRequest)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 9, second.TokensUsed)
	assert.EqualValues(t, 1, next.calls.Load())

	other := testRequest
	other.UserPrompt = "different"
	_, err = b.Complete(context.Background(), other)
	require.NoError(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestWithCache_DoesNotStoreFailures(t *testing.T) {
	store, err := cache.New(true, t.TempDir(), time.Hour)
	require.NoError(t, err)
	next := &countingBackend{err: &StatusError{StatusCode: 500}}
	b := WithCache(next, "m", store)

	_, err = b.Complete(context.Background(), testRequest)
	require.Error(t, err)
	_, err = b.Complete(context.Background(), testRequest)
	require.Error(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestWithCache_DisabledPassesThrough(t *testing.T) {
	store, err := cache.New(false, t.TempDir(), 0)
	require.NoError(t, err)
	next := &countingBackend{}
	assert.Same(t, Backend(next), WithCache(next, "m", store))
	assert.Same(t, Backend(next), WithCache(next, "m", nil))
}
