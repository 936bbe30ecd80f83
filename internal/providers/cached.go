package providers

import (
	"context"

	"github.com/dshills/tribunal/internal/cache"
)

// Cached wraps a backend with the on-disk response cache. Only successful
// responses are stored.
type Cached struct {
	next  Backend
	model string
	store *cache.Cache
}

// WithCache decorates next. A nil or disabled store returns next unchanged.
func WithCache(next Backend, model string, store *cache.Cache) Backend {
	if store == nil || !store.Enabled() {
		return next
	}
	return &Cached{next: next, model: model, store: store}
}

func (c *Cached) Name() string { return c.next.Name() }

func (c *Cached) Complete(ctx context.Context, req Request) (Response, error) {
	key := cache.Key(c.next.Name(), c.model, req.SystemPrompt, req.UserPrompt, req.MaxTokens, req.Temperature)
	if entry, ok := c.store.Get(key); ok {
		return Response{Content: entry.Response, TokensUsed: entry.TokensUsed, Cached: true}, nil
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	// A failed write only costs a future cache miss.
	_ = c.store.Put(key, cache.Entry{
		Provider:   c.next.Name(),
		Model:      c.model,
		Response:   resp.Content,
		TokensUsed: resp.TokensUsed,
	})
	return resp, nil
}
