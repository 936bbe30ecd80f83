package judge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/dshills/tribunal/internal/providers"
	"github.com/dshills/tribunal/internal/review"
)

// Outcome is the raw result of asking one judge. Exactly one of Text and
// Failure is meaningful.
type Outcome struct {
	Text       string
	Latency    time.Duration
	TokensUsed int
	Cached     bool
	Failure    review.Failure
	Err        error
}

// Failed reports whether the judge produced no text.
func (o Outcome) Failed() bool {
	return o.Failure != review.FailureNone
}

// Invoker asks one judge's backend for a verdict within the judge's timeout.
type Invoker struct {
	cfg         review.JudgeConfig
	backend     providers.Backend
	guidelines  *review.Guidelines
	maxTokens   int
	temperature float64
	now         func() time.Time
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithGuidelines appends project guidelines to the judge's prompt.
func WithGuidelines(g *review.Guidelines) Option {
	return func(inv *Invoker) { inv.guidelines = g }
}

// WithGeneration sets max output tokens and sampling temperature.
func WithGeneration(maxTokens int, temperature float64) Option {
	return func(inv *Invoker) {
		inv.maxTokens = maxTokens
		inv.temperature = temperature
	}
}

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(inv *Invoker) { inv.now = now }
}

// New creates an Invoker for cfg backed by backend.
func New(cfg review.JudgeConfig, backend providers.Backend, opts ...Option) *Invoker {
	inv := &Invoker{cfg: cfg, backend: backend, now: time.Now}
	for _, o := range opts {
		o(inv)
	}
	return inv
}

// Config returns the judge's configuration.
func (inv *Invoker) Config() review.JudgeConfig {
	return inv.cfg
}

// Invoke sends the prompt and waits for text, the judge's deadline, or the
// caller's cancellation, whichever comes first. A backend that ignores its
// context is abandoned at the deadline; its goroutine exits on its own.
func (inv *Invoker) Invoke(ctx context.Context, req review.Request) Outcome {
	start := inv.now()
	system, user := review.BuildJudgePrompt(inv.cfg, req, inv.guidelines)

	if inv.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cfg.Timeout)
		defer cancel()
	}

	type result struct {
		resp providers.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		var pc panics.Catcher
		pc.Try(func() {
			res.resp, res.err = inv.backend.Complete(ctx, providers.Request{
				SystemPrompt: system,
				UserPrompt:   user,
				MaxTokens:    inv.maxTokens,
				Temperature:  inv.temperature,
			})
		})
		if r := pc.Recovered(); r != nil {
			res.err = fmt.Errorf("backend panic: %w", r.AsError())
		}
		done <- res
	}()

	select {
	case res := <-done:
		latency := inv.now().Sub(start)
		if res.err != nil {
			return Outcome{Latency: latency, Failure: providers.Classify(res.err), Err: fmt.Errorf("%s: %w", inv.cfg.ID, res.err)}
		}
		return Outcome{
			Text:       res.resp.Content,
			Latency:    latency,
			TokensUsed: res.resp.TokensUsed,
			Cached:     res.resp.Cached,
		}
	case <-ctx.Done():
		o := Outcome{Latency: inv.now().Sub(start), Err: fmt.Errorf("%s: %w", inv.cfg.ID, ctx.Err())}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			o.Failure = review.FailureTimeout
		} else {
			o.Failure = review.FailureTransport
		}
		return o
	}
}

// Judge runs Invoke and turns the outcome into the judge's verdict.
func (inv *Invoker) Judge(ctx context.Context, req review.Request) review.JudgeVerdict {
	return inv.Verdict(inv.Invoke(ctx, req))
}

// Verdict converts an outcome into a JudgeVerdict: failures become
// timed_out or error verdicts, text goes through the tolerant parser.
func (inv *Invoker) Verdict(o Outcome) review.JudgeVerdict {
	if o.Failed() {
		status := review.StatusError
		if o.Failure == review.FailureTimeout {
			status = review.StatusTimedOut
		}
		return review.FailedVerdict(inv.cfg.ID, status, o.Failure, o.Err, o.Latency)
	}
	v := review.ParseVerdict(inv.cfg.ID, o.Text)
	v.Issues = inv.guidelines.ApplySeverityOverrides(v.Issues)
	v.Latency = o.Latency
	v.TokensUsed = o.TokensUsed
	v.Cached = o.Cached
	return v
}
