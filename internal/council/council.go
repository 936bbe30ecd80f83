package council

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dshills/tribunal/internal/cache"
	"github.com/dshills/tribunal/internal/judge"
	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/providers"
	"github.com/dshills/tribunal/internal/review"
)

// DefaultCeilingBuffer is added to the longest judge timeout to get the
// council-wide deadline.
const DefaultCeilingBuffer = 2 * time.Second

// Resolver picks the backend for a judge's provider and model. It is called
// once per judge when the council is built.
type Resolver func(provider, model string) (providers.Backend, error)

// Council fans a review out to its judges and aggregates their votes.
// A Council is immutable after New and safe for concurrent Reviews; any
// number of councils can coexist in one process.
type Council struct {
	judges   []review.JudgeConfig
	members  []member
	log      *logging.Logger
	buffer   time.Duration
	now      func() time.Time
	observer Observer

	idMu    sync.Mutex
	entropy io.Reader
}

type settings struct {
	log         *logging.Logger
	resolver    Resolver
	buffer      time.Duration
	maxTokens   int
	temperature float64
	cache       *cache.Cache
	guidelines  *review.Guidelines
	now         func() time.Time
	observer    Observer
}

// Option configures a Council.
type Option func(*settings)

// WithLogger sets the structured logger for council events.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithResolver replaces providers.New as the backend factory.
func WithResolver(r Resolver) Option {
	return func(s *settings) { s.resolver = r }
}

// WithCeilingBuffer sets how long past the longest judge timeout the
// council waits before giving up on stragglers.
func WithCeilingBuffer(d time.Duration) Option {
	return func(s *settings) { s.buffer = d }
}

// WithGenerationOptions sets max output tokens and temperature for every judge.
func WithGenerationOptions(maxTokens int, temperature float64) Option {
	return func(s *settings) {
		s.maxTokens = maxTokens
		s.temperature = temperature
	}
}

// WithCache puts the response cache in front of every backend.
func WithCache(c *cache.Cache) Option {
	return func(s *settings) { s.cache = c }
}

// WithGuidelines gives every judge the same project guidelines.
func WithGuidelines(g *review.Guidelines) Option {
	return func(s *settings) { s.guidelines = g }
}

// WithClock replaces time.Now for timestamps and review IDs.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithObserver receives every event of every review.
func WithObserver(o Observer) Option {
	return func(s *settings) { s.observer = o }
}

// New validates the judge configuration and seats the council. It fails
// fast with a *ConfigError; no review is possible with a bad configuration.
func New(judges []review.JudgeConfig, opts ...Option) (*Council, error) {
	s := settings{
		log:      logging.Nop(),
		resolver: providers.New,
		buffer:   DefaultCeilingBuffer,
		now:      time.Now,
	}
	for _, o := range opts {
		o(&s)
	}
	if s.buffer < 0 {
		return nil, &ConfigError{Index: -1, Err: errors.New("ceiling buffer must not be negative")}
	}
	if err := Validate(judges); err != nil {
		return nil, err
	}

	c := &Council{
		judges:   append([]review.JudgeConfig(nil), judges...),
		members:  make([]member, 0, len(judges)),
		log:      s.log,
		buffer:   s.buffer,
		now:      s.now,
		observer: s.observer,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}

	for i, j := range c.judges {
		backend, err := s.resolver(j.Provider, j.Model)
		if err != nil {
			return nil, &ConfigError{Index: i, JudgeID: j.ID, Err: err}
		}
		backend = providers.WithCache(backend, j.Model, s.cache)
		c.members = append(c.members, judge.New(j, backend,
			judge.WithGuidelines(s.guidelines),
			judge.WithGeneration(s.maxTokens, s.temperature),
		))
	}
	return c, nil
}

// Validate checks judge configurations without resolving backends.
func Validate(judges []review.JudgeConfig) error {
	if len(judges) == 0 {
		return &ConfigError{Index: -1, Err: ErrNoJudges}
	}
	seen := make(map[string]bool, len(judges))
	for i, j := range judges {
		cerr := func(err error) error { return &ConfigError{Index: i, JudgeID: j.ID, Err: err} }
		switch {
		case strings.TrimSpace(j.ID) == "":
			return cerr(ErrMissingJudgeID)
		case seen[j.ID]:
			return cerr(ErrDuplicateJudge)
		case !(j.Weight > 0) || math.IsInf(j.Weight, 0):
			return cerr(ErrInvalidWeight)
		case j.Timeout <= 0:
			return cerr(ErrInvalidTimeout)
		}
		seen[j.ID] = true
	}
	return nil
}

// Judges returns a copy of the council's configuration.
func (c *Council) Judges() []review.JudgeConfig {
	return append([]review.JudgeConfig(nil), c.judges...)
}

// Ceiling returns the council-wide deadline for one review.
func (c *Council) Ceiling() time.Duration {
	return c.ceiling()
}

// Review runs one review. It always returns a verdict: failed judges are
// recorded, never raised, and a review with no usable judge yields the
// cautious fallback. The request must not be mutated while Review runs.
func (c *Council) Review(ctx context.Context, req review.Request) *review.CouncilVerdict {
	started := c.now()
	reviewID := c.newReviewID(started)
	log := c.log.WithReview(reviewID)

	c.emit(log, Event{Name: EventReviewStarted, ReviewID: reviewID, Time: started})
	log.Debug("review.request", "judges", len(c.judges), "diff_bytes", len(req.Diff),
		"files", len(req.Files), "has_plan", req.Plan != "", "has_prior_review", req.PriorReview != "")

	verdicts := c.schedule(ctx, reviewID, log, req)

	v := Aggregate(c.judges, verdicts)
	v.ReviewID = reviewID
	v.StartedAt = started
	v.Elapsed = c.now().Sub(started)

	c.emit(log, Event{
		Name:        EventReviewVerdict,
		ReviewID:    reviewID,
		Time:        c.now(),
		Disposition: v.Disposition,
		Confidence:  v.Confidence,
		Consensus:   v.Consensus,
		Degraded:    v.Degraded,
	})
	return &v
}

func (c *Council) newReviewID(t time.Time) string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), c.entropy).String()
}
