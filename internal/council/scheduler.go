package council

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/review"
)

// member is one seated judge. *judge.Invoker is the production member.
type member interface {
	Config() review.JudgeConfig
	Judge(ctx context.Context, req review.Request) review.JudgeVerdict
}

// slot carries one judge's verdict back to the scheduler, tagged with the
// judge's configuration index.
type slot struct {
	index   int
	verdict review.JudgeVerdict
}

// session is the per-review state of one scheduling pass. Only the
// goroutine running schedule touches it.
type session struct {
	council  *Council
	reviewID string
	loggers  []*logging.Logger
	results  []review.JudgeVerdict
	filled   []bool
	start    time.Time
}

// schedule fans the request out to every member and collects one verdict per
// member in configuration order. It returns when every member has answered,
// when the ceiling passes, or when ctx ends, whichever is first. Members
// that have not answered by then are recorded as timed_out (ceiling) or
// error (caller cancelled); their goroutines finish in the background and
// their late results are discarded.
func (c *Council) schedule(ctx context.Context, reviewID string, log *logging.Logger, req review.Request) []review.JudgeVerdict {
	n := len(c.members)
	s := &session{
		council:  c,
		reviewID: reviewID,
		loggers:  make([]*logging.Logger, n),
		results:  make([]review.JudgeVerdict, n),
		filled:   make([]bool, n),
		start:    time.Now(),
	}

	// Buffered to n so a member finishing after we return never blocks.
	ch := make(chan slot, n)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, m := range c.members {
		cfg := m.Config()
		s.loggers[i] = log.WithJudge(cfg.ID).With("provider", cfg.Provider, "model", cfg.Model)
		c.emit(s.loggers[i], Event{Name: EventJudgeStarted, ReviewID: reviewID, JudgeID: cfg.ID, Time: c.now()})
		go func(i int, m member) {
			ch <- slot{index: i, verdict: runMember(runCtx, m, req)}
		}(i, m)
	}

	ceiling := time.NewTimer(c.ceiling())
	defer ceiling.Stop()

	for remaining := n; remaining > 0; {
		select {
		case r := <-ch:
			if r.index < 0 || r.index >= n || s.filled[r.index] {
				continue
			}
			s.fill(r.index, r.verdict)
			remaining--

		case <-ceiling.C:
			s.fillRest(review.StatusTimedOut, review.FailureTimeout,
				fmt.Errorf("council deadline of %s exceeded", c.ceiling()))
			return s.results

		case <-ctx.Done():
			status, failure := review.StatusError, review.FailureTransport
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				status, failure = review.StatusTimedOut, review.FailureTimeout
			}
			s.fillRest(status, failure, fmt.Errorf("review cancelled: %w", ctx.Err()))
			return s.results
		}
	}
	return s.results
}

// fill records a verdict in its slot. Each slot is written once.
func (s *session) fill(i int, v review.JudgeVerdict) {
	s.results[i] = v
	s.filled[i] = true

	e := Event{
		Name:     EventJudgeCompleted,
		ReviewID: s.reviewID,
		JudgeID:  v.JudgeID,
		Time:     s.council.now(),
		Status:   v.Status,
		Failure:  v.Failure,
		Latency:  v.Latency,
		Err:      v.Error,
	}
	if !v.Usable() {
		e.Name = EventJudgeFailed
	}
	s.council.emit(s.loggers[i], e)
}

// fillRest records every unanswered judge with the given status.
func (s *session) fillRest(status review.Status, failure review.Failure, err error) {
	latency := time.Since(s.start)
	for i := range s.results {
		if !s.filled[i] {
			s.fill(i, review.FailedVerdict(s.council.members[i].Config().ID, status, failure, err, latency))
		}
	}
}

// runMember isolates a member's panic into an error verdict.
func runMember(ctx context.Context, m member, req review.Request) (v review.JudgeVerdict) {
	start := time.Now()
	var pc panics.Catcher
	pc.Try(func() { v = m.Judge(ctx, req) })
	if r := pc.Recovered(); r != nil {
		err := fmt.Errorf("judge panicked: %w", r.AsError())
		return review.FailedVerdict(m.Config().ID, review.StatusError, review.FailureTransport, err, time.Since(start))
	}
	if v.JudgeID == "" {
		v.JudgeID = m.Config().ID
	}
	return v
}

// ceiling is the longest judge timeout plus the buffer.
func (c *Council) ceiling() time.Duration {
	var longest time.Duration
	for _, j := range c.judges {
		longest = max(longest, j.Timeout)
	}
	return longest + c.buffer
}
