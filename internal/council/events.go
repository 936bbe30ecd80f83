package council

import (
	"time"

	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/review"
)

// Event names. Every event carries the review ID; judge events also carry
// the judge ID, so one review's timeline can be rebuilt from the log.
const (
	EventReviewStarted  = "review.started"
	EventJudgeStarted   = "judge.started"
	EventJudgeCompleted = "judge.completed"
	EventJudgeFailed    = "judge.failed"
	EventReviewVerdict  = "review.verdict"
)

// Event is one observable step of a review.
type Event struct {
	Name     string
	ReviewID string
	Time     time.Time

	// Judge events.
	JudgeID string
	Status  review.Status
	Failure review.Failure
	Latency time.Duration
	Err     string

	// Verdict event.
	Disposition review.Disposition
	Confidence  float64
	Consensus   float64
	Degraded    bool
}

// Observer receives events in order from the goroutine running Review.
type Observer func(Event)

// emit notifies the observer and logs e. Judge events are logged through a
// judge logger that already carries judge_id, provider and model.
func (c *Council) emit(log *logging.Logger, e Event) {
	if c.observer != nil {
		c.observer(e)
	}
	switch e.Name {
	case EventJudgeStarted:
		log.Debug(e.Name, "event", e.Name)
	case EventJudgeCompleted:
		log.Info(e.Name, "event", e.Name,
			"status", e.Status, "latency_ms", e.Latency.Milliseconds())
	case EventJudgeFailed:
		log.Warn(e.Name, "event", e.Name,
			"status", e.Status, "failure", e.Failure, "latency_ms", e.Latency.Milliseconds(), "error", e.Err)
	case EventReviewVerdict:
		log.Info(e.Name, "event", e.Name, "disposition", e.Disposition,
			"confidence", e.Confidence, "consensus", e.Consensus, "degraded", e.Degraded)
	default:
		log.Info(e.Name, "event", e.Name)
	}
}
