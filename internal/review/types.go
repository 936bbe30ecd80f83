package review

import (
	"fmt"
	"strings"
	"time"
)

// Disposition is the categorical recommendation of a judge or the council.
type Disposition string

const (
	DispositionApprove        Disposition = "approve"
	DispositionRequestChanges Disposition = "request_changes"
	DispositionReject         Disposition = "reject"
)

// Dispositions returns every disposition in tie-break order, most cautious first.
func Dispositions() []Disposition {
	return []Disposition{DispositionReject, DispositionRequestChanges, DispositionApprove}
}

// Rank returns the caution rank of a disposition (higher = more cautious).
func (d Disposition) Rank() int {
	switch d {
	case DispositionReject:
		return 3
	case DispositionRequestChanges:
		return 2
	case DispositionApprove:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether d is one of the three known dispositions.
func (d Disposition) IsValid() bool {
	return d.Rank() > 0
}

// AtLeast reports whether d is at least as cautious as threshold.
// A threshold of "none" or "" never matches.
func (d Disposition) AtLeast(threshold string) bool {
	if threshold == "" || threshold == "none" {
		return false
	}
	return d.Rank() >= Disposition(threshold).Rank() && Disposition(threshold).IsValid()
}

// Status describes how a judge's run ended.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusTimedOut    Status = "timed_out"
	StatusError       Status = "error"
	StatusParseFailed Status = "parse_failed"
)

// Usable reports whether a verdict with this status carries a disposition
// that may vote. parse_failed still carries the deterministic fallback.
func (s Status) Usable() bool {
	return s == StatusCompleted || s == StatusParseFailed
}

// Failure is the typed reason a judge invocation did not return text.
type Failure string

const (
	FailureNone        Failure = ""
	FailureTimeout     Failure = "timeout"
	FailureTransport   Failure = "transport_error"
	FailureRateLimited Failure = "rate_limited"
)

// Severity represents the severity tier of an issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// NormalizeSeverity maps the vocabulary judges actually use onto the four tiers.
// Unknown values become medium.
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "blocker", "blocking", "severe":
		return SeverityCritical
	case "high", "major", "error", "important":
		return SeverityHigh
	case "low", "minor", "nit", "nitpick", "suggestion", "info", "trivial", "style":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// LineRange represents a range of line numbers.
type LineRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Location points at the code an issue refers to.
type Location struct {
	Path  string    `json:"path" yaml:"path"`
	Lines LineRange `json:"lines" yaml:"lines"`
}

// String renders the location as path:start-end.
func (l Location) String() string {
	switch {
	case l.Lines.Start == 0:
		return l.Path
	case l.Lines.End == 0 || l.Lines.End == l.Lines.Start:
		return fmt.Sprintf("%s:%d", l.Path, l.Lines.Start)
	default:
		return fmt.Sprintf("%s:%d-%d", l.Path, l.Lines.Start, l.Lines.End)
	}
}

// Issue is a single problem raised by a judge.
type Issue struct {
	Description string    `json:"description" yaml:"description"`
	Severity    Severity  `json:"severity" yaml:"severity"`
	Location    *Location `json:"location,omitempty" yaml:"location,omitempty"`
	RaisedBy    []string  `json:"raisedBy,omitempty" yaml:"raisedBy,omitempty"`
}

// Key is the exact-match identity used to deduplicate issues across judges.
func (i Issue) Key() string {
	if i.Location == nil {
		return i.Description + "\x00"
	}
	return fmt.Sprintf("%s\x00%s\x00%d\x00%d", i.Description, i.Location.Path, i.Location.Lines.Start, i.Location.Lines.End)
}

// JudgeConfig identifies one judge of the council.
type JudgeConfig struct {
	ID       string `json:"id" yaml:"id"`
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	// Persona selects built-in reviewer instructions; Instructions adds free-form ones.
	Persona      string        `json:"persona,omitempty" yaml:"persona,omitempty"`
	Instructions string        `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Weight       float64       `json:"weight" yaml:"weight"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
}

// Label returns provider:model/persona for display.
func (j JudgeConfig) Label() string {
	label := j.Provider + ":" + j.Model
	if j.Persona != "" {
		label += "/" + j.Persona
	}
	return label
}

// Request is the unit under review. It is shared read-only by all judges.
type Request struct {
	Diff        string   `json:"diff"`
	Files       []string `json:"files,omitempty"`
	Plan        string   `json:"plan,omitempty"`
	PriorReview string   `json:"priorReview,omitempty"`
}

// JudgeVerdict is one judge's outcome for one review.
type JudgeVerdict struct {
	JudgeID     string        `json:"judgeId" yaml:"judgeId"`
	Disposition Disposition   `json:"disposition,omitempty" yaml:"disposition,omitempty"`
	Score       float64       `json:"score" yaml:"score"`
	Issues      []Issue       `json:"issues,omitempty" yaml:"issues,omitempty"`
	Rationale   string        `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Latency     time.Duration `json:"latencyNs" yaml:"latency"`
	Status      Status        `json:"status" yaml:"status"`
	Failure     Failure       `json:"failure,omitempty" yaml:"failure,omitempty"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	ParseMethod string        `json:"parseMethod,omitempty" yaml:"parseMethod,omitempty"`
	TokensUsed  int           `json:"tokensUsed,omitempty" yaml:"tokensUsed,omitempty"`
	Cached      bool          `json:"cached,omitempty" yaml:"cached,omitempty"`
}

// Usable reports whether the verdict may vote.
func (v JudgeVerdict) Usable() bool {
	return v.Status.Usable()
}

// FailedVerdict builds the verdict recorded for a judge that produced no text.
func FailedVerdict(judgeID string, status Status, failure Failure, err error, latency time.Duration) JudgeVerdict {
	v := JudgeVerdict{
		JudgeID: judgeID,
		Status:  status,
		Failure: failure,
		Latency: latency,
	}
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

// CouncilVerdict is the aggregate decision of one review.
type CouncilVerdict struct {
	ReviewID     string                  `json:"reviewId" yaml:"reviewId"`
	Disposition  Disposition             `json:"disposition" yaml:"disposition"`
	Confidence   float64                 `json:"confidence" yaml:"confidence"`
	Consensus    float64                 `json:"consensus" yaml:"consensus"`
	Score        float64                 `json:"score" yaml:"score"`
	Votes        map[Disposition]float64 `json:"votes,omitempty" yaml:"votes,omitempty"`
	Contributing []JudgeVerdict          `json:"contributing" yaml:"contributing"`
	Failed       []JudgeVerdict          `json:"failed" yaml:"failed"`
	Issues       []Issue                 `json:"issues" yaml:"issues"`
	Degraded     bool                    `json:"degraded" yaml:"degraded"`
	StartedAt    time.Time               `json:"startedAt" yaml:"startedAt"`
	Elapsed      time.Duration           `json:"elapsedNs" yaml:"elapsed"`
}

// FailedJudges returns the IDs of judges that produced no usable verdict.
func (v *CouncilVerdict) FailedJudges() []string {
	ids := make([]string, 0, len(v.Failed))
	for _, f := range v.Failed {
		ids = append(ids, f.JudgeID)
	}
	return ids
}

// JudgeCount returns the number of judges that took part.
func (v *CouncilVerdict) JudgeCount() int {
	return len(v.Contributing) + len(v.Failed)
}

// SeverityCounts holds counts by severity tier.
type SeverityCounts struct {
	Critical int `json:"critical" yaml:"critical"`
	High     int `json:"high" yaml:"high"`
	Medium   int `json:"medium" yaml:"medium"`
	Low      int `json:"low" yaml:"low"`
}

// CountSeverities tallies issues by severity.
func CountSeverities(issues []Issue) SeverityCounts {
	var c SeverityCounts
	for _, i := range issues {
		switch i.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
	}
	return c
}
