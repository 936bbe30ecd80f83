package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank(t *testing.T) {
	tests := []struct {
		severity Severity
		want     int
	}{
		{SeverityLow, 1},
		{SeverityMedium, 2},
		{SeverityHigh, 3},
		{SeverityCritical, 4},
		{Severity("unknown"), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityRank(tt.severity), "SeverityRank(%q)", tt.severity)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, NormalizeSeverity("Blocker"))
	assert.Equal(t, SeverityHigh, NormalizeSeverity(" major "))
	assert.Equal(t, SeverityLow, NormalizeSeverity("nit"))
	assert.Equal(t, SeverityMedium, NormalizeSeverity("whatever"))
	assert.Equal(t, SeverityMedium, NormalizeSeverity(""))
}

func TestDispositionRankOrder(t *testing.T) {
	assert.Greater(t, DispositionReject.Rank(), DispositionRequestChanges.Rank())
	assert.Greater(t, DispositionRequestChanges.Rank(), DispositionApprove.Rank())
	assert.False(t, Disposition("maybe").IsValid())
	assert.Equal(t, []Disposition{DispositionReject, DispositionRequestChanges, DispositionApprove}, Dispositions())
}

func TestDispositionAtLeast(t *testing.T) {
	tests := []struct {
		d         Disposition
		threshold string
		want      bool
	}{
		{DispositionReject, "reject", true},
		{DispositionRequestChanges, "reject", false},
		{DispositionRequestChanges, "request_changes", true},
		{DispositionReject, "request_changes", true},
		{DispositionApprove, "request_changes", false},
		{DispositionApprove, "approve", true},
		{DispositionReject, "none", false},
		{DispositionReject, "", false},
		{DispositionReject, "bogus", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.d.AtLeast(tt.threshold), "%s.AtLeast(%q)", tt.d, tt.threshold)
	}
}

func TestStatusUsable(t *testing.T) {
	assert.True(t, StatusCompleted.Usable())
	assert.True(t, StatusParseFailed.Usable())
	assert.False(t, StatusTimedOut.Usable())
	assert.False(t, StatusError.Usable())
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "a.go", Location{Path: "a.go"}.String())
	assert.Equal(t, "a.go:3", Location{Path: "a.go", Lines: LineRange{Start: 3}}.String())
	assert.Equal(t, "a.go:3", Location{Path: "a.go", Lines: LineRange{Start: 3, End: 3}}.String())
	assert.Equal(t, "a.go:3-9", Location{Path: "a.go", Lines: LineRange{Start: 3, End: 9}}.String())
}

func TestIssueKey(t *testing.T) {
	a := Issue{Description: "nil deref", Location: &Location{Path: "a.go", Lines: LineRange{Start: 1}}}
	b := Issue{Description: "nil deref", Location: &Location{Path: "a.go", Lines: LineRange{Start: 1}}, Severity: SeverityHigh}
	c := Issue{Description: "nil deref", Location: &Location{Path: "a.go", Lines: LineRange{Start: 2}}}
	d := Issue{Description: "nil deref"}

	assert.Equal(t, a.Key(), b.Key(), "severity must not affect identity")
	assert.NotEqual(t, a.Key(), c.Key())
	assert.NotEqual(t, a.Key(), d.Key())
}

func TestFailedVerdict(t *testing.T) {
	v := FailedVerdict("j1", StatusTimedOut, FailureTimeout, assert.AnError, time.Second)
	assert.Equal(t, "j1", v.JudgeID)
	assert.Equal(t, StatusTimedOut, v.Status)
	assert.Equal(t, FailureTimeout, v.Failure)
	assert.Equal(t, assert.AnError.Error(), v.Error)
	assert.False(t, v.Usable())
	assert.Empty(t, v.Disposition)
}

func TestCouncilVerdictHelpers(t *testing.T) {
	v := &CouncilVerdict{
		Contributing: []JudgeVerdict{{JudgeID: "a"}},
		Failed:       []JudgeVerdict{{JudgeID: "b"}, {JudgeID: "c"}},
	}
	assert.Equal(t, []string{"b", "c"}, v.FailedJudges())
	assert.Equal(t, 3, v.JudgeCount())
}

func TestCountSeverities(t *testing.T) {
	c := CountSeverities([]Issue{
		{Severity: SeverityCritical},
		{Severity: SeverityHigh},
		{Severity: SeverityHigh},
		{Severity: SeverityLow},
	})
	assert.Equal(t, SeverityCounts{Critical: 1, High: 2, Low: 1}, c)
}

func TestJudgeConfigLabel(t *testing.T) {
	assert.Equal(t, "anthropic:claude/security", JudgeConfig{Provider: "anthropic", Model: "claude", Persona: "security"}.Label())
	assert.Equal(t, "ollama:llama3", JudgeConfig{Provider: "ollama", Model: "llama3"}.Label())
}
