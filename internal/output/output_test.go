package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/tribunal/internal/review"
)

func sampleReport() *Report {
	v := &review.CouncilVerdict{
		ReviewID:    "01JREVIEW00000000000000000",
		Disposition: review.DispositionRequestChanges,
		Confidence:  0.444,
		Consensus:   0.667,
		Score:       62,
		Votes: map[review.Disposition]float64{
			review.DispositionRequestChanges: 0.667,
			review.DispositionApprove:        0.333,
		},
		Contributing: []review.JudgeVerdict{
			{JudgeID: "sec", Disposition: review.DispositionRequestChanges, Score: 45, Status: review.StatusCompleted, Latency: 1500 * time.Millisecond, Rationale: "input is not validated",
				Issues: []review.Issue{{Description: "SQL injection", Severity: review.SeverityCritical}}},
			{JudgeID: "gen", Disposition: review.DispositionApprove, Score: 85, Status: review.StatusCompleted, Latency: 800 * time.Millisecond},
			{JudgeID: "cor", Disposition: review.DispositionRequestChanges, Score: 50, Status: review.StatusParseFailed, ParseMethod: review.ParseFallback, Latency: 900 * time.Millisecond},
		},
		Failed: []review.JudgeVerdict{
			{JudgeID: "slow", Status: review.StatusTimedOut, Failure: review.FailureTimeout, Error: "slow: deadline exceeded", Latency: 30 * time.Second},
		},
		Issues: []review.Issue{
			{Description: "SQL injection", Severity: review.SeverityCritical, Location: &review.Location{Path: "db/query.go", Lines: review.LineRange{Start: 42, End: 45}}, RaisedBy: []string{"sec"}},
			{Description: "unparseable judge output", Severity: review.SeverityMedium, RaisedBy: []string{"cor"}},
			{Description: "Long function", Severity: review.SeverityLow, Location: &review.Location{Path: "main.go"}, RaisedBy: []string{"gen", "sec"}},
		},
		Degraded: true,
		Elapsed:  2 * time.Second,
	}
	r := NewReport("1.2.3", v, []review.JudgeConfig{
		{ID: "sec", Provider: "anthropic", Model: "claude-x", Persona: "security"},
		{ID: "gen", Provider: "openai", Model: "gpt-4o"},
	})
	r.Mode = "staged"
	r.Branch = "main"
	r.RepoRoot = "/tmp/repo"
	return r
}

func emptyReport() *Report {
	return NewReport("1.0", &review.CouncilVerdict{
		Disposition: review.DispositionApprove,
		Confidence:  1,
		Consensus:   1,
		Score:       90,
		Contributing: []review.JudgeVerdict{
			{JudgeID: "only", Disposition: review.DispositionApprove, Score: 90, Status: review.StatusCompleted},
		},
	}, nil)
}

func TestGetWriter(t *testing.T) {
	for _, f := range Formats() {
		w, err := GetWriter(f)
		if err != nil || w == nil {
			t.Errorf("GetWriter(%q) = %v, %v", f, w, err)
		}
	}
	if _, err := GetWriter("html"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestWriteReport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := WriteReport(sampleReport(), "json", path); err != nil {
		t.Fatalf("WriteReport error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"reviewId": "01JREVIEW00000000000000000"`) {
		t.Errorf("file missing verdict:\n%s", data)
	}
}

func TestFormatLatency(t *testing.T) {
	tests := map[time.Duration]string{
		0:                       "-",
		250 * time.Millisecond:  "250ms",
		1500 * time.Millisecond: "1.5s",
	}
	for d, want := range tests {
		if got := formatLatency(d); got != want {
			t.Errorf("formatLatency(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestUI(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	u := &UI{Out: out, ErrOut: errOut}
	u.Info("hello %s", "world")
	u.Success("done %d", 42)
	u.Warning("careful %s", "now")
	u.Error("failed %s", "badly")

	for _, want := range []string{"hello world", "done 42"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("stdout missing %q", want)
		}
	}
	for _, want := range []string{"careful now", "failed badly"} {
		if !strings.Contains(errOut.String(), want) {
			t.Errorf("stderr missing %q", want)
		}
	}

	table := u.Table([]string{"ID", "Runs"})
	if err := table.Append([]string{"judge-a", "3"}); err != nil {
		t.Fatal(err)
	}
	if err := table.Render(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "judge-a") {
		t.Error("table should render rows")
	}
}
