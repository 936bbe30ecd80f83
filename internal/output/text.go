package output

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dshills/tribunal/internal/review"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}
	v := &report.Verdict

	title := "Tribunal Council Review"
	if report.Mode != "" {
		title += " — " + report.Mode + " mode"
	}
	ew.println(bold(title))
	if report.Range != "" {
		ew.printf("Range: %s\n", report.Range)
	}
	if report.RepoRoot != "" {
		ew.printf("Repository: %s (branch: %s)\n", report.RepoRoot, report.Branch)
	}
	if v.ReviewID != "" {
		ew.printf("Review: %s\n", v.ReviewID)
	}
	ew.println(strings.Repeat("─", 60))
	ew.printf("Verdict: %s  confidence %s  consensus %s  score %.0f\n",
		DispositionColor(v.Disposition), percent(v.Confidence), percent(v.Consensus), v.Score)
	if len(v.Votes) > 0 {
		var parts []string
		for _, d := range review.Dispositions() {
			if mass, ok := v.Votes[d]; ok {
				parts = append(parts, fmt.Sprintf("%s %s", d, percent(mass)))
			}
		}
		ew.printf("Votes: %s\n", strings.Join(parts, ", "))
	}
	if v.Degraded {
		ew.printf("%s degraded: %d of %d judges failed (%s)\n",
			warningPrefix, len(v.Failed), v.JudgeCount(), strings.Join(v.FailedJudges(), ", "))
	}
	for _, n := range report.Notes {
		ew.printf("%s %s\n", infoPrefix, n)
	}
	ew.println(strings.Repeat("─", 60))

	if ew.err == nil {
		table := newTable(w, []string{"Judge", "Model", "Status", "Vote", "Score", "Latency", "Issues"})
		for _, jv := range judgeRows(v) {
			vote, score := "-", "-"
			if jv.Usable() {
				vote = DispositionColor(jv.Disposition)
				score = fmt.Sprintf("%.0f", jv.Score)
			}
			status := StatusColor(jv.Status)
			if jv.Failure != review.FailureNone {
				status += " (" + string(jv.Failure) + ")"
			}
			if err := table.Append([]string{
				jv.JudgeID, report.judgeLabel(jv.JudgeID), status, vote, score,
				formatLatency(jv.Latency), fmt.Sprintf("%d", len(jv.Issues)),
			}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	for _, jv := range v.Failed {
		if jv.Error != "" {
			ew.printf("  %s %s: %s\n", errorPrefix, jv.JudgeID, jv.Error)
		}
	}

	counts := review.CountSeverities(v.Issues)
	ew.printf("\nIssues: %d total", len(v.Issues))
	if len(v.Issues) > 0 {
		ew.printf(" (%d critical, %d high, %d medium, %d low)", counts.Critical, counts.High, counts.Medium, counts.Low)
	}
	ew.println("")

	if len(v.Issues) == 0 {
		ew.println("\nNo issues raised.")
	}

	grouped := groupBySeverity(v.Issues)
	for _, sev := range []review.Severity{review.SeverityCritical, review.SeverityHigh, review.SeverityMedium, review.SeverityLow} {
		issues := grouped[sev]
		if len(issues) == 0 {
			continue
		}
		ew.printf("\n%s %s\n", severityIcon(sev), SeverityColor(sev))
		ew.println(strings.Repeat("─", 40))
		for _, is := range issues {
			loc := "general"
			if is.Location != nil {
				loc = is.Location.String()
			}
			ew.printf("\n  %s  (raised by %s)\n", loc, strings.Join(is.RaisedBy, ", "))
			for _, line := range wrapText(is.Description, 70) {
				ew.printf("    %s\n", line)
			}
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %s\n", formatLatency(v.Elapsed))
	return ew.err
}

// judgeRows returns contributing then failed verdicts.
func judgeRows(v *review.CouncilVerdict) []review.JudgeVerdict {
	return slices.Concat(v.Contributing, v.Failed)
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

// groupBySeverity buckets issues by severity, keeping council order within a bucket.
func groupBySeverity(issues []review.Issue) map[review.Severity][]review.Issue {
	m := make(map[review.Severity][]review.Issue)
	for _, is := range issues {
		m[is.Severity] = append(m[is.Severity], is)
	}
	return m
}

func severityIcon(s review.Severity) string {
	switch s {
	case review.SeverityCritical:
		return "[!!!]"
	case review.SeverityHigh:
		return "[!!]"
	case review.SeverityMedium:
		return "[!]"
	case review.SeverityLow:
		return "[-]"
	default:
		return "[?]"
	}
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var (
		lines   []string
		current strings.Builder
	)
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
