package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/tribunal/internal/review"
)

// MarkdownWriter outputs a PR-comment-friendly markdown report.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}
	v := &report.Verdict

	ew.printf("## Tribunal Council Review\n\n")
	ew.printf("**Verdict:** %s %s · confidence %s · consensus %s · score %.0f\n\n",
		mdDispositionIcon(v.Disposition), v.Disposition, percent(v.Confidence), percent(v.Consensus), v.Score)
	if v.Degraded {
		ew.printf("> :warning: Degraded review: %s did not return a usable verdict.\n\n",
			strings.Join(v.FailedJudges(), ", "))
	}
	for _, n := range report.Notes {
		ew.printf("> %s\n\n", n)
	}

	ew.printf("| Judge | Model | Status | Vote | Score | Latency |\n")
	ew.printf("|-------|-------|--------|------|-------|---------|\n")
	for _, jv := range judgeRows(v) {
		vote, score := "—", "—"
		if jv.Usable() {
			vote = string(jv.Disposition)
			score = fmt.Sprintf("%.0f", jv.Score)
		}
		ew.printf("| %s | %s | %s | %s | %s | %s |\n",
			jv.JudgeID, mdEscape(report.judgeLabel(jv.JudgeID)), jv.Status, vote, score, formatLatency(jv.Latency))
	}
	ew.println("")

	if len(v.Issues) == 0 {
		ew.println("No issues raised. :white_check_mark:")
		return ew.err
	}

	grouped := groupBySeverity(v.Issues)
	for _, sev := range []review.Severity{review.SeverityCritical, review.SeverityHigh, review.SeverityMedium, review.SeverityLow} {
		issues := grouped[sev]
		if len(issues) == 0 {
			continue
		}
		ew.printf("<details>\n<summary>%s %s (%d)</summary>\n\n", mdSeverityIcon(sev), strings.ToUpper(string(sev)), len(issues))
		for _, is := range issues {
			if is.Location != nil {
				ew.printf("- **`%s`** %s _(%s)_\n", is.Location.String(), is.Description, strings.Join(is.RaisedBy, ", "))
			} else {
				ew.printf("- %s _(%s)_\n", is.Description, strings.Join(is.RaisedBy, ", "))
			}
		}
		ew.printf("\n</details>\n\n")
	}

	if rationale := rationales(v); len(rationale) > 0 {
		ew.printf("<details>\n<summary>Judge rationale</summary>\n\n")
		for _, r := range rationale {
			ew.printf("**%s:** %s\n\n", r[0], r[1])
		}
		ew.printf("</details>\n\n")
	}

	ew.printf("*Reviewed in %s by %d judges*\n", formatLatency(v.Elapsed), v.JudgeCount())
	return ew.err
}

func rationales(v *review.CouncilVerdict) [][2]string {
	var out [][2]string
	for _, jv := range v.Contributing {
		if jv.Rationale != "" {
			out = append(out, [2]string{jv.JudgeID, jv.Rationale})
		}
	}
	return out
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func mdDispositionIcon(d review.Disposition) string {
	switch d {
	case review.DispositionApprove:
		return ":white_check_mark:"
	case review.DispositionRequestChanges:
		return ":warning:"
	case review.DispositionReject:
		return ":x:"
	default:
		return ":grey_question:"
	}
}

func mdSeverityIcon(s review.Severity) string {
	switch s {
	case review.SeverityCritical:
		return ":no_entry:"
	case review.SeverityHigh:
		return ":red_circle:"
	case review.SeverityMedium:
		return ":orange_circle:"
	case review.SeverityLow:
		return ":yellow_circle:"
	default:
		return ":white_circle:"
	}
}
