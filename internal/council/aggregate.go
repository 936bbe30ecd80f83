package council

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/sourcegraph/conc/panics"

	"github.com/dshills/tribunal/internal/review"
)

// epsilon absorbs float error when comparing vote masses.
const epsilon = 1e-9

// Aggregate combines per-judge verdicts, given in configuration order, into
// the council verdict. It never fails: when no judge is usable, or when the
// computation itself goes wrong, it returns the cautious fallback
// (request_changes, confidence 0, consensus 0).
func Aggregate(judges []review.JudgeConfig, verdicts []review.JudgeVerdict) review.CouncilVerdict {
	var (
		out review.CouncilVerdict
		err error
	)
	if r := panics.Try(func() { out, err = aggregate(judges, verdicts) }); r != nil {
		err = r.AsError()
	}
	if err != nil {
		return fallback(verdicts)
	}
	return out
}

func aggregate(judges []review.JudgeConfig, verdicts []review.JudgeVerdict) (review.CouncilVerdict, error) {
	if len(judges) != len(verdicts) {
		return review.CouncilVerdict{}, fmt.Errorf("have %d verdicts for %d judges", len(verdicts), len(judges))
	}

	out := review.CouncilVerdict{
		Contributing: []review.JudgeVerdict{},
		Failed:       []review.JudgeVerdict{},
		Issues:       []review.Issue{},
	}

	var totalWeight, usableWeight float64
	var weights []float64 // parallel to out.Contributing
	for i, j := range judges {
		v := verdicts[i]
		if v.JudgeID != j.ID {
			return review.CouncilVerdict{}, fmt.Errorf("verdict %d is from %q, want %q", i, v.JudgeID, j.ID)
		}
		if !(j.Weight > 0) || math.IsInf(j.Weight, 0) {
			return review.CouncilVerdict{}, fmt.Errorf("judge %q has weight %v", j.ID, j.Weight)
		}
		totalWeight += j.Weight
		if v.Usable() && v.Disposition.IsValid() {
			out.Contributing = append(out.Contributing, v)
			weights = append(weights, j.Weight)
			usableWeight += j.Weight
		} else {
			out.Failed = append(out.Failed, v)
		}
	}
	out.Degraded = len(out.Failed) > 0

	if len(out.Contributing) == 0 {
		out.Disposition = review.DispositionRequestChanges
		return out, nil
	}

	// Weighted vote over normalized weights.
	out.Votes = make(map[review.Disposition]float64, 3)
	var score float64
	for i, v := range out.Contributing {
		w := weights[i] / usableWeight
		out.Votes[v.Disposition] += w
		score += w * v.Score
	}

	// Most cautious first, so a tie keeps the more cautious disposition.
	winner, best := review.Disposition(""), -1.0
	for _, d := range review.Dispositions() {
		if out.Votes[d] > best+epsilon {
			winner, best = d, out.Votes[d]
		}
	}

	out.Disposition = winner
	out.Consensus = clamp01(best)
	out.Confidence = clamp01(best * usableWeight / totalWeight)
	out.Score = score
	out.Issues = mergeIssues(out.Contributing)

	for _, f := range []float64{out.Consensus, out.Confidence, out.Score} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return review.CouncilVerdict{}, errors.New("non-finite aggregate")
		}
	}
	return out, nil
}

// mergeIssues deduplicates issues by exact description and location, in
// first-seen order. A duplicate keeps the highest severity raised and
// records every judge that raised it.
func mergeIssues(verdicts []review.JudgeVerdict) []review.Issue {
	merged := []review.Issue{}
	index := make(map[string]int)
	for _, v := range verdicts {
		for _, issue := range v.Issues {
			key := issue.Key()
			if i, ok := index[key]; ok {
				if review.SeverityRank(issue.Severity) > review.SeverityRank(merged[i].Severity) {
					merged[i].Severity = issue.Severity
				}
				merged[i].RaisedBy = appendUnique(merged[i].RaisedBy, v.JudgeID)
				continue
			}
			issue.RaisedBy = []string{v.JudgeID}
			index[key] = len(merged)
			merged = append(merged, issue)
		}
	}
	return merged
}

func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

// fallback is the verdict used when nothing usable came back or the
// aggregation failed. It only partitions; it does not vote.
func fallback(verdicts []review.JudgeVerdict) review.CouncilVerdict {
	out := review.CouncilVerdict{
		Disposition:  review.DispositionRequestChanges,
		Contributing: []review.JudgeVerdict{},
		Failed:       []review.JudgeVerdict{},
		Issues:       []review.Issue{},
		Degraded:     true,
	}
	for _, v := range verdicts {
		if v.Usable() && v.Disposition.IsValid() {
			out.Contributing = append(out.Contributing, v)
		} else {
			out.Failed = append(out.Failed, v)
		}
	}
	return out
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
