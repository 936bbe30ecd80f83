// Package review holds the domain types shared by every part of tribunal:
// dispositions, issues, judge configuration, the review request, and the
// per-judge and council verdicts.
//
// It also builds the prompts each judge receives (persona, project
// guidelines, plan and prior-review context) and turns a judge's raw text
// back into a JudgeVerdict. Parsing never fails: ParseVerdict tries a
// structured JSON reading, then KEY: value markers, then keyword heuristics,
// and finally substitutes a cautious request_changes fallback.
package review
