package review

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Parse methods recorded on a JudgeVerdict.
const (
	ParseStructured = "structured"
	ParseMarkers    = "markers"
	ParseHeuristic  = "heuristic"
	ParseFallback   = "fallback"
)

// Score bounds for judge verdicts.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// UnparseableIssue is the description of the single issue carried by a fallback verdict.
const UnparseableIssue = "unparseable judge output"

// maxRationale caps rationale text taken from free-form responses.
const maxRationale = 2000

// parsed is what a strategy extracts from judge text.
type parsed struct {
	disposition Disposition
	score       float64
	hasScore    bool
	issues      []Issue
	rationale   string
}

type strategy struct {
	name string
	fn   func(text string) (parsed, bool)
}

// apply runs the strategy; a panic inside a strategy counts as "no match".
func (s strategy) apply(text string) (p parsed, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p, ok = parsed{}, false
		}
	}()
	return s.fn(text)
}

var strategies = []strategy{
	{name: ParseStructured, fn: parseStructured},
	{name: ParseMarkers, fn: parseMarkers},
	{name: ParseHeuristic, fn: parseHeuristic},
}

// ParseVerdict extracts a verdict from a judge's raw text. It never fails:
// when no strategy finds a disposition the deterministic fallback is returned.
func ParseVerdict(judgeID, text string) JudgeVerdict {
	if strings.TrimSpace(text) != "" {
		for _, s := range strategies {
			p, ok := s.apply(text)
			if !ok || !p.disposition.IsValid() {
				continue
			}
			score := defaultScore(p.disposition)
			if p.hasScore {
				score = clampScore(p.score, score)
			}
			return JudgeVerdict{
				JudgeID:     judgeID,
				Disposition: p.disposition,
				Score:       score,
				Issues:      p.issues,
				Rationale:   p.rationale,
				Status:      StatusCompleted,
				ParseMethod: s.name,
			}
		}
	}
	return FallbackVerdict(judgeID)
}

// FallbackVerdict is substituted when a judge's output cannot be interpreted.
func FallbackVerdict(judgeID string) JudgeVerdict {
	return JudgeVerdict{
		JudgeID:     judgeID,
		Disposition: DispositionRequestChanges,
		Score:       (MinScore + MaxScore) / 2,
		Issues: []Issue{
			{Description: UnparseableIssue, Severity: SeverityMedium},
		},
		Rationale:   "judge output could not be parsed; substituting a cautious default",
		Status:      StatusParseFailed,
		ParseMethod: ParseFallback,
	}
}

func defaultScore(d Disposition) float64 {
	switch d {
	case DispositionApprove:
		return 85
	case DispositionReject:
		return 20
	default:
		return 50
	}
}

func clampScore(s, fallback float64) float64 {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return fallback
	}
	return math.Max(MinScore, math.Min(MaxScore, s))
}

// NormalizeDisposition maps the vocabulary judges use onto a Disposition.
func NormalizeDisposition(s string) (Disposition, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.Trim(key, "*_`\"'.!,;:()[]")
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	switch key {
	case "approve", "approved", "approval", "accept", "accepted", "lgtm", "pass", "passed", "ship_it":
		return DispositionApprove, true
	case "request_changes", "request_change", "changes_requested", "requested_changes", "needs_changes",
		"needs_work", "changes_needed", "revise", "revision", "request_revision", "major_revision":
		return DispositionRequestChanges, true
	case "reject", "rejected", "block", "blocked", "fail", "failed", "deny", "denied":
		return DispositionReject, true
	}
	return "", false
}

// --- structured JSON ---

type rawVerdict struct {
	Disposition string          `json:"disposition"`
	Verdict     string          `json:"verdict"`
	Decision    string          `json:"decision"`
	Score       json.RawMessage `json:"score"`
	Rationale   string          `json:"rationale"`
	Summary     string          `json:"summary"`
	Reasoning   string          `json:"reasoning"`
	Issues      []rawIssue      `json:"issues"`
	Findings    []rawIssue      `json:"findings"`
}

type rawIssue struct {
	Description string          `json:"description"`
	Message     string          `json:"message"`
	Title       string          `json:"title"`
	Severity    string          `json:"severity"`
	Path        string          `json:"path"`
	File        string          `json:"file"`
	Line        json.RawMessage `json:"line"`
	StartLine   json.RawMessage `json:"startLine"`
	EndLine     json.RawMessage `json:"endLine"`
}

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)```")

func parseStructured(text string) (parsed, bool) {
	for _, candidate := range jsonCandidates(text) {
		var raw rawVerdict
		// A mistyped field still leaves the rest of the object decoded.
		var typeErr *json.UnmarshalTypeError
		if err := json.Unmarshal([]byte(candidate), &raw); err != nil && !errors.As(err, &typeErr) {
			continue
		}
		if p, ok := raw.toParsed(); ok {
			return p, true
		}
	}
	return parsed{}, false
}

// jsonCandidates yields the whole text, fenced blocks, and balanced {...} spans.
func jsonCandidates(text string) []string {
	text = strings.TrimSpace(text)
	candidates := []string{text}
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, balancedObjects(text, 8)...)
	return candidates
}

// balancedObjects returns up to limit top-level {...} spans, honoring JSON strings.
func balancedObjects(text string, limit int) []string {
	var out []string
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(text) && len(out) < limit; i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, text[start:i+1])
				start = -1
			}
		}
	}
	return out
}

func (r rawVerdict) toParsed() (parsed, bool) {
	var p parsed
	for _, field := range []string{r.Disposition, r.Verdict, r.Decision} {
		if d, ok := NormalizeDisposition(field); ok {
			p.disposition = d
			break
		}
	}
	if !p.disposition.IsValid() {
		return parsed{}, false
	}
	p.score, p.hasScore = rawScore(r.Score)
	p.rationale = firstNonEmpty(r.Rationale, r.Reasoning, r.Summary)
	for _, ri := range append(r.Issues, r.Findings...) {
		if issue, ok := ri.toIssue(); ok {
			p.issues = append(p.issues, issue)
		}
	}
	return p, true
}

func rawScore(msg json.RawMessage) (float64, bool) {
	if len(msg) == 0 || string(msg) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(msg, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "/100")), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// rawLine accepts 12, 12.0 and "12"; anything else reads as no line.
func rawLine(msg json.RawMessage) int {
	f, ok := rawScore(msg)
	if !ok || f < 0 || math.IsNaN(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func (ri rawIssue) toIssue() (Issue, bool) {
	desc := firstNonEmpty(ri.Description, ri.Message, ri.Title)
	if desc == "" {
		return Issue{}, false
	}
	issue := Issue{
		Description: strings.TrimSpace(desc),
		Severity:    NormalizeSeverity(ri.Severity),
	}
	path := firstNonEmpty(ri.Path, ri.File)
	if path != "" {
		start := rawLine(ri.StartLine)
		if start == 0 {
			start = rawLine(ri.Line)
		}
		issue.Location = &Location{Path: path, Lines: LineRange{Start: start, End: rawLine(ri.EndLine)}}
	}
	return issue, true
}

// --- KEY: value markers ---

var (
	markerDisposition = regexp.MustCompile(`(?im)^[\s>#*_-]*(?:final\s+)?(?:disposition|verdict|decision|recommendation)[*_]*\s*[:=]\s*[*_` + "`" + `]*\s*([A-Za-z][A-Za-z _-]*)`)
	markerScore       = regexp.MustCompile(`(?im)^[\s>#*_-]*(?:score|quality(?:\s+score)?)[*_]*\s*[:=]\s*[*_]*\s*(\d+(?:\.\d+)?)`)
	markerIssue       = regexp.MustCompile(`(?im)^[\s>*_-]*(?:\d+\.\s*)?(?:issue|finding)[*_]*\s*[:=]\s*(.+)$`)
	markerRationale   = regexp.MustCompile(`(?ims)^[\s>#*_-]*(?:rationale|reasoning|summary)[*_]*\s*[:=]\s*(.+?)(?:\n\s*\n|\z)`)

	issueSeverityTag = regexp.MustCompile(`^\s*[\[(]([A-Za-z]+)[\])]\s*[:\-]?\s*`)
	issueSeverityPre = regexp.MustCompile(`(?i)^\s*(critical|blocker|high|major|medium|moderate|low|minor|nit)\s*[:\-]\s*`)
	issueLocation    = regexp.MustCompile(`^([\w./\\-]+\.[A-Za-z0-9]+):(\d+)(?:-(\d+))?\s*(?:-|:|—|–)\s*(.+)$`)
)

func parseMarkers(text string) (parsed, bool) {
	var p parsed
	for _, m := range markerDisposition.FindAllStringSubmatch(text, -1) {
		if d, ok := dispositionFromPhrase(m[1]); ok {
			p.disposition = d
			break
		}
	}
	if !p.disposition.IsValid() {
		return parsed{}, false
	}
	if sm := markerScore.FindStringSubmatch(text); sm != nil {
		if f, err := strconv.ParseFloat(sm[1], 64); err == nil {
			p.score, p.hasScore = f, true
		}
	}
	for _, im := range markerIssue.FindAllStringSubmatch(text, -1) {
		if issue, ok := parseIssueLine(im[1]); ok {
			p.issues = append(p.issues, issue)
		}
	}
	if rm := markerRationale.FindStringSubmatch(text); rm != nil {
		p.rationale = truncate(strings.TrimSpace(rm[1]), maxRationale)
	}
	return p, true
}

// dispositionFromPhrase tries the whole phrase, then its leading words.
func dispositionFromPhrase(phrase string) (Disposition, bool) {
	words := strings.Fields(phrase)
	for n := len(words); n > 0; n-- {
		if n > 3 {
			continue
		}
		if d, ok := NormalizeDisposition(strings.Join(words[:n], " ")); ok {
			return d, true
		}
	}
	return "", false
}

// parseIssueLine understands "[high] path/file.go:12-14 - description" and looser variants.
func parseIssueLine(line string) (Issue, bool) {
	line = strings.TrimSpace(line)
	issue := Issue{Severity: SeverityMedium}
	if m := issueSeverityTag.FindStringSubmatch(line); m != nil {
		issue.Severity = NormalizeSeverity(m[1])
		line = line[len(m[0]):]
	} else if m := issueSeverityPre.FindStringSubmatch(line); m != nil {
		issue.Severity = NormalizeSeverity(m[1])
		line = line[len(m[0]):]
	}
	if m := issueLocation.FindStringSubmatch(line); m != nil {
		start, _ := strconv.Atoi(m[2])
		end, _ := strconv.Atoi(m[3])
		issue.Location = &Location{Path: m[1], Lines: LineRange{Start: start, End: end}}
		line = m[4]
	}
	issue.Description = strings.TrimSpace(line)
	if issue.Description == "" {
		return Issue{}, false
	}
	return issue, true
}

// --- free-text heuristics ---

var (
	negatedApproval = regexp.MustCompile(`\b(?:not|cannot|can't|can not|won't|wouldn't|unable to|do not|don't)\s+(?:be\s+)?(?:yet\s+)?(?:approve|approved|accept|accepted|merge|merged)\b`)
	negatedReject   = regexp.MustCompile(`\b(?:no reason to|no need to|nothing to|not|never|won't|wouldn't|don't|cannot|can't)\s+(?:be\s+)?(?:need\s+to\s+)?reject(?:ed|ing)?\b`)
	rejectTokens    = regexp.MustCompile(`\b(?:i (?:would |must |have to |will )?reject|reject(?:ing)? (?:this|the|it)|(?:should|must) be rejected|recommend(?:ing)? (?:to )?reject(?:ion|ing)?|do not merge|don't merge|must not be merged|should not be merged|block(?:ing)? (?:the |this )?merge)\b`)
	rejectLine      = regexp.MustCompile(`(?m)^[\s*_]*reject(?:ed)?[\s*_.!]*$`)
	changesTokens   = regexp.MustCompile(`\b(?:request(?:ing)? changes|changes requested|request_changes|needs? (?:changes|work|revision)|must be (?:fixed|addressed)|please (?:fix|address)|changes are required)\b`)
	approveTokens   = regexp.MustCompile(`\b(?:approve|approved|approving|lgtm|looks good to me|ship it|ready to merge)\b`)
	outOf100        = regexp.MustCompile(`\b(\d{1,3}(?:\.\d+)?)\s*/\s*100\b`)
	scoreWord       = regexp.MustCompile(`\bscore\b[^0-9\n]{0,12}(\d{1,3}(?:\.\d+)?)`)
	bulletLine      = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	severityWord    = regexp.MustCompile(`(?i)\b(critical|blocker|high|major|medium|moderate|low|minor|nit|vulnerability|security|bug)\b`)
)

func parseHeuristic(text string) (parsed, bool) {
	lower := strings.ToLower(text)
	cleared := negatedReject.ReplaceAllString(lower, " ")
	var p parsed
	switch {
	case rejectTokens.MatchString(cleared), rejectLine.MatchString(cleared):
		p.disposition = DispositionReject
	case changesTokens.MatchString(lower), negatedApproval.MatchString(lower):
		p.disposition = DispositionRequestChanges
	case approveTokens.MatchString(lower):
		p.disposition = DispositionApprove
	default:
		return parsed{}, false
	}

	if m := outOf100.FindStringSubmatch(lower); m != nil {
		p.score, p.hasScore = mustFloat(m[1])
	} else if m := scoreWord.FindStringSubmatch(lower); m != nil {
		p.score, p.hasScore = mustFloat(m[1])
	}

	for _, m := range bulletLine.FindAllStringSubmatch(text, -1) {
		sw := severityWord.FindStringSubmatch(m[1])
		if sw == nil {
			continue
		}
		issue, ok := parseIssueLine(m[1])
		if !ok {
			continue
		}
		if issue.Severity == SeverityMedium {
			issue.Severity = heuristicSeverity(sw[1])
		}
		p.issues = append(p.issues, issue)
	}

	p.rationale = truncate(firstParagraph(text), maxRationale)
	return p, true
}

func heuristicSeverity(word string) Severity {
	switch strings.ToLower(word) {
	case "vulnerability", "security", "bug":
		return SeverityHigh
	default:
		return NormalizeSeverity(word)
	}
}

func mustFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func firstParagraph(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "\n\n"); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return text
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
