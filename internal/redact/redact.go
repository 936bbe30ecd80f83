package redact

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dshills/tribunal/internal/review"
)

const placeholder = "[REDACTED]"

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	// Connection strings with inline credentials.
	regexp.MustCompile(`(?i)\b(postgres(ql)?|mysql|mongodb(\+srv)?|redis|amqp)://[^\s:/@]+:[^\s@]+@`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	// Google API keys
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Options selects which redactions Request applies.
type Options struct {
	Secrets bool
	Paths   []string
}

// Report summarises what was removed.
type Report struct {
	Secrets int      `json:"secrets"`
	Files   []string `json:"files,omitempty"`
}

// Any reports whether anything was redacted.
func (r Report) Any() bool {
	return r.Secrets > 0 || len(r.Files) > 0
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	out, _ := secrets(text)
	return out
}

func secrets(text string) (string, int) {
	n := 0
	for _, pat := range secretPatterns {
		text = pat.ReplaceAllStringFunc(text, func(string) string {
			n++
			return placeholder
		})
	}
	return text, n
}

// ShouldRedactPath checks if a file path matches any of the redaction path patterns.
func ShouldRedactPath(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
		// "**/" patterns also match on the base name at any depth.
		if clean, ok := strings.CutPrefix(pattern, "**/"); ok {
			if matched, err := filepath.Match(clean, filepath.Base(path)); err == nil && matched {
				return true
			}
		}
	}
	return false
}

// Content redacts secrets from content and optionally redacts entire content
// if the file path matches redaction patterns.
func Content(content, path string, redactPaths []string) string {
	if ShouldRedactPath(path, redactPaths) {
		return placeholder + " (file content redacted by path policy)\n"
	}
	return Secrets(content)
}

// Diff blanks the body of every file section of a unified diff whose path
// matches patterns, keeping the "diff --git" header so judges still see that
// the file changed. It returns the redacted paths in diff order.
func Diff(diff string, patterns []string) (string, []string) {
	if len(patterns) == 0 || diff == "" {
		return diff, nil
	}
	var (
		b        strings.Builder
		redacted []string
		skipping bool
	)
	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			path := sectionPath(line)
			skipping = ShouldRedactPath(path, patterns)
			b.WriteString(line)
			if skipping {
				redacted = append(redacted, path)
				b.WriteString(placeholder + " (file content redacted by path policy)\n")
			}
			continue
		}
		if !skipping {
			b.WriteString(line)
		}
	}
	return b.String(), redacted
}

// sectionPath extracts the b/ path of a "diff --git a/x b/x" header.
func sectionPath(header string) string {
	header = strings.TrimRight(header, "\r\n")
	if i := strings.LastIndex(header, " b/"); i >= 0 {
		return header[i+3:]
	}
	fields := strings.Fields(header)
	return strings.TrimPrefix(fields[len(fields)-1], "b/")
}

// Request returns a copy of req with path-policy files and secrets removed
// from the diff, plan and prior review. File names are kept.
func Request(req review.Request, opts Options) (review.Request, Report) {
	var rep Report
	out := req
	out.Files = append([]string(nil), req.Files...)

	out.Diff, rep.Files = Diff(req.Diff, opts.Paths)
	if !opts.Secrets {
		return out, rep
	}
	var n int
	out.Diff, n = secrets(out.Diff)
	rep.Secrets += n
	out.Plan, n = secrets(out.Plan)
	rep.Secrets += n
	out.PriorReview, n = secrets(out.PriorReview)
	rep.Secrets += n
	return out, rep
}
