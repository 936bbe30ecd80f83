package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dshills/tribunal/internal/review"
)

// Report is one council verdict plus the context it was produced in.
type Report struct {
	Tool     string                `json:"tool" yaml:"tool"`
	Version  string                `json:"version" yaml:"version"`
	Mode     string                `json:"mode,omitempty" yaml:"mode,omitempty"`
	Range    string                `json:"range,omitempty" yaml:"range,omitempty"`
	RepoRoot string                `json:"repoRoot,omitempty" yaml:"repoRoot,omitempty"`
	Branch   string                `json:"branch,omitempty" yaml:"branch,omitempty"`
	Judges   []review.JudgeConfig  `json:"judges,omitempty" yaml:"judges,omitempty"`
	Notes    []string              `json:"notes,omitempty" yaml:"notes,omitempty"`
	Verdict  review.CouncilVerdict `json:"verdict" yaml:"verdict"`
}

// NewReport wraps a verdict with tool metadata.
func NewReport(version string, v *review.CouncilVerdict, judges []review.JudgeConfig) *Report {
	r := &Report{Tool: "tribunal", Version: version, Judges: judges}
	if v != nil {
		r.Verdict = *v
	}
	return r
}

// judgeLabel returns provider:model/persona for a judge ID, or "" if unknown.
func (r *Report) judgeLabel(id string) string {
	for _, j := range r.Judges {
		if j.ID == id {
			return j.Label()
		}
	}
	return ""
}

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *Report) error
}

// Formats lists the supported output formats.
func Formats() []string {
	return []string{"text", "json", "yaml", "markdown", "sarif"}
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "yaml":
		return &YAMLWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to the specified output (file path or stdout).
func WriteReport(report *Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writer.Write(w, report)
}

func formatLatency(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

func percent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}
