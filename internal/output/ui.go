package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/dshills/tribunal/internal/review"
)

// UI prints status messages and tables for CLI commands.
type UI struct {
	Out    io.Writer
	ErrOut io.Writer
}

// NewUI creates a UI with default stdout/stderr writers.
func NewUI() *UI {
	return &UI{Out: os.Stdout, ErrOut: os.Stderr}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	bold          = color.New(color.Bold).SprintFunc()
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

// Table creates a new tablewriter on the UI's output.
func (u *UI) Table(headers []string) *tablewriter.Table {
	return newTable(u.Out, headers)
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// DispositionColor returns the disposition colored by caution.
func DispositionColor(d review.Disposition) string {
	s := string(d)
	switch d {
	case review.DispositionApprove:
		return green(s)
	case review.DispositionRequestChanges:
		return yellow(s)
	case review.DispositionReject:
		return red(s)
	default:
		return s
	}
}

// StatusColor returns the judge status colored by outcome.
func StatusColor(s review.Status) string {
	switch s {
	case review.StatusCompleted:
		return green(string(s))
	case review.StatusParseFailed:
		return yellow(string(s))
	case review.StatusTimedOut, review.StatusError:
		return red(string(s))
	default:
		return string(s)
	}
}

// SeverityColor returns the severity label colored by tier.
func SeverityColor(s review.Severity) string {
	switch s {
	case review.SeverityCritical, review.SeverityHigh:
		return red(string(s))
	case review.SeverityMedium:
		return yellow(string(s))
	default:
		return cyan(string(s))
	}
}
