package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/tribunal/internal/cache"
	"github.com/dshills/tribunal/internal/config"
	"github.com/dshills/tribunal/internal/council"
	"github.com/dshills/tribunal/internal/gitctx"
	"github.com/dshills/tribunal/internal/history"
	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/output"
	"github.com/dshills/tribunal/internal/providers"
	"github.com/dshills/tribunal/internal/redact"
	"github.com/dshills/tribunal/internal/review"
)

// Shared review flags
var (
	flagJudges        string
	flagExclude       string
	flagContextLines  int
	flagMaxDiffBytes  int
	flagFormat        string
	flagOut           string
	flagFailOn        string
	flagMinConfidence float64
	flagGuidelines    string
	flagPlan          string
	flagPrior         string
	flagNoRedact      bool
	flagNoHistory     bool
)

func addReviewFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagJudges, "judges", "", "Judges as provider:model[/persona][@weight] (comma-separated)")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "Exclude file path globs (comma-separated)")
	cmd.Flags().IntVar(&flagContextLines, "context-lines", 0, "Number of context lines in diff")
	cmd.Flags().IntVar(&flagMaxDiffBytes, "max-diff-bytes", 0, "Maximum diff size in bytes")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, yaml, markdown, sarif)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "Exit 1 when the verdict is at least this cautious (none, request_changes, reject)")
	cmd.Flags().Float64Var(&flagMinConfidence, "min-confidence", 0, "Exit 1 when council confidence is below this value (0-1)")
	cmd.Flags().StringVar(&flagGuidelines, "guidelines", "", "Review guidelines file path")
	cmd.Flags().StringVar(&flagPlan, "plan", "", "File with the implementation plan the change should satisfy")
	cmd.Flags().StringVar(&flagPrior, "prior", "", "File with a prior review of this change")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Do not record this review in history")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagJudges != "" {
		m["judges"] = flagJudges
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagFailOn != "" {
		m["fail_on"] = flagFailOn
	}
	if flagMinConfidence > 0 {
		m["min_confidence"] = strconv.FormatFloat(flagMinConfidence, 'f', -1, 64)
	}
	if flagMaxDiffBytes > 0 {
		m["max_diff_bytes"] = strconv.Itoa(flagMaxDiffBytes)
	}
	if flagGuidelines != "" {
		m["guidelines_file"] = flagGuidelines
	}
	return m
}

func buildDiffOpts(cfg config.Config) gitctx.DiffOptions {
	return gitctx.DiffOptions{
		ContextLines: flagContextLines,
		MaxDiffBytes: cfg.MaxDiffBytes,
		Exclude:      splitComma(flagExclude),
	}
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// readOptionalFile returns the contents of path, or "" when path is empty.
func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// newCouncil seats the configured judges with the cache, guidelines and
// generation settings from cfg.
func newCouncil(cfg config.Config, log *logging.Logger) (*council.Council, error) {
	guidelines, err := review.LoadGuidelines(cfg.GuidelinesFile)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTL())
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return council.New(cfg.JudgeConfigs(),
		council.WithLogger(log),
		council.WithResolver(resolveBackend),
		council.WithCeilingBuffer(cfg.Council.CeilingBuffer),
		council.WithGenerationOptions(cfg.Council.MaxTokens, cfg.Council.Temperature),
		council.WithCache(c),
		council.WithGuidelines(guidelines),
	)
}

// councilExitCode maps a construction error to an exit code.
func councilExitCode(err error) int {
	if providers.IsAuthError(err) {
		return ExitAuthError
	}
	var cerr *council.ConfigError
	if errors.As(err, &cerr) {
		return ExitUsageError
	}
	return ExitRuntimeError
}

// gate decides the exit code for a finished review.
func gate(cfg config.Config, v *review.CouncilVerdict) int {
	if v.Disposition.AtLeast(cfg.FailOn) {
		return ExitFindings
	}
	if cfg.MinConfidence > 0 && v.Confidence < cfg.MinConfidence {
		return ExitFindings
	}
	return ExitSuccess
}

func recordHistory(ctx context.Context, cfg config.Config, diff gitctx.DiffResult, v *review.CouncilVerdict) error {
	store, err := openHistoryAt(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	_, err = store.Save(ctx, history.Meta{
		Mode:     diff.Mode,
		Target:   diff.Range,
		RepoRoot: diff.Repo.Root,
		Branch:   diff.Repo.Branch,
		Head:     diff.Repo.Head,
	}, v)
	return err
}

func runReview(cmd *cobra.Command, diff gitctx.DiffResult, cfg config.Config) {
	ui := newUI(cmd)

	plan, err := readOptionalFile(flagPlan)
	if err != nil {
		fail(ExitUsageError, "reading plan: %v", err)
		return
	}
	prior, err := readOptionalFile(flagPrior)
	if err != nil {
		fail(ExitUsageError, "reading prior review: %v", err)
		return
	}

	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		ui.Warning("secret redaction is disabled")
	}
	req, redacted := redact.Request(diff.Request(plan, prior), redact.Options{
		Secrets: cfg.Privacy.RedactSecrets,
		Paths:   cfg.Privacy.RedactPaths,
	})

	log, err := logging.NewFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		fail(ExitRuntimeError, "%v", err)
		return
	}
	defer log.Close()

	c, err := newCouncil(cfg, log)
	if err != nil {
		fail(councilExitCode(err), "%v", err)
		return
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	v := c.Review(ctx, req)

	report := output.NewReport(version, v, c.Judges())
	report.Mode = diff.Mode
	report.Range = diff.Range
	report.RepoRoot = diff.Repo.Root
	report.Branch = diff.Repo.Branch
	if diff.Truncated {
		report.Notes = append(report.Notes, fmt.Sprintf("diff truncated to %d bytes", cfg.MaxDiffBytes))
	}
	if redacted.Secrets > 0 {
		report.Notes = append(report.Notes, fmt.Sprintf("%d secret(s) redacted before review", redacted.Secrets))
	}
	for _, f := range redacted.Files {
		report.Notes = append(report.Notes, "contents of "+f+" withheld by path policy")
	}

	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fail(ExitRuntimeError, "writing output: %v", err)
		return
	}

	if cfg.History.Enabled && !flagNoHistory {
		if err := recordHistory(ctx, cfg, diff, v); err != nil {
			ui.Warning("could not record review history: %v", err)
		}
	}

	if v.Degraded {
		ui.Warning("degraded review: %d of %d judges failed (%s)",
			len(v.Failed), v.JudgeCount(), strings.Join(v.FailedJudges(), ", "))
	}

	exitCode = gate(cfg, v)
}

// diffSource produces the change for one review subcommand.
type diffSource func(ctx context.Context, cmd *cobra.Command, args []string, opts gitctx.DiffOptions) (gitctx.DiffResult, error)

// reviewRunE adapts a diffSource into a cobra handler.
func reviewRunE(source diffSource) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(buildOverrides())
		if err != nil {
			return err
		}
		diff, err := source(cmd.Context(), cmd, args, buildDiffOpts(cfg))
		if err != nil {
			fail(ExitRuntimeError, "%v", err)
			return nil
		}
		runReview(cmd, diff, cfg)
		return nil
	}
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review code changes",
	Long:  "Convene the judge council on a code change. Use subcommands to specify what to review.",
}

var reviewUnstagedCmd = &cobra.Command{
	Use:   "unstaged",
	Short: "Review unstaged changes (working tree vs index)",
	RunE: reviewRunE(func(ctx context.Context, _ *cobra.Command, _ []string, opts gitctx.DiffOptions) (gitctx.DiffResult, error) {
		return gitctx.Repo{}.Unstaged(ctx, opts)
	}),
}

var reviewStagedCmd = &cobra.Command{
	Use:   "staged",
	Short: "Review staged changes (index vs HEAD)",
	RunE: reviewRunE(func(ctx context.Context, _ *cobra.Command, _ []string, opts gitctx.DiffOptions) (gitctx.DiffResult, error) {
		return gitctx.Repo{}.Staged(ctx, opts)
	}),
}

var reviewCommitCmd = &cobra.Command{
	Use:   "commit <sha>",
	Short: "Review a specific commit",
	Args:  cobra.ExactArgs(1),
	RunE: reviewRunE(func(ctx context.Context, _ *cobra.Command, args []string, opts gitctx.DiffOptions) (gitctx.DiffResult, error) {
		return gitctx.Repo{}.Commit(ctx, args[0], opts)
	}),
}

var (
	flagMergeBase bool
)

var reviewRangeCmd = &cobra.Command{
	Use:   "range <revRange>",
	Short: "Review a revision range (e.g., origin/main..HEAD)",
	Args:  cobra.ExactArgs(1),
	RunE: reviewRunE(func(ctx context.Context, _ *cobra.Command, args []string, opts gitctx.DiffOptions) (gitctx.DiffResult, error) {
		return gitctx.Repo{}.Range(ctx, args[0], flagMergeBase, opts)
	}),
}

var (
	flagSnippetPath string
	flagSnippetBase string
)

var reviewSnippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Review code from stdin",
	RunE: reviewRunE(func(ctx context.Context, cmd *cobra.Command, _ []string, opts gitctx.DiffOptions) (gitctx.DiffResult, error) {
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return gitctx.DiffResult{}, fmt.Errorf("reading stdin: %w", err)
		}
		base, err := readOptionalFile(flagSnippetBase)
		if err != nil {
			return gitctx.DiffResult{}, fmt.Errorf("reading base file: %w", err)
		}
		return gitctx.Snippet(ctx, string(content), flagSnippetPath, base, opts)
	}),
}

func init() {
	reviewCmd.AddCommand(reviewUnstagedCmd)
	reviewCmd.AddCommand(reviewStagedCmd)
	reviewCmd.AddCommand(reviewCommitCmd)
	reviewCmd.AddCommand(reviewRangeCmd)
	reviewCmd.AddCommand(reviewSnippetCmd)

	for _, cmd := range []*cobra.Command{
		reviewUnstagedCmd,
		reviewStagedCmd,
		reviewCommitCmd,
		reviewRangeCmd,
		reviewSnippetCmd,
	} {
		addReviewFlags(cmd)
	}

	reviewRangeCmd.Flags().BoolVar(&flagMergeBase, "merge-base", true, "Use merge base for branch comparisons")

	reviewSnippetCmd.Flags().StringVar(&flagSnippetPath, "path", "", "File path (for language detection and messages)")
	reviewSnippetCmd.Flags().StringVar(&flagSnippetBase, "base", "", "Base file to diff against")
}
