package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/tribunal/internal/config"
	"github.com/dshills/tribunal/internal/history"
	"github.com/dshills/tribunal/internal/output"
	"github.com/dshills/tribunal/internal/review"
)

var (
	flagHistoryLimit       int
	flagHistoryDisposition string
	flagHistoryFormat      string
	flagHistoryOlderThan   time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recorded council verdicts",
}

func historyPath(cfg config.Config) (string, error) {
	if cfg.History.DBPath != "" {
		return cfg.History.DBPath, nil
	}
	return config.DefaultHistoryPath()
}

func openHistoryAt(ctx context.Context, cfg config.Config) (*history.Store, error) {
	path, err := historyPath(cfg)
	if err != nil {
		return nil, err
	}
	return history.Open(ctx, path)
}

// openHistory opens the configured history store.
func openHistory(ctx context.Context) (*history.Store, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	return openHistoryAt(ctx, cfg)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := review.Disposition(flagHistoryDisposition)
		if d != "" && !d.IsValid() {
			return fmt.Errorf("unknown disposition %q", flagHistoryDisposition)
		}
		store, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		reviews, err := store.List(cmd.Context(), history.ListOptions{Limit: flagHistoryLimit, Disposition: d})
		if err != nil {
			return err
		}
		ui := newUI(cmd)
		if len(reviews) == 0 {
			ui.Info("No reviews recorded yet.")
			return nil
		}

		table := ui.Table([]string{"ID", "DATE", "MODE", "TARGET", "VERDICT", "CONFIDENCE", "JUDGES", "ISSUES"})
		for _, r := range reviews {
			verdict := output.DispositionColor(r.Disposition)
			if r.Degraded {
				verdict += " (degraded)"
			}
			if err := table.Append([]string{
				r.ID,
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
				r.Meta.Mode,
				r.Meta.Target,
				verdict,
				fmt.Sprintf("%.0f%%", r.Confidence*100),
				fmt.Sprintf("%d/%d", r.JudgeCount-r.FailedCount, r.JudgeCount),
				strconv.Itoa(r.IssueCount),
			}); err != nil {
				return err
			}
		}
		return table.Render()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recorded review (ID or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		writer, err := output.GetWriter(flagHistoryFormat)
		if err != nil {
			return err
		}
		report := output.NewReport(version, &rec.Verdict, nil)
		report.Mode = rec.Meta.Mode
		report.Range = rec.Meta.Target
		report.RepoRoot = rec.Meta.RepoRoot
		report.Branch = rec.Meta.Branch
		return writer.Write(cmd.OutOrStdout(), report)
	},
}

var historyJudgesCmd = &cobra.Command{
	Use:   "judges",
	Short: "Show per-judge reliability across recorded reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.JudgeStats(cmd.Context())
		if err != nil {
			return err
		}
		ui := newUI(cmd)
		if len(stats) == 0 {
			ui.Info("No reviews recorded yet.")
			return nil
		}

		table := ui.Table([]string{"JUDGE", "RUNS", "FAILED", "FAIL RATE", "PARSE FAILED", "AVG LATENCY", "AGREEMENT", "LAST SEEN"})
		for _, s := range stats {
			if err := table.Append([]string{
				s.JudgeID,
				strconv.Itoa(s.Runs),
				strconv.Itoa(s.Failures),
				fmt.Sprintf("%.0f%%", s.FailureRate()*100),
				strconv.Itoa(s.ParseFailed),
				s.AvgLatency.Round(time.Millisecond).String(),
				fmt.Sprintf("%.0f%%", s.Agreement*100),
				s.LastSeen.Local().Format("2006-01-02"),
			}); err != nil {
				return err
			}
		}
		return table.Render()
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete reviews older than a given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagHistoryOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		store, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Delete(cmd.Context(), time.Now().Add(-flagHistoryOlderThan))
		if err != nil {
			return err
		}
		newUI(cmd).Success("Deleted %d review(s).", n)
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyJudgesCmd)
	historyCmd.AddCommand(historyPruneCmd)

	historyListCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "Maximum number of reviews to list")
	historyListCmd.Flags().StringVar(&flagHistoryDisposition, "disposition", "", "Only reviews with this verdict (approve, request_changes, reject)")
	historyShowCmd.Flags().StringVar(&flagHistoryFormat, "format", "text", "Output format (text, json, yaml, markdown, sarif)")
	historyPruneCmd.Flags().DurationVar(&flagHistoryOlderThan, "older-than", 30*24*time.Hour, "Delete reviews older than this")
}
