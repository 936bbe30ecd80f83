package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dshills/tribunal/internal/logging"
	"github.com/dshills/tribunal/internal/mcpserver"
	"github.com/dshills/tribunal/internal/redact"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Agent hosts can then ask the council to review a diff. Configure with:

  {
    "mcpServers": {
      "tribunal": { "command": "tribunal", "args": ["mcp"] }
    }
  }

Available tools: tribunal_review, tribunal_judges`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(buildOverrides())
		if err != nil {
			return err
		}
		// stdout carries the protocol; logs go to the configured file or stderr.
		log, err := logging.NewFile(cfg.Log.File, cfg.Log.Level)
		if err != nil {
			fail(ExitRuntimeError, "%v", err)
			return nil
		}
		defer log.Close()

		c, err := newCouncil(cfg, log)
		if err != nil {
			fail(councilExitCode(err), "%v", err)
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		opts := []mcpserver.Option{
			mcpserver.WithLogger(log),
			mcpserver.WithDiffLimits(cfg.MaxDiffBytes, nil),
			mcpserver.WithRedaction(redact.Options{
				Secrets: cfg.Privacy.RedactSecrets,
				Paths:   cfg.Privacy.RedactPaths,
			}),
		}
		if cfg.History.Enabled {
			store, err := openHistoryAt(ctx, cfg)
			if err != nil {
				log.Warn("history.unavailable", "error", err)
			} else {
				defer store.Close()
				opts = append(opts, mcpserver.WithHistory(store))
			}
		}

		srv := mcpserver.NewServer(c, version, opts...)
		if err := srv.ServeStdio(ctx); err != nil && ctx.Err() == nil {
			fail(ExitRuntimeError, "%v", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.Flags().StringVar(&flagJudges, "judges", "", "Judges as provider:model[/persona][@weight] (comma-separated)")
	mcpCmd.Flags().StringVar(&flagGuidelines, "guidelines", "", "Review guidelines file path")
}
