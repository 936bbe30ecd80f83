package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/tribunal/internal/config"
	"github.com/dshills/tribunal/internal/output"
)

const version = "0.3.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

// flagConfig points at an alternate config file.
var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "tribunal",
	Short: "Multi-judge AI code review council",
	Long: `Tribunal sends a code change to a council of LLM judges in parallel,
aggregates their weighted votes into one verdict, and exits with a
deterministic code for CI and git hook gating.`,
	SilenceUsage: true,
}

// Run executes the root command and returns an exit code.
func Run() int {
	exitCode = ExitSuccess
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// newUI writes to the command's streams so tests can capture them.
func newUI(cmd *cobra.Command) *output.UI {
	return &output.UI{Out: cmd.OutOrStdout(), ErrOut: cmd.ErrOrStderr()}
}

// fail reports err on stderr and records the exit code.
func fail(code int, format string, a ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", a...)
	exitCode = code
}

func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	return config.ConfigPath()
}

func loadConfig(overrides map[string]string) (config.Config, error) {
	path, err := configPath()
	if err != nil {
		return config.Config{}, err
	}
	return config.LoadFrom(path, overrides)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print tribunal version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tribunal version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/tribunal/config.yaml)")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(judgesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
