package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/tribunal/internal/council"
	"github.com/dshills/tribunal/internal/providers"
	"github.com/dshills/tribunal/internal/review"
)

// resolveBackend is swapped out in tests.
var resolveBackend council.Resolver = providers.New

var judgesCmd = &cobra.Command{
	Use:   "judges",
	Short: "Inspect and check the judge council",
}

var judgesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured judges",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(buildOverrides())
		if err != nil {
			return err
		}
		judges := cfg.JudgeConfigs()
		if err := council.Validate(judges); err != nil {
			return err
		}

		ui := newUI(cmd)
		table := ui.Table([]string{"ID", "PROVIDER", "MODEL", "PERSONA", "WEIGHT", "TIMEOUT", "API KEY"})
		for _, j := range judges {
			if err := table.Append([]string{
				j.ID, j.Provider, j.Model, j.Persona,
				strconv.FormatFloat(j.Weight, 'f', -1, 64),
				j.Timeout.String(),
				keyEnv(j.Provider),
			}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
		ceiling := maxTimeout(judges) + cfg.Council.CeilingBuffer
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d judges, review ceiling %s\n", len(judges), ceiling)
		return nil
	},
}

// keyEnv shows the API key variable and whether it is set.
func keyEnv(provider string) string {
	env := providers.KeyEnv(provider)
	if env == "" {
		return "-"
	}
	if lookupEnv(env) {
		return env
	}
	return env + " (unset)"
}

func lookupEnv(key string) bool {
	v, ok := os.LookupEnv(key)
	return ok && v != ""
}

func maxTimeout(judges []review.JudgeConfig) time.Duration {
	var longest time.Duration
	for _, j := range judges {
		longest = max(longest, j.Timeout)
	}
	return longest
}

var judgesPersonasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List built-in judge personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := newUI(cmd).Table([]string{"PERSONA", "DESCRIPTION"})
		for _, name := range review.PersonaNames() {
			p, _ := review.LookupPersona(name)
			if err := table.Append([]string{p.Name, p.Description}); err != nil {
				return err
			}
		}
		return table.Render()
	},
}

var judgesDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that every judge's provider is configured and responding",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(buildOverrides())
		if err != nil {
			return err
		}
		ui := newUI(cmd)

		for _, j := range cfg.JudgeConfigs() {
			ui.Info("Checking %s (%s)...", j.ID, j.Label())
			if err := pingJudge(cmd.Context(), j); err != nil {
				ui.Error("%s: %v", j.ID, err)
				code := ExitRuntimeError
				if providers.IsAuthError(err) {
					code = ExitAuthError
				}
				// Auth problems outrank transient ones.
				if exitCode != ExitAuthError {
					exitCode = code
				}
				continue
			}
			ui.Success("%s is configured and responding", j.ID)
		}
		return nil
	},
}

func pingJudge(ctx context.Context, j review.JudgeConfig) error {
	backend, err := resolveBackend(j.Provider, j.Model)
	if err != nil {
		return err
	}
	timeout := min(j.Timeout, 30*time.Second)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err = backend.Complete(ctx, providers.Request{
		SystemPrompt: "Respond with exactly: ok",
		UserPrompt:   "ping",
		MaxTokens:    10,
	})
	return err
}

func init() {
	judgesCmd.AddCommand(judgesListCmd)
	judgesCmd.AddCommand(judgesPersonasCmd)
	judgesCmd.AddCommand(judgesDoctorCmd)
	for _, cmd := range []*cobra.Command{judgesListCmd, judgesDoctorCmd} {
		cmd.Flags().StringVar(&flagJudges, "judges", "", "Judges as provider:model[/persona][@weight] (comma-separated)")
	}
}
