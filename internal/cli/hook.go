package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/tribunal/internal/gitctx"
)

const (
	hookName        = "pre-push"
	hookMarkerStart = "# >>> tribunal pre-push hook >>>"
	hookMarkerEnd   = "# <<< tribunal pre-push hook <<<"
)

var (
	hookFailOn        string
	hookFormat        string
	hookMinConfidence float64
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the git pre-push hook",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install tribunal as a git pre-push hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch hookFailOn {
		case "none", "request_changes", "reject":
		default:
			return fmt.Errorf("--fail-on must be none, request_changes or reject")
		}
		hookPath, err := gitctx.Repo{}.HookPath(cmd.Context(), hookName)
		if err != nil {
			fail(ExitRuntimeError, "%v", err)
			return nil
		}
		if err := installHook(hookPath, generateHookScript(hookFailOn, hookFormat, hookMinConfidence)); err != nil {
			fail(ExitRuntimeError, "%v", err)
			return nil
		}
		newUI(cmd).Success("Installed tribunal pre-push hook at %s", hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the tribunal pre-push hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := gitctx.Repo{}.HookPath(cmd.Context(), hookName)
		if err != nil {
			fail(ExitRuntimeError, "%v", err)
			return nil
		}
		ui := newUI(cmd)
		removed, err := uninstallHook(hookPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			ui.Info("No pre-push hook found.")
		case err != nil:
			fail(ExitRuntimeError, "%v", err)
		case removed:
			ui.Success("Removed tribunal pre-push hook at %s", hookPath)
		default:
			ui.Success("Removed tribunal section from %s", hookPath)
		}
		return nil
	},
}

// installHook writes section into the hook at path, replacing any earlier
// tribunal section and keeping other content.
func installHook(path, section string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading hook file: %w", err)
	}

	var content string
	if len(existing) == 0 {
		content = "#!/bin/sh\n" + section
	} else {
		content = replaceTribunalSection(string(existing), section)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating hooks directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return fmt.Errorf("writing hook file: %w", err)
	}
	return nil
}

// uninstallHook removes the tribunal section. It deletes the file and
// reports true when nothing but a shebang would remain.
func uninstallHook(path string) (bool, error) {
	existing, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	content := removeTribunalSection(string(existing))

	trimmed := strings.TrimSpace(content)
	if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
		if err := os.Remove(path); err != nil {
			return false, fmt.Errorf("removing hook file: %w", err)
		}
		return true, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return false, fmt.Errorf("writing hook file: %w", err)
	}
	return false, nil
}

// generateHookScript reviews the commits being pushed. A gate trip blocks
// the push; review errors (no upstream, missing keys) only warn.
func generateHookScript(failOn, format string, minConfidence float64) string {
	args := fmt.Sprintf("--fail-on %s --format %s", failOn, format)
	if minConfidence > 0 {
		args += " --min-confidence " + strconv.FormatFloat(minConfidence, 'f', -1, 64)
	}

	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	b.WriteString("tribunal review range '@{upstream}..HEAD' " + args + "\n")
	b.WriteString("TRIBUNAL_EXIT=$?\n")
	b.WriteString("if [ $TRIBUNAL_EXIT -eq 1 ]; then\n")
	b.WriteString("  echo \"tribunal: council did not approve, push blocked\"\n")
	b.WriteString("  exit 1\n")
	b.WriteString("elif [ $TRIBUNAL_EXIT -ge 2 ]; then\n")
	b.WriteString("  echo \"tribunal: review could not run (exit $TRIBUNAL_EXIT), allowing push\"\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

func replaceTribunalSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := existing[endIdx+len(hookMarkerEnd):]
	// Trim leading newline from after to avoid double newlines
	after = strings.TrimPrefix(after, "\n")
	return before + section + after
}

func removeTribunalSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		return existing
	}

	before := existing[:startIdx]
	after := existing[endIdx+len(hookMarkerEnd):]
	after = strings.TrimPrefix(after, "\n")

	return before + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookFailOn, "fail-on", "reject", "Block the push when the verdict is at least this cautious (none, request_changes, reject)")
	hookInstallCmd.Flags().StringVar(&hookFormat, "format", "text", "Output format (text, json, yaml, markdown, sarif)")
	hookInstallCmd.Flags().Float64Var(&hookMinConfidence, "min-confidence", 0, "Block the push when council confidence is below this value")
}
