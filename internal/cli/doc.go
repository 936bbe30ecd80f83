// Package cli wires together the Cobra command tree for the tribunal binary.
//
// It defines the root command and all subcommands (review, judges, config,
// cache, history, hook, mcp, version), binds flags, reads configuration,
// convenes the council, and returns deterministic exit codes for CI gating.
package cli
