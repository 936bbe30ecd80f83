// Package output formats council verdicts for display or machine consumption.
//
// Five formats are supported:
//   - text     — terminal output with a per-judge table (default)
//   - json     — full structured report
//   - yaml     — the same report as YAML
//   - markdown — PR-comment-friendly with collapsible sections per severity
//   - sarif    — SARIF v2.1.0 for upload to code scanning tools
//
// Use [GetWriter] to obtain a [Writer] for a given format string, or
// [WriteReport] to select the destination as well. [UI] carries the colored
// status lines and tables used by the CLI.
package output
