// Tribunal is a local-first CLI that reviews code changes with a council of
// LLM judges.
//
// Each configured judge reviews the same change in parallel under its own
// persona and timeout. The weighted votes are merged into one verdict
// (approve, request_changes or reject) with a confidence score, and the
// process exits with a deterministic code suitable for CI gating and git
// hooks. A judge that times out or fails never blocks the others.
//
// Usage:
//
//	tribunal review staged                        # review staged changes
//	tribunal review range origin/main..HEAD       # review a revision range
//	tribunal review snippet --path x.go < x.go    # review code from stdin
//	tribunal review staged --judges anthropic:claude-sonnet-4-20250514,openai:gpt-4o/security@2
//	tribunal history judges                       # per-judge reliability
//	tribunal mcp                                  # serve the council over MCP
package main
