// Package history records council verdicts in a local SQLite database so
// callers can list past reviews and track how reliable each judge is.
//
// Persistence is a caller concern: the council never writes here itself.
// The CLI and MCP server call [Store.Save] after a review completes.
package history
