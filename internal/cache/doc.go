// Package cache stores raw judge responses on disk so that re-reviewing an
// unchanged change with the same judge does not call the model again.
//
// Entries are keyed by a SHA-256 of provider, model, both prompts and the
// generation settings. Each entry is a small JSON file holding the response
// text, token usage and creation time; entries older than the TTL miss and are
// removed on read. Everything that reaches the cache has already been through
// redaction.
package cache
