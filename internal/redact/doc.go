// Package redact removes secrets from a review request before it is sent to
// any judge.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS access key IDs and secret access keys, bearer
// tokens, database connection strings, and provider-specific tokens
// (Anthropic, OpenAI, Google, GitHub, Slack).
//
// Path-based redaction blanks whole file sections of the diff whose paths
// match configured glob patterns.
package redact
