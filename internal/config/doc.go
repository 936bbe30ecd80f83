// Package config loads and merges tribunal configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (TRIBUNAL_FAIL_ON, TRIBUNAL_COUNCIL_MAX_TOKENS, etc.)
//  3. Config file ($XDG_CONFIG_HOME/tribunal/config.yaml)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged [Config], [Init] to write a default config
// file, and [SetField] to update a single key. [Config.JudgeConfigs] turns
// the configured seats into council judges.
package config
