package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if len(cfg.Judges) != 3 {
		t.Fatalf("Default judges = %d, want 3", len(cfg.Judges))
	}
	if cfg.Format != "text" {
		t.Errorf("Default format = %q, want %q", cfg.Format, "text")
	}
	if cfg.FailOn != "none" {
		t.Errorf("Default fail_on = %q, want %q", cfg.FailOn, "none")
	}
	if cfg.MaxDiffBytes != 500000 {
		t.Errorf("Default max_diff_bytes = %d, want 500000", cfg.MaxDiffBytes)
	}
	if cfg.Council.CeilingBuffer != 2*time.Second {
		t.Errorf("Default ceiling_buffer = %v, want 2s", cfg.Council.CeilingBuffer)
	}
	if !cfg.Privacy.RedactSecrets {
		t.Error("Default redact_secrets should be true")
	}
	if cfg.Cache.Enabled {
		t.Error("Default cache should be disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, k := range Keys() {
		t.Setenv(EnvVar(k), "")
		os.Unsetenv(EnvVar(k))
	}
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cfg.Judges) != 3 {
		t.Fatalf("judges = %d, want 3", len(cfg.Judges))
	}
	if cfg.Judges[0].ID != "claude" || cfg.Judges[0].Timeout != 90*time.Second {
		t.Errorf("first judge = %+v", cfg.Judges[0])
	}
	if cfg.Council.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d, want 4096", cfg.Council.MaxTokens)
	}
	if got := cfg.Privacy.RedactPaths; len(got) != 2 {
		t.Errorf("redact_paths = %v", got)
	}
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "tribunal", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `judges:
  - id: a
    provider: anthropic
    model: claude-x
    weight: 2
    timeout: 30s
  - provider: ollama
    model: qwen2.5-coder
fail_on: reject
min_confidence: 0.6
council:
  ceiling_buffer: 5s
cache:
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cfg.Judges) != 2 {
		t.Fatalf("judges = %d, want 2", len(cfg.Judges))
	}
	a := cfg.Judges[0]
	if a.ID != "a" || a.Weight != 2 || a.Timeout != 30*time.Second || a.Persona != "general" {
		t.Errorf("judge a = %+v", a)
	}
	b := cfg.Judges[1]
	if b.ID != "ollama-2" || b.Weight != 1 || b.Timeout != 90*time.Second {
		t.Errorf("judge b defaults not filled: %+v", b)
	}
	if cfg.FailOn != "reject" {
		t.Errorf("fail_on = %q, want reject", cfg.FailOn)
	}
	if cfg.MinConfidence != 0.6 {
		t.Errorf("min_confidence = %v, want 0.6", cfg.MinConfidence)
	}
	if cfg.Council.CeilingBuffer != 5*time.Second {
		t.Errorf("ceiling_buffer = %v, want 5s", cfg.Council.CeilingBuffer)
	}
	if cfg.Council.MaxTokens != 4096 {
		t.Errorf("unset max_tokens should keep default, got %d", cfg.Council.MaxTokens)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache.enabled from file should be true")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("judges: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path, nil); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestConfigPrecedence(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("format: markdown\nfail_on: reject\nlog:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRIBUNAL_FORMAT", "json")
	t.Setenv("TRIBUNAL_LOG_LEVEL", "debug")

	cfg, err := LoadFrom(path, map[string]string{"format": "sarif"})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Format != "sarif" {
		t.Errorf("flag should win: format = %q", cfg.Format)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("env should beat file: log.level = %q", cfg.Log.Level)
	}
	if cfg.FailOn != "reject" {
		t.Errorf("file should beat default: fail_on = %q", cfg.FailOn)
	}
}

func TestLoad_EnvNumeric(t *testing.T) {
	isolate(t)
	t.Setenv("TRIBUNAL_COUNCIL_MAX_TOKENS", "2048")
	t.Setenv("TRIBUNAL_MIN_CONFIDENCE", "0.75")
	t.Setenv("TRIBUNAL_COUNCIL_CEILING_BUFFER", "3s")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Council.MaxTokens != 2048 {
		t.Errorf("max_tokens = %d, want 2048", cfg.Council.MaxTokens)
	}
	if cfg.MinConfidence != 0.75 {
		t.Errorf("min_confidence = %v, want 0.75", cfg.MinConfidence)
	}
	if cfg.Council.CeilingBuffer != 3*time.Second {
		t.Errorf("ceiling_buffer = %v, want 3s", cfg.Council.CeilingBuffer)
	}
}

func TestLoad_JudgeOverride(t *testing.T) {
	isolate(t)
	cfg, err := Load(map[string]string{"judges": "openai:gpt-4o/security@2, ollama:library/llama3"})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cfg.Judges) != 2 {
		t.Fatalf("judges = %d, want 2", len(cfg.Judges))
	}
	if cfg.Judges[0].Persona != "security" || cfg.Judges[0].Weight != 2 {
		t.Errorf("first judge = %+v", cfg.Judges[0])
	}
	if cfg.Judges[1].Model != "library/llama3" {
		t.Errorf("model with slash should survive, got %q", cfg.Judges[1].Model)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		wantErr   string
	}{
		{"unknown key", map[string]string{"nope": "x"}, "unknown config key"},
		{"bad fail_on", map[string]string{"fail_on": "high"}, "fail_on"},
		{"bad format", map[string]string{"format": "html"}, "unsupported format"},
		{"confidence range", map[string]string{"min_confidence": "1.5"}, "min_confidence"},
		{"bad judge", map[string]string{"judges": "anthropic"}, "provider:model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(tt.overrides)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseJudgeSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    JudgeSpec
		wantErr bool
	}{
		{in: "anthropic:claude-sonnet-4", want: JudgeSpec{ID: "anthropic-claude-sonnet-4-general", Provider: "anthropic", Model: "claude-sonnet-4", Persona: "general", Weight: 1, Timeout: 90 * time.Second}},
		{in: "openai:gpt-4o/testing@0.5", want: JudgeSpec{ID: "openai-gpt-4o-testing", Provider: "openai", Model: "gpt-4o", Persona: "testing", Weight: 0.5, Timeout: 90 * time.Second}},
		{in: "ollama:qwen/coder:7b", want: JudgeSpec{ID: "ollama-qwen-coder-7b-general", Provider: "ollama", Model: "qwen/coder:7b", Persona: "general", Weight: 1, Timeout: 90 * time.Second}},
		{in: "openai:gpt-4o@0", wantErr: true},
		{in: "openai:", wantErr: true},
		{in: ":gpt", wantErr: true},
		{in: "openai:/security", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseJudgeSpec(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseJudgeSpec(%q) expected error, got %+v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJudgeSpec(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseJudgeSpec(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseJudgeSpecs_DuplicateIDs(t *testing.T) {
	specs, err := ParseJudgeSpecs("openai:gpt-4o,openai:gpt-4o")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if specs[0].ID == specs[1].ID {
		t.Errorf("duplicate specs should get distinct IDs, both %q", specs[0].ID)
	}
	if _, err := ParseJudgeSpecs(" , "); err == nil {
		t.Error("expected error for empty list")
	}
}

func TestJudgeConfigs(t *testing.T) {
	cfg := Default()
	cfg.Judges[0].Instructions = "be brief"
	judges := cfg.JudgeConfigs()
	if len(judges) != 3 {
		t.Fatalf("judges = %d", len(judges))
	}
	if judges[0].ID != "claude" || judges[0].Instructions != "be brief" || judges[0].Timeout != 90*time.Second {
		t.Errorf("judge = %+v", judges[0])
	}
}

func TestSetField(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(Config) bool
	}{
		{"format", "json", func(c Config) bool { return c.Format == "json" }},
		{"fail_on", "reject", func(c Config) bool { return c.FailOn == "reject" }},
		{"min_confidence", "0.5", func(c Config) bool { return c.MinConfidence == 0.5 }},
		{"max_diff_bytes", "1000", func(c Config) bool { return c.MaxDiffBytes == 1000 }},
		{"council.ceiling_buffer", "4s", func(c Config) bool { return c.Council.CeilingBuffer == 4*time.Second }},
		{"cache.enabled", "true", func(c Config) bool { return c.Cache.Enabled }},
		{"history.db_path", "/tmp/h.db", func(c Config) bool { return c.History.DBPath == "/tmp/h.db" }},
		{"log.level", "debug", func(c Config) bool { return c.Log.Level == "debug" }},
	}
	for _, tt := range tests {
		cfg := Default()
		if err := SetField(&cfg, tt.key, tt.value); err != nil {
			t.Errorf("SetField(%q, %q) error: %v", tt.key, tt.value, err)
			continue
		}
		if !tt.check(cfg) {
			t.Errorf("SetField(%q, %q) did not apply", tt.key, tt.value)
		}
	}
}

func TestSetField_UnknownKey(t *testing.T) {
	cfg := Default()
	if err := SetField(&cfg, "nonexistent", "value"); err == nil {
		t.Error("Expected error for unknown key")
	}
}

func TestSetField_InvalidValues(t *testing.T) {
	cfg := Default()
	for key, value := range map[string]string{
		"max_diff_bytes":         "lots",
		"min_confidence":         "high",
		"cache.enabled":          "maybe",
		"council.ceiling_buffer": "soon",
	} {
		if err := SetField(&cfg, key, value); err == nil {
			t.Errorf("SetField(%q, %q) expected error", key, value)
		}
	}
}

func TestConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir error: %v", err)
	}
	if dir != "/tmp/xdg-test/tribunal" {
		t.Errorf("ConfigDir = %q, want %q", dir, "/tmp/xdg-test/tribunal")
	}
	path, _ := ConfigPath()
	if path != "/tmp/xdg-test/tribunal/config.yaml" {
		t.Errorf("ConfigPath = %q", path)
	}
}

func TestEnvVar(t *testing.T) {
	if got := EnvVar("council.max_tokens"); got != "TRIBUNAL_COUNCIL_MAX_TOKENS" {
		t.Errorf("EnvVar = %q", got)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.FailOn = "request_changes"
	cfg.Judges = cfg.Judges[:1]
	cfg.Judges[0].Timeout = 45 * time.Second

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# tribunal configuration") {
		t.Errorf("saved file should start with header, got %q", string(data)[:40])
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if loaded.FailOn != "request_changes" {
		t.Errorf("FailOn = %q", loaded.FailOn)
	}
	if len(loaded.Judges) != 1 || loaded.Judges[0].Timeout != 45*time.Second {
		t.Errorf("judges = %+v", loaded.Judges)
	}

	// The saved file must also round-trip through the viper loader.
	viaLoad, err := LoadFrom(path, nil)
	if err != nil {
		t.Fatalf("LoadFrom error: %v", err)
	}
	if viaLoad.Judges[0].Timeout != 45*time.Second {
		t.Errorf("viper timeout = %v", viaLoad.Judges[0].Timeout)
	}
}

func TestLoadFile_NoFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if cfg.Format != "text" || len(cfg.Judges) != 3 {
		t.Errorf("missing file should yield defaults, got format %q and %d judges", cfg.Format, len(cfg.Judges))
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Init(path, false); err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if err := Init(path, false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second Init should refuse, got %v", err)
	}
	if err := Init(path, true); err != nil {
		t.Errorf("forced Init error: %v", err)
	}
}
