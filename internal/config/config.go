package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dshills/tribunal/internal/review"
)

// EnvPrefix is prepended to every environment override (TRIBUNAL_FAIL_ON, ...).
const EnvPrefix = "TRIBUNAL"

// Config represents the tribunal configuration.
type Config struct {
	Judges         []JudgeSpec   `mapstructure:"judges" yaml:"judges"`
	Council        CouncilConfig `mapstructure:"council" yaml:"council"`
	Format         string        `mapstructure:"format" yaml:"format"`
	FailOn         string        `mapstructure:"fail_on" yaml:"fail_on"`
	MinConfidence  float64       `mapstructure:"min_confidence" yaml:"min_confidence"`
	MaxDiffBytes   int           `mapstructure:"max_diff_bytes" yaml:"max_diff_bytes"`
	GuidelinesFile string        `mapstructure:"guidelines_file" yaml:"guidelines_file,omitempty"`
	Privacy        PrivacyConfig `mapstructure:"privacy" yaml:"privacy"`
	Cache          CacheConfig   `mapstructure:"cache" yaml:"cache"`
	History        HistoryConfig `mapstructure:"history" yaml:"history"`
	Log            LogConfig     `mapstructure:"log" yaml:"log"`
}

// JudgeSpec is one council seat as written in the config file.
type JudgeSpec struct {
	ID           string        `mapstructure:"id" yaml:"id"`
	Provider     string        `mapstructure:"provider" yaml:"provider"`
	Model        string        `mapstructure:"model" yaml:"model"`
	Persona      string        `mapstructure:"persona" yaml:"persona,omitempty"`
	Instructions string        `mapstructure:"instructions" yaml:"instructions,omitempty"`
	Weight       float64       `mapstructure:"weight" yaml:"weight"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CouncilConfig holds council-wide tuning.
type CouncilConfig struct {
	CeilingBuffer time.Duration `mapstructure:"ceiling_buffer" yaml:"ceiling_buffer"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature" yaml:"temperature"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir        string `mapstructure:"dir" yaml:"dir,omitempty"`
	TTLSeconds int    `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `mapstructure:"redact_secrets" yaml:"redact_secrets"`
	RedactPaths   []string `mapstructure:"redact_paths" yaml:"redact_paths,omitempty"`
}

// HistoryConfig controls verdict persistence.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path,omitempty"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Judges: []JudgeSpec{
			{ID: "claude", Provider: "anthropic", Model: "claude-sonnet-4-20250514", Persona: "general", Weight: 1, Timeout: 90 * time.Second},
			{ID: "gpt", Provider: "openai", Model: "gpt-4o", Persona: "security", Weight: 1, Timeout: 90 * time.Second},
			{ID: "gemini", Provider: "gemini", Model: "gemini-2.5-flash", Persona: "correctness", Weight: 1, Timeout: 90 * time.Second},
		},
		Council: CouncilConfig{
			CeilingBuffer: 2 * time.Second,
			MaxTokens:     4096,
			Temperature:   0.2,
		},
		Format:        "text",
		FailOn:        "none",
		MinConfidence: 0,
		MaxDiffBytes:  500000,
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		Cache: CacheConfig{
			Enabled:    false,
			TTLSeconds: 86400,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for tribunal.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tribunal"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "tribunal"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "tribunal"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "tribunal"), nil
	default:
		return filepath.Join(home, ".config", "tribunal"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultHistoryPath returns where the history database lives when
// history.db_path is unset.
func DefaultHistoryPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// newViper returns a viper instance with defaults, env binding and (when
// present) the config file at path loaded.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}
	return v, nil
}

// setDefaults registers every scalar key so AutomaticEnv can resolve it
// during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	judges := make([]map[string]any, 0, len(d.Judges))
	for _, j := range d.Judges {
		judges = append(judges, map[string]any{
			"id":       j.ID,
			"provider": j.Provider,
			"model":    j.Model,
			"persona":  j.Persona,
			"weight":   j.Weight,
			"timeout":  j.Timeout.String(),
		})
	}
	v.SetDefault("judges", judges)
	v.SetDefault("council.ceiling_buffer", d.Council.CeilingBuffer.String())
	v.SetDefault("council.max_tokens", d.Council.MaxTokens)
	v.SetDefault("council.temperature", d.Council.Temperature)
	v.SetDefault("format", d.Format)
	v.SetDefault("fail_on", d.FailOn)
	v.SetDefault("min_confidence", d.MinConfidence)
	v.SetDefault("max_diff_bytes", d.MaxDiffBytes)
	v.SetDefault("guidelines_file", d.GuidelinesFile)
	v.SetDefault("privacy.redact_secrets", d.Privacy.RedactSecrets)
	v.SetDefault("privacy.redact_paths", d.Privacy.RedactPaths)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttl_seconds", d.Cache.TTLSeconds)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.db_path", d.History.DBPath)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-empty values should be set).
// Keys are the dotted config keys; "judges" takes a comma-separated list of
// judge specs (see ParseJudgeSpec).
func Load(overrides map[string]string) (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(path, overrides)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string, overrides map[string]string) (Config, error) {
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}

	var judgeOverride []JudgeSpec
	for key, value := range overrides {
		if value == "" {
			continue
		}
		if key == "judges" {
			judgeOverride, err = ParseJudgeSpecs(value)
			if err != nil {
				return Config{}, err
			}
			continue
		}
		if !isKnownKey(key) {
			return Config{}, fmt.Errorf("unknown config key: %s", key)
		}
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if judgeOverride != nil {
		cfg.Judges = judgeOverride
	}
	fillJudgeDefaults(cfg.Judges)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fillJudgeDefaults(judges []JudgeSpec) {
	for i := range judges {
		if judges[i].ID == "" {
			judges[i].ID = judges[i].Provider + "-" + strconv.Itoa(i+1)
		}
		if judges[i].Weight == 0 {
			judges[i].Weight = 1
		}
		if judges[i].Timeout == 0 {
			judges[i].Timeout = 90 * time.Second
		}
		if judges[i].Persona == "" {
			judges[i].Persona = review.DefaultPersona
		}
	}
}

// Validate checks the values the CLI depends on. Judge-level checks
// (duplicate IDs, weights, timeouts) are left to the council.
func (c Config) Validate() error {
	switch c.FailOn {
	case "none", "request_changes", "reject":
	default:
		return fmt.Errorf("fail_on must be none, request_changes or reject, got %q", c.FailOn)
	}
	switch c.Format {
	case "text", "json", "yaml", "markdown", "sarif":
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1], got %v", c.MinConfidence)
	}
	if c.MaxDiffBytes < 0 {
		return fmt.Errorf("max_diff_bytes must not be negative")
	}
	return nil
}

// JudgeConfigs converts the configured seats into council judge configs.
func (c Config) JudgeConfigs() []review.JudgeConfig {
	out := make([]review.JudgeConfig, 0, len(c.Judges))
	for _, j := range c.Judges {
		out = append(out, review.JudgeConfig{
			ID:           j.ID,
			Provider:     j.Provider,
			Model:        j.Model,
			Persona:      j.Persona,
			Instructions: j.Instructions,
			Weight:       j.Weight,
			Timeout:      j.Timeout,
		})
	}
	return out
}

// ParseJudgeSpec parses "provider:model[/persona][@weight]" into a JudgeSpec.
// The ID defaults to provider-model-persona.
func ParseJudgeSpec(s string) (JudgeSpec, error) {
	s = strings.TrimSpace(s)
	provider, rest, ok := strings.Cut(s, ":")
	if !ok || provider == "" || rest == "" {
		return JudgeSpec{}, fmt.Errorf("invalid judge spec %q: expected provider:model", s)
	}
	spec := JudgeSpec{Provider: provider, Weight: 1, Timeout: 90 * time.Second}

	if at := strings.LastIndex(rest, "@"); at >= 0 {
		w, err := strconv.ParseFloat(rest[at+1:], 64)
		if err != nil || w <= 0 {
			return JudgeSpec{}, fmt.Errorf("invalid judge spec %q: weight must be a positive number", s)
		}
		spec.Weight = w
		rest = rest[:at]
	}
	// Model names may contain slashes (ollama namespaces), so only a trailing
	// known persona is split off.
	if slash := strings.LastIndex(rest, "/"); slash >= 0 {
		if _, known := review.LookupPersona(rest[slash+1:]); known {
			spec.Persona = rest[slash+1:]
			rest = rest[:slash]
		}
	}
	if rest == "" {
		return JudgeSpec{}, fmt.Errorf("invalid judge spec %q: empty model", s)
	}
	spec.Model = rest
	if spec.Persona == "" {
		spec.Persona = review.DefaultPersona
	}
	spec.ID = provider + "-" + sanitizeID(spec.Model) + "-" + spec.Persona
	return spec, nil
}

// ParseJudgeSpecs parses a comma-separated list of judge specs, suffixing
// duplicate IDs so each seat stays distinct.
func ParseJudgeSpecs(s string) ([]JudgeSpec, error) {
	var specs []JudgeSpec
	seen := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		spec, err := ParseJudgeSpec(part)
		if err != nil {
			return nil, err
		}
		seen[spec.ID]++
		if n := seen[spec.ID]; n > 1 {
			spec.ID += "-" + strconv.Itoa(n)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no judges in %q", s)
	}
	return specs, nil
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, s)
}

// settableKeys are the scalar keys accepted by SetField and CLI overrides.
var settableKeys = map[string]string{
	"format":                 "string",
	"fail_on":                "string",
	"min_confidence":         "float",
	"max_diff_bytes":         "int",
	"guidelines_file":        "string",
	"council.ceiling_buffer": "duration",
	"council.max_tokens":     "int",
	"council.temperature":    "float",
	"privacy.redact_secrets": "bool",
	"cache.enabled":          "bool",
	"cache.dir":              "string",
	"cache.ttl_seconds":      "int",
	"history.enabled":        "bool",
	"history.db_path":        "string",
	"log.level":              "string",
	"log.file":               "string",
}

func isKnownKey(key string) bool {
	_, ok := settableKeys[key]
	return ok
}

// Keys returns the scalar keys accepted by SetField, sorted.
func Keys() []string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// EnvVar returns the environment variable that overrides key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	kind, ok := settableKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	var (
		i   int
		f   float64
		b   bool
		d   time.Duration
		err error
	)
	switch kind {
	case "int":
		if i, err = strconv.Atoi(value); err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
	case "float":
		if f, err = strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
	case "bool":
		if b, err = strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false: %w", key, err)
		}
	case "duration":
		if d, err = time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a duration: %w", key, err)
		}
	}

	switch key {
	case "format":
		cfg.Format = value
	case "fail_on":
		cfg.FailOn = value
	case "min_confidence":
		cfg.MinConfidence = f
	case "max_diff_bytes":
		cfg.MaxDiffBytes = i
	case "guidelines_file":
		cfg.GuidelinesFile = value
	case "council.ceiling_buffer":
		cfg.Council.CeilingBuffer = d
	case "council.max_tokens":
		cfg.Council.MaxTokens = i
	case "council.temperature":
		cfg.Council.Temperature = f
	case "privacy.redact_secrets":
		cfg.Privacy.RedactSecrets = b
	case "cache.enabled":
		cfg.Cache.Enabled = b
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttl_seconds":
		cfg.Cache.TTLSeconds = i
	case "history.enabled":
		cfg.History.Enabled = b
	case "history.db_path":
		cfg.History.DBPath = value
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	}
	return nil
}

// LoadFile loads the config file at path over the defaults, ignoring the
// environment. A missing file yields the defaults. It is what `config set`
// edits, so env overrides never leak into the saved file.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

const fileHeader = `# tribunal configuration
# Precedence: flags > TRIBUNAL_* environment > this file > defaults.
# Judges: provider is one of anthropic, openai, gemini, ollama, lmstudio.
# Personas: general, correctness, security, performance, maintainability, testing.
# fail_on: none | request_changes | reject
`

// Save writes the config to path as YAML with a short commented header.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Init writes the default config to path. It refuses to overwrite an
// existing file unless force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}
	return Save(path, Default())
}
