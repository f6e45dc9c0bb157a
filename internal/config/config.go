// Package config provides configuration loading and management for AegisMask.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mackeh/aegismask/internal/security/redactor"
)

// EnvPrefix prefixes every environment override, e.g. AEGISMASK_SERVER_ADDR.
const EnvPrefix = "AEGISMASK_"

// Invalid keyword policies.
const (
	InvalidSkip   = "skip"
	InvalidReject = "reject"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the main AegisMask configuration
type Config struct {
	Version string       `yaml:"version"`
	Filter  FilterConfig `yaml:"filter" envPrefix:"FILTER_"`
	Lists   []ListConfig `yaml:"lists"`
	// DefaultList is used when a request names neither a list nor keywords.
	DefaultList string `yaml:"default_list" env:"DEFAULT_LIST"`
	// InvalidKeywords is "skip" (drop bad entries) or "reject" (fail the list).
	InvalidKeywords string               `yaml:"invalid_keywords" env:"INVALID_KEYWORDS"`
	Server          ServerConfig         `yaml:"server" envPrefix:"SERVER_"`
	Policy          PolicyConfig         `yaml:"policy" envPrefix:"POLICY_"`
	Audit           AuditConfig          `yaml:"audit" envPrefix:"AUDIT_"`
	Telemetry       TelemetryConfig      `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Logging         LoggingConfig        `yaml:"logging" envPrefix:"LOG_"`
	Secrets         SecretsConfig        `yaml:"secrets" envPrefix:"SECRETS_"`
	Notifications   []NotificationConfig `yaml:"notifications"`
}

// FilterConfig holds the default matching options.
type FilterConfig struct {
	IgnoreWhitespace bool   `yaml:"ignore_whitespace" env:"IGNORE_WHITESPACE"`
	CaseInsensitive  bool   `yaml:"case_insensitive" env:"CASE_INSENSITIVE"`
	Mask             string `yaml:"mask" env:"MASK"` // a single character
}

// Options converts the filter section into matcher options.
func (f FilterConfig) Options() redactor.Options {
	opts := redactor.Options{
		IgnoreWhitespace: f.IgnoreWhitespace,
		CaseInsensitive:  f.CaseInsensitive,
	}
	if r, size := utf8.DecodeRuneInString(f.Mask); size > 0 && r != utf8.RuneError {
		opts.Mask = r
	}
	return opts
}

// ListConfig names one keyword list: inline keywords, a file, or both.
type ListConfig struct {
	Name     string   `yaml:"name"`
	Path     string   `yaml:"path,omitempty"`
	Format   string   `yaml:"format,omitempty"` // text, json, yaml, toml; empty = by extension
	Keywords []string `yaml:"keywords,omitempty"`
	Watch    bool     `yaml:"watch,omitempty"` // reload when the file changes
}

// ServerConfig contains API server settings
type ServerConfig struct {
	Addr         string     `yaml:"addr" env:"ADDR"`
	MaxBodyBytes int64      `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	CacheSize    int        `yaml:"cache_size" env:"CACHE_SIZE"` // ad-hoc dictionaries kept in memory
	Auth         AuthConfig `yaml:"auth" envPrefix:"AUTH_"`
}

// AuthConfig holds API key authentication configuration.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled" env:"ENABLED"`
	Keys    []APIKey `yaml:"keys"`
}

// APIKey maps a token to a role.
type APIKey struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
	Role  string `yaml:"role"`
}

// PolicyConfig points at the moderation policy and its thresholds.
type PolicyConfig struct {
	Path            string `yaml:"path" env:"PATH"`
	ReviewThreshold int    `yaml:"review_threshold" env:"REVIEW_THRESHOLD"`
	DenyThreshold   int    `yaml:"deny_threshold" env:"DENY_THRESHOLD"`
}

// AuditConfig contains audit log settings
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// TelemetryConfig contains observability settings
type TelemetryConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Exporter  string `yaml:"exporter" env:"EXPORTER"` // e.g., "stdout", "none"
	TracePath string `yaml:"trace_path,omitempty" env:"TRACE_PATH"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	File  string `yaml:"file,omitempty" env:"FILE"`
}

// SecretsConfig locates the age identity used for sealed lists.
type SecretsConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
}

// NotificationConfig represents a notification channel.
type NotificationConfig struct {
	Type       string   `yaml:"type"`
	URL        string   `yaml:"url,omitempty"`
	Secret     string   `yaml:"secret,omitempty"`
	WebhookURL string   `yaml:"webhook_url,omitempty"`
	Events     []string `yaml:"events"`
}

// DefaultConfigDir returns the default configuration directory path
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".aegismask"), nil
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Version:         "1",
		Filter:          FilterConfig{Mask: "*"},
		InvalidKeywords: InvalidSkip,
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			MaxBodyBytes: 1 << 20,
			CacheSize:    64,
		},
		Policy: PolicyConfig{
			Path:            filepath.Join(dir, "policy.rego"),
			ReviewThreshold: 1,
			DenyThreshold:   5,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "audit", "audit.log"),
		},
		Telemetry: TelemetryConfig{Exporter: "stdout"},
		Logging:   LoggingConfig{Level: "info"},
		Secrets:   SecretsConfig{Dir: filepath.Join(dir, "secrets")},
	}
}

// Load reads the configuration from the specified path, then applies
// AEGISMASK_* environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default(filepath.Dir(path))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the built-in
// defaults with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return Load(path)
	}
	cfg := Default(filepath.Dir(path))
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from the default path
func LoadDefault() (*Config, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(dir, "config.yaml"))
}

// Save writes the configuration to the specified path
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// List looks up a keyword list by name.
func (c *Config) List(name string) (ListConfig, bool) {
	for _, l := range c.Lists {
		if l.Name == name {
			return l, true
		}
	}
	return ListConfig{}, false
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.InvalidKeywords {
	case "", InvalidSkip, InvalidReject:
	default:
		return fmt.Errorf("%w: invalid_keywords must be %q or %q, got %q", ErrInvalid, InvalidSkip, InvalidReject, c.InvalidKeywords)
	}

	if c.Filter.Mask != "" && utf8.RuneCountInString(c.Filter.Mask) != 1 {
		return fmt.Errorf("%w: filter.mask must be a single character, got %q", ErrInvalid, c.Filter.Mask)
	}

	seen := make(map[string]bool, len(c.Lists))
	for i, l := range c.Lists {
		if l.Name == "" {
			return fmt.Errorf("%w: lists[%d] has no name", ErrInvalid, i)
		}
		if seen[l.Name] {
			return fmt.Errorf("%w: duplicate list %q", ErrInvalid, l.Name)
		}
		seen[l.Name] = true
		if l.Path == "" && len(l.Keywords) == 0 {
			return fmt.Errorf("%w: list %q needs a path or keywords", ErrInvalid, l.Name)
		}
	}
	if c.DefaultList != "" && !seen[c.DefaultList] {
		return fmt.Errorf("%w: default_list %q is not defined", ErrInvalid, c.DefaultList)
	}

	if c.Policy.ReviewThreshold < 0 || c.Policy.DenyThreshold < 0 {
		return fmt.Errorf("%w: policy thresholds must not be negative", ErrInvalid)
	}
	if c.Policy.DenyThreshold > 0 && c.Policy.DenyThreshold < c.Policy.ReviewThreshold {
		return fmt.Errorf("%w: policy.deny_threshold must be >= review_threshold", ErrInvalid)
	}
	return nil
}

func (c *Config) expandPaths() {
	for i := range c.Lists {
		c.Lists[i].Path = ExpandPath(c.Lists[i].Path)
	}
	c.Policy.Path = ExpandPath(c.Policy.Path)
	c.Audit.Path = ExpandPath(c.Audit.Path)
	c.Telemetry.TracePath = ExpandPath(c.Telemetry.TracePath)
	c.Logging.File = ExpandPath(c.Logging.File)
	c.Secrets.Dir = ExpandPath(c.Secrets.Dir)
}

// ExpandPath resolves a leading "~/" against the home directory.
func ExpandPath(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
