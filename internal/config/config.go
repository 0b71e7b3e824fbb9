package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/flowtype/internal/log"
	"github.com/l3aro/flowtype/pkg/binder"
	"github.com/l3aro/flowtype/pkg/engine"
	"github.com/l3aro/flowtype/pkg/guard"
)

// Config holds all configuration for ftq
type Config struct {
	// Analysis limits
	MaxNodeVisits          int `yaml:"max_node_visits" json:"max_node_visits" env:"FTQ_MAX_NODE_VISITS"`
	MaxConvergenceAttempts int `yaml:"max_convergence_attempts" json:"max_convergence_attempts" env:"FTQ_MAX_CONVERGENCE_ATTEMPTS"`
	MaxScopeComplexity     int `yaml:"max_scope_complexity" json:"max_scope_complexity" env:"FTQ_MAX_SCOPE_COMPLEXITY"`

	// SessionCacheSize bounds the narrowing results a session retains
	SessionCacheSize int `yaml:"session_cache_size" json:"session_cache_size" env:"FTQ_SESSION_CACHE_SIZE"`

	// UnreachablePriority lists the unreachability reasons, strongest first
	UnreachablePriority []string `yaml:"unreachable_priority" json:"unreachable_priority" env:"FTQ_UNREACHABLE_PRIORITY"`

	// Target interpreter for static conditions
	PythonVersion  string `yaml:"python_version" json:"python_version" env:"FTQ_PYTHON_VERSION"`
	PythonPlatform string `yaml:"python_platform" json:"python_platform" env:"FTQ_PYTHON_PLATFORM"`

	// CacheDir holds file hashes and findings between check runs
	CacheDir string `yaml:"cache_dir" json:"cache_dir" env:"FTQ_CACHE_DIR"`

	// Workers bounds the files checked at once
	Workers int `yaml:"workers" json:"workers" env:"FTQ_WORKERS"`

	// Logging
	Verbose  bool `yaml:"verbose" json:"verbose" env:"FTQ_VERBOSE"`
	JSONLogs bool `yaml:"json_logs" json:"json_logs" env:"FTQ_JSON_LOGS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	limits := guard.DefaultLimits()
	priority := engine.DefaultPriority()
	names := make([]string, len(priority))
	for i, s := range priority {
		names[i] = string(s)
	}
	return &Config{
		MaxNodeVisits:          limits.MaxNodeVisits,
		MaxConvergenceAttempts: limits.MaxConvergenceAttempts,
		MaxScopeComplexity:     limits.MaxScopeComplexity,
		SessionCacheSize:       engine.DefaultOptions().CacheSize,
		UnreachablePriority:    names,
		PythonVersion:          "3.12",
		PythonPlatform:         "linux",
		CacheDir:               ".ftq/cache",
		Workers:                runtime.NumCPU(),
		Verbose:                false,
		JSONLogs:               false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.ftq/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ftq/config.yaml"
	}
	return filepath.Join(home, ".ftq", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.ftq/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".ftq", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.ftq/config.yaml)
// 3. Global config (~/.ftq/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FTQ_MAX_NODE_VISITS"); v != "" {
		if i, ok := parseInt(v); ok && i >= 0 {
			cfg.MaxNodeVisits = i
		}
	}
	if v := os.Getenv("FTQ_MAX_CONVERGENCE_ATTEMPTS"); v != "" {
		if i, ok := parseInt(v); ok && i > 0 {
			cfg.MaxConvergenceAttempts = i
		}
	}
	if v := os.Getenv("FTQ_MAX_SCOPE_COMPLEXITY"); v != "" {
		if i, ok := parseInt(v); ok && i > 0 {
			cfg.MaxScopeComplexity = i
		}
	}
	if v := os.Getenv("FTQ_SESSION_CACHE_SIZE"); v != "" {
		if i, ok := parseInt(v); ok && i >= 0 {
			cfg.SessionCacheSize = i
		}
	}
	if v := os.Getenv("FTQ_UNREACHABLE_PRIORITY"); v != "" {
		var names []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				names = append(names, part)
			}
		}
		cfg.UnreachablePriority = names
	}
	if v := os.Getenv("FTQ_PYTHON_VERSION"); v != "" {
		cfg.PythonVersion = v
	}
	if v := os.Getenv("FTQ_PYTHON_PLATFORM"); v != "" {
		cfg.PythonPlatform = v
	}
	if v := os.Getenv("FTQ_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("FTQ_WORKERS"); v != "" {
		if i, ok := parseInt(v); ok && i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("FTQ_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv("FTQ_JSON_LOGS"); v != "" {
		cfg.JSONLogs = parseBool(v)
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if err := c.Limits().Validate(); err != nil {
		return err
	}
	if c.SessionCacheSize < 0 {
		return fmt.Errorf("session_cache_size must be non-negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.PythonPlatform == "" {
		return fmt.Errorf("python_platform is required")
	}
	if _, err := c.Version(); err != nil {
		return err
	}
	if _, err := c.Priority(); err != nil {
		return err
	}
	return nil
}

// Limits returns the analysis limits.
func (c *Config) Limits() guard.Limits {
	return guard.Limits{
		MaxNodeVisits:          c.MaxNodeVisits,
		MaxConvergenceAttempts: c.MaxConvergenceAttempts,
		MaxScopeComplexity:     c.MaxScopeComplexity,
	}
}

// Version parses python_version ("3.12") into its major and minor parts.
func (c *Config) Version() ([2]int, error) {
	major, minor, ok := strings.Cut(c.PythonVersion, ".")
	if !ok {
		return [2]int{}, fmt.Errorf("invalid python_version %q (want MAJOR.MINOR)", c.PythonVersion)
	}
	ma, ok1 := parseInt(major)
	mi, ok2 := parseInt(minor)
	if !ok1 || !ok2 || ma < 2 || mi < 0 {
		return [2]int{}, fmt.Errorf("invalid python_version %q (want MAJOR.MINOR)", c.PythonVersion)
	}
	return [2]int{ma, mi}, nil
}

// Priority parses unreachable_priority. Reasons may be given by full
// status name or by reason alone ("structural").
func (c *Config) Priority() ([]engine.Status, error) {
	out := make([]engine.Status, 0, len(c.UnreachablePriority))
	for _, name := range c.UnreachablePriority {
		s, err := engine.ParseStatus(name)
		if err != nil {
			return nil, fmt.Errorf("invalid unreachable_priority: %w", err)
		}
		out = append(out, s)
	}
	if len(out) != len(engine.DefaultPriority()) {
		return nil, fmt.Errorf("unreachable_priority must list %d reasons, got %d", len(engine.DefaultPriority()), len(out))
	}
	return out, nil
}

// BinderOptions returns the graph builder options for the configured
// interpreter. Call it on a validated config.
func (c *Config) BinderOptions() binder.Options {
	opts := binder.DefaultOptions()
	if v, err := c.Version(); err == nil {
		opts.PythonVersion = v
	}
	opts.Platform = c.PythonPlatform
	return opts
}

// EngineOptions returns the session options. Call it on a validated config.
func (c *Config) EngineOptions(logger log.Logger) []engine.Option {
	opts := []engine.Option{
		engine.WithLimits(c.Limits()),
		engine.WithCacheSize(c.SessionCacheSize),
	}
	if p, err := c.Priority(); err == nil {
		opts = append(opts, engine.WithUnreachablePriority(p...))
	}
	if logger != nil {
		opts = append(opts, engine.WithLogger(logger))
	}
	return opts
}

// parseInt attempts to parse a string as int
func parseInt(s string) (int, bool) {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0, false
	}
	return i, true
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}
