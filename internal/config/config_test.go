package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/l3aro/flowtype/pkg/engine"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"MaxNodeVisits", cfg.MaxNodeVisits, 200000},
		{"MaxConvergenceAttempts", cfg.MaxConvergenceAttempts, 64},
		{"MaxScopeComplexity", cfg.MaxScopeComplexity, 768},
		{"SessionCacheSize", cfg.SessionCacheSize, 4096},
		{"PythonVersion", cfg.PythonVersion, "3.12"},
		{"PythonPlatform", cfg.PythonPlatform, "linux"},
		{"CacheDir", cfg.CacheDir, ".ftq/cache"},
		{"Workers", cfg.Workers, runtime.NumCPU()},
		{"Verbose", cfg.Verbose, false},
		{"JSONLogs", cfg.JSONLogs, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errContains string
	}{
		{
			name:    "defaults",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "zero node visits disables the budget",
			mutate:  func(c *Config) { c.MaxNodeVisits = 0 },
			wantErr: false,
		},
		{
			name:        "negative node visits",
			mutate:      func(c *Config) { c.MaxNodeVisits = -1 },
			wantErr:     true,
			errContains: "max node visits",
		},
		{
			name:        "zero convergence attempts",
			mutate:      func(c *Config) { c.MaxConvergenceAttempts = 0 },
			wantErr:     true,
			errContains: "max convergence attempts",
		},
		{
			name:        "zero scope complexity",
			mutate:      func(c *Config) { c.MaxScopeComplexity = 0 },
			wantErr:     true,
			errContains: "max scope complexity",
		},
		{
			name:        "negative cache size",
			mutate:      func(c *Config) { c.SessionCacheSize = -1 },
			wantErr:     true,
			errContains: "session_cache_size",
		},
		{
			name:        "no workers",
			mutate:      func(c *Config) { c.Workers = 0 },
			wantErr:     true,
			errContains: "workers",
		},
		{
			name:        "missing platform",
			mutate:      func(c *Config) { c.PythonPlatform = "" },
			wantErr:     true,
			errContains: "python_platform",
		},
		{
			name:        "bad version",
			mutate:      func(c *Config) { c.PythonVersion = "three" },
			wantErr:     true,
			errContains: "python_version",
		},
		{
			name:        "unknown priority reason",
			mutate:      func(c *Config) { c.UnreachablePriority = []string{"structural", "static_condition", "bogus"} },
			wantErr:     true,
			errContains: "unreachable_priority",
		},
		{
			name:        "short priority list",
			mutate:      func(c *Config) { c.UnreachablePriority = []string{"structural"} },
			wantErr:     true,
			errContains: "must list 3 reasons",
		},
		{
			name:    "short reason names",
			mutate:  func(c *Config) { c.UnreachablePriority = []string{"structural", "by_analysis", "static_condition"} },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errContains)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		checkCfg    func(*testing.T, *Config)
		wantErr     bool
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
max_node_visits: 5000
max_convergence_attempts: 8
max_scope_complexity: 100
session_cache_size: 16
unreachable_priority: [structural, static_condition, by_analysis]
python_version: "3.9"
python_platform: win32
cache_dir: /tmp/ftq-cache
workers: 3
verbose: true
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.MaxNodeVisits != 5000 {
					t.Errorf("MaxNodeVisits = %v, want 5000", cfg.MaxNodeVisits)
				}
				if cfg.MaxConvergenceAttempts != 8 {
					t.Errorf("MaxConvergenceAttempts = %v, want 8", cfg.MaxConvergenceAttempts)
				}
				if cfg.MaxScopeComplexity != 100 {
					t.Errorf("MaxScopeComplexity = %v, want 100", cfg.MaxScopeComplexity)
				}
				if cfg.SessionCacheSize != 16 {
					t.Errorf("SessionCacheSize = %v, want 16", cfg.SessionCacheSize)
				}
				if len(cfg.UnreachablePriority) != 3 || cfg.UnreachablePriority[0] != "structural" {
					t.Errorf("UnreachablePriority = %v, want structural first", cfg.UnreachablePriority)
				}
				if cfg.PythonPlatform != "win32" {
					t.Errorf("PythonPlatform = %v, want win32", cfg.PythonPlatform)
				}
				if v, _ := cfg.Version(); v != [2]int{3, 9} {
					t.Errorf("Version() = %v, want [3 9]", v)
				}
				if cfg.CacheDir != "/tmp/ftq-cache" {
					t.Errorf("CacheDir = %v, want /tmp/ftq-cache", cfg.CacheDir)
				}
				if cfg.Workers != 3 {
					t.Errorf("Workers = %v, want 3", cfg.Workers)
				}
				if !cfg.Verbose {
					t.Error("Verbose = false, want true")
				}
			},
		},
		{
			name:       "partial config keeps defaults",
			configYAML: "workers: 2\n",
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Workers != 2 {
					t.Errorf("Workers = %v, want 2", cfg.Workers)
				}
				if cfg.MaxNodeVisits != 200000 {
					t.Errorf("MaxNodeVisits = %v, want default 200000", cfg.MaxNodeVisits)
				}
				if cfg.PythonVersion != "3.12" {
					t.Errorf("PythonVersion = %v, want default 3.12", cfg.PythonVersion)
				}
			},
		},
		{
			name:        "invalid yaml",
			configYAML:  "workers: [unclosed\n",
			wantErr:     true,
			errContains: "failed to parse config file",
		},
		{
			name:        "invalid values",
			configYAML:  "max_convergence_attempts: 0\n",
			wantErr:     true,
			errContains: "max convergence attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := LoadFromFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadFromFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("LoadFromFile() error = %q, want it to contain %q", err, tt.errContains)
				}
				return
			}
			tt.checkCfg(t, cfg)
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("LoadFromFile() error = %v, want read failure", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, *Config)
	}{
		{
			name:    "override limits",
			envVars: map[string]string{"FTQ_MAX_NODE_VISITS": "10", "FTQ_MAX_CONVERGENCE_ATTEMPTS": "4", "FTQ_MAX_SCOPE_COMPLEXITY": "50"},
			check: func(t *testing.T, cfg *Config) {
				if got := cfg.Limits(); got.MaxNodeVisits != 10 || got.MaxConvergenceAttempts != 4 || got.MaxScopeComplexity != 50 {
					t.Errorf("Limits() = %+v, want 10/4/50", got)
				}
			},
		},
		{
			name:    "invalid number ignored",
			envVars: map[string]string{"FTQ_WORKERS": "many", "FTQ_SESSION_CACHE_SIZE": "-5"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Workers != runtime.NumCPU() {
					t.Errorf("Workers = %v, want default", cfg.Workers)
				}
				if cfg.SessionCacheSize != 4096 {
					t.Errorf("SessionCacheSize = %v, want default", cfg.SessionCacheSize)
				}
			},
		},
		{
			name:    "override priority list",
			envVars: map[string]string{"FTQ_UNREACHABLE_PRIORITY": "structural, by_analysis ,static_condition"},
			check: func(t *testing.T, cfg *Config) {
				want := []string{"structural", "by_analysis", "static_condition"}
				if strings.Join(cfg.UnreachablePriority, ",") != strings.Join(want, ",") {
					t.Errorf("UnreachablePriority = %v, want %v", cfg.UnreachablePriority, want)
				}
			},
		},
		{
			name:    "override interpreter",
			envVars: map[string]string{"FTQ_PYTHON_VERSION": "3.8", "FTQ_PYTHON_PLATFORM": "darwin"},
			check: func(t *testing.T, cfg *Config) {
				opts := cfg.BinderOptions()
				if opts.PythonVersion != [2]int{3, 8} {
					t.Errorf("PythonVersion = %v, want [3 8]", opts.PythonVersion)
				}
				if opts.Platform != "darwin" {
					t.Errorf("Platform = %v, want darwin", opts.Platform)
				}
			},
		},
		{
			name:    "override logging and cache dir",
			envVars: map[string]string{"FTQ_VERBOSE": "1", "FTQ_JSON_LOGS": "true", "FTQ_CACHE_DIR": "/var/ftq"},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Verbose || !cfg.JSONLogs {
					t.Errorf("Verbose = %v, JSONLogs = %v, want both true", cfg.Verbose, cfg.JSONLogs)
				}
				if cfg.CacheDir != "/var/ftq" {
					t.Errorf("CacheDir = %v, want /var/ftq", cfg.CacheDir)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			applyEnvOverrides(cfg)
			tt.check(t, cfg)
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		ok       bool
	}{
		{"0", 0, true},
		{"100", 100, true},
		{"-3", -3, true},
		{"invalid", 0, false},
		{"", 0, false},
		{"abc123", 0, false},
		{"10.5", 10, true}, // Will parse 10 from 10.5
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, ok := parseInt(tt.input)
			if result != tt.expected || ok != tt.ok {
				t.Errorf("parseInt(%q) = %v, %v, want %v, %v", tt.input, result, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodeVisits = 77
	cfg.SessionCacheSize = 9
	cfg.UnreachablePriority = []string{"structural", "static_condition", "by_analysis"}

	var opts engine.Options
	for _, o := range cfg.EngineOptions(nil) {
		o(&opts)
	}
	if opts.Limits.MaxNodeVisits != 77 {
		t.Errorf("Limits.MaxNodeVisits = %v, want 77", opts.Limits.MaxNodeVisits)
	}
	if opts.CacheSize != 9 {
		t.Errorf("CacheSize = %v, want 9", opts.CacheSize)
	}
	if len(opts.Priority) != 3 || opts.Priority[0] != engine.UnreachableStructural {
		t.Errorf("Priority = %v, want structural first", opts.Priority)
	}
	if opts.Logger != nil {
		t.Errorf("Logger = %v, want unset", opts.Logger)
	}
}

func TestConfigSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.MaxScopeComplexity = 300
	cfg.PythonVersion = "3.10"
	cfg.Workers = 5

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if loadedCfg.MaxScopeComplexity != cfg.MaxScopeComplexity {
		t.Errorf("MaxScopeComplexity mismatch: got %d, want %d", loadedCfg.MaxScopeComplexity, cfg.MaxScopeComplexity)
	}
	if loadedCfg.PythonVersion != cfg.PythonVersion {
		t.Errorf("PythonVersion mismatch: got %s, want %s", loadedCfg.PythonVersion, cfg.PythonVersion)
	}
	if loadedCfg.Workers != cfg.Workers {
		t.Errorf("Workers mismatch: got %d, want %d", loadedCfg.Workers, cfg.Workers)
	}
	if strings.Join(loadedCfg.UnreachablePriority, ",") != strings.Join(cfg.UnreachablePriority, ",") {
		t.Errorf("UnreachablePriority mismatch: got %v, want %v", loadedCfg.UnreachablePriority, cfg.UnreachablePriority)
	}
}

func TestConfigSaveCreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "dirs", "config.yaml")

	if err := DefaultConfig().Save(configPath); err != nil {
		t.Fatalf("Save() failed to create parent dirs: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}
}
