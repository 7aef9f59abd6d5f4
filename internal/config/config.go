package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for termbridge.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Executor ExecutorConfig `json:"executor"`
	Analyzer AnalyzerConfig `json:"analyzer"`
	Audit    AuditConfig    `json:"audit"`
	Metrics  MetricsConfig  `json:"metrics"`
	Health   HealthConfig   `json:"health"`
	Log      LogConfig      `json:"log"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ExecutorConfig struct {
	WorkingDir     string `json:"workingDir"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxOutputBytes int    `json:"maxOutputBytes"`
}

// AnalyzerConfig lists YAML rule packs appended after the built-in rules.
type AnalyzerConfig struct {
	RulePacks []string `json:"rulePacks,omitempty"`
}

// AuditConfig gates the optional SQLite audit journal. The execution and
// analysis facilities stay stateless either way.
type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

type HealthConfig struct {
	TimeoutSeconds int            `json:"timeoutSeconds"`
	Targets        []HealthTarget `json:"targets,omitempty"`
}

type HealthTarget struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type LogConfig struct {
	Level string `json:"level"` // debug | info | warn | error
	File  string `json:"file,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.termbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".termbridge"
	}
	return filepath.Join(home, ".termbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Executor.WorkingDir = ExpandPath(cfg.Executor.WorkingDir)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	cfg.Log.File = ExpandPath(cfg.Log.File)
	for i, p := range cfg.Analyzer.RulePacks {
		cfg.Analyzer.RulePacks[i] = ExpandPath(p)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Executor.TimeoutSeconds < 1 {
		errs = append(errs, "executor.timeoutSeconds must be >= 1")
	}
	if cfg.Executor.MaxOutputBytes < 0 {
		errs = append(errs, "executor.maxOutputBytes must be >= 0")
	}
	if cfg.Health.TimeoutSeconds < 1 {
		errs = append(errs, "health.timeoutSeconds must be >= 1")
	}
	for i, t := range cfg.Health.Targets {
		if t.URL == "" {
			errs = append(errs, fmt.Sprintf("health.targets[%d]: url is required", i))
		}
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}
	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
