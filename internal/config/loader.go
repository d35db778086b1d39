package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/marcozac/go-jsonc"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before stripping, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	// Strip JSONC comments and unmarshal
	var cfg Config
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every field at its default value. It is what
// Load produces for an empty config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Coordinator.SecurityMode == "" {
		if v := os.Getenv("OVERSEER_SECURITY_MODE"); v != "" {
			cfg.Coordinator.SecurityMode = v
		} else {
			cfg.Coordinator.SecurityMode = "strict"
		}
	}
	if cfg.Coordinator.ReconcileSchedule == "" {
		cfg.Coordinator.ReconcileSchedule = "@every 3s"
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(OverseerPath(), "history.db")
	}
	if cfg.Heartbeat.Path == "" {
		cfg.Heartbeat.Path = filepath.Join(OverseerPath(), "heartbeat.json")
	}
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = Duration(30 * time.Second)
	}
	if cfg.Executor.BaseURL == "" {
		cfg.Executor.BaseURL = "http://127.0.0.1:18431"
	}
	if cfg.Executor.Timeout == 0 {
		cfg.Executor.Timeout = Duration(2 * time.Minute)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
