package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// ErrMissingRequired is returned by Validate when a model id or API key is missing.
var ErrMissingRequired = errors.New("missing required configuration")

// Environment variables that override file values.
const (
	EnvGUIModel    = "GUIAgent_MODEL"
	EnvGUIAPIKey   = "GUIAgent_API_KEY"
	EnvGUIAPIBase  = "GUIAgent_API_BASE"
	EnvCodeModel   = "CodeAgent_MODEL"
	EnvCodeAPIKey  = "CodeAgent_API_KEY"
	EnvCodeAPIBase = "CodeAgent_API_BASE"
	EnvConfigPath  = "ARGUS_CONFIG"
	EnvLogLevel    = "ARGUS_LOG_LEVEL"
)

// Load reads the config file at path (a missing file yields defaults),
// applies environment overrides and resolves keyring references.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json5.Unmarshal(data, cfg)
	}
}

func (c *Config) applyEnv() {
	envStr(EnvGUIModel, &c.GUIAgent.Model)
	envStr(EnvGUIAPIKey, &c.GUIAgent.APIKey)
	envStr(EnvGUIAPIBase, &c.GUIAgent.APIBase)
	envStr(EnvCodeModel, &c.CodeAgent.Model)
	envStr(EnvCodeAPIKey, &c.CodeAgent.APIKey)
	envStr(EnvCodeAPIBase, &c.CodeAgent.APIBase)
	envStr(EnvLogLevel, &c.Log.Level)
}

func envStr(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// MissingRequired lists the environment keys whose values are missing.
func (c *Config) MissingRequired() []string {
	var missing []string
	if c.GUIAgent.Model == "" {
		missing = append(missing, EnvGUIModel)
	}
	if c.GUIAgent.APIKey == "" {
		missing = append(missing, EnvGUIAPIKey)
	}
	if c.CodeAgent.Model == "" {
		missing = append(missing, EnvCodeModel)
	}
	if c.CodeAgent.APIKey == "" {
		missing = append(missing, EnvCodeAPIKey)
	}
	return missing
}

// Validate checks that every required value is present and sane.
func (c *Config) Validate() error {
	if missing := c.MissingRequired(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}
	if t := c.Orchestrator.FallbackThreshold; t < 0 || t > 1 {
		return fmt.Errorf("orchestrator.fallback_threshold must be within [0,1], got %v", t)
	}
	if c.Orchestrator.MaxRetries < 1 {
		return fmt.Errorf("orchestrator.max_retries must be >= 1, got %d", c.Orchestrator.MaxRetries)
	}
	return nil
}
