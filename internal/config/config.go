// Package config loads the argus configuration from a JSON5 or YAML file,
// applies environment overrides and resolves keychain secret references.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	GUIAgent     AgentConfig        `json:"gui_agent" yaml:"gui_agent"`
	CodeAgent    AgentConfig        `json:"code_agent" yaml:"code_agent"`
	Memory       MemoryConfig       `json:"memory" yaml:"memory"`
	Executor     ExecutorConfig     `json:"executor" yaml:"executor"`
	Device       DeviceConfig       `json:"device" yaml:"device"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	Tools        ToolsConfig        `json:"tools" yaml:"tools"`
	Telemetry    TelemetryConfig    `json:"telemetry" yaml:"telemetry"`
	Log          LogConfig          `json:"log" yaml:"log"`
}

// AgentConfig configures one agent loop and its LLM endpoint.
type AgentConfig struct {
	Provider          string `json:"provider,omitempty" yaml:"provider,omitempty"` // "openai" (default) or "volcengine"
	Model             string `json:"model" yaml:"model"`
	APIKey            string `json:"api_key" yaml:"api_key"` // literal or "keyring:<service>/<user>"
	APIBase           string `json:"api_base,omitempty" yaml:"api_base,omitempty"`
	MaxIterations     int    `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	MaxTokens         int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	KeepImages        *int   `json:"keep_images,omitempty" yaml:"keep_images,omitempty"`
	KeepToolGroups    int    `json:"keep_tool_groups,omitempty" yaml:"keep_tool_groups,omitempty"`
	RequestsPerMinute int    `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
}

// MemoryConfig configures long-term note storage.
type MemoryConfig struct {
	Backend  string `json:"backend,omitempty" yaml:"backend,omitempty"` // "sqlite" (default), "redis" or "memory"
	DBPath   string `json:"db_path" yaml:"db_path"`
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"` // tiktoken encoding, default cl100k_base
}

// ExecutorConfig configures the code execution engine.
type ExecutorConfig struct {
	Languages     []string `json:"languages,omitempty" yaml:"languages,omitempty"` // empty = every available runtime
	GracePeriodMs int      `json:"grace_period_ms,omitempty" yaml:"grace_period_ms,omitempty"`
	KernelCommand string   `json:"kernel_command,omitempty" yaml:"kernel_command,omitempty"`
	AutoApprove   bool     `json:"auto_approve,omitempty" yaml:"auto_approve,omitempty"`
}

// DeviceConfig configures mouse/keyboard/screen access.
type DeviceConfig struct {
	Backend           string  `json:"backend,omitempty" yaml:"backend,omitempty"` // "xdotool" (default) or "none"
	ScreenshotCommand string  `json:"screenshot_command,omitempty" yaml:"screenshot_command,omitempty"`
	MaxWidth          int     `json:"max_width,omitempty" yaml:"max_width,omitempty"`
	ActionsPerSecond  float64 `json:"actions_per_second,omitempty" yaml:"actions_per_second,omitempty"`
}

// OrchestratorConfig configures the retry/fallback state machine.
type OrchestratorConfig struct {
	MaxRetries        int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	HumanTimeoutSec   int      `json:"human_timeout_sec,omitempty" yaml:"human_timeout_sec,omitempty"`
	PollIntervalMs    int      `json:"poll_interval_ms,omitempty" yaml:"poll_interval_ms,omitempty"`
	FallbackThreshold float64  `json:"fallback_threshold,omitempty" yaml:"fallback_threshold,omitempty"`
	SuccessIndicators []string `json:"success_indicators,omitempty" yaml:"success_indicators,omitempty"`
	FailureIndicators []string `json:"failure_indicators,omitempty" yaml:"failure_indicators,omitempty"`
	SuccessExpr       string   `json:"success_expr,omitempty" yaml:"success_expr,omitempty"` // CEL over `result`
}

// ToolsConfig configures the shared tool registry. InjectionAction is "log",
// "warn" (default), "block" or "off"; MaxCallsPerHour 0 means unlimited.
type ToolsConfig struct {
	InjectionAction string `json:"injection_action,omitempty" yaml:"injection_action,omitempty"`
	MaxCallsPerHour int    `json:"max_calls_per_hour,omitempty" yaml:"max_calls_per_hour,omitempty"`
	NoScrub         bool   `json:"no_scrub,omitempty" yaml:"no_scrub,omitempty"`
}

// TelemetryConfig configures the OTLP trace exporter. Empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		GUIAgent: AgentConfig{
			MaxIterations:  50,
			MaxTokens:      8000,
			KeepImages:     intPtr(2),
			KeepToolGroups: 5,
		},
		CodeAgent: AgentConfig{
			MaxIterations:  30,
			MaxTokens:      8000,
			KeepImages:     intPtr(0),
			KeepToolGroups: 10,
		},
		Memory: MemoryConfig{
			Backend:  "sqlite",
			DBPath:   "~/.argus/memory.db",
			Encoding: "cl100k_base",
		},
		Executor: ExecutorConfig{
			GracePeriodMs: 500,
		},
		Device: DeviceConfig{
			Backend:          "xdotool",
			MaxWidth:         1280,
			ActionsPerSecond: 4,
		},
		Orchestrator: OrchestratorConfig{
			MaxRetries:        2,
			HumanTimeoutSec:   300,
			PollIntervalMs:    500,
			FallbackThreshold: 0.8,
		},
		Tools: ToolsConfig{InjectionAction: "warn"},
		Log:   LogConfig{Level: "info"},
	}
}

// GracePeriod returns the executor interrupt grace period.
func (c ExecutorConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMs) * time.Millisecond
}

// HumanTimeout returns how long the orchestrator waits for a human response.
func (c OrchestratorConfig) HumanTimeout() time.Duration {
	return time.Duration(c.HumanTimeoutSec) * time.Second
}

// PollInterval returns the human-wait poll interval.
func (c OrchestratorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// KeepImagesOrDefault returns the visual keep count, treating nil as def.
func (a AgentConfig) KeepImagesOrDefault(def int) int {
	if a.KeepImages == nil {
		return def
	}
	return *a.KeepImages
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return ExpandHome("~/.argus/config.json5")
}

func intPtr(v int) *int { return &v }
