package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func clearAgentEnv(t *testing.T) {
	for _, k := range []string{EnvGUIModel, EnvGUIAPIKey, EnvGUIAPIBase, EnvCodeModel, EnvCodeAPIKey, EnvCodeAPIBase, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearAgentEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "none.json5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Orchestrator.MaxRetries != 2 {
		t.Errorf("expected max_retries 2, got %d", cfg.Orchestrator.MaxRetries)
	}
	if cfg.CodeAgent.KeepImagesOrDefault(-1) != 0 {
		t.Errorf("expected code agent keep_images 0, got %d", cfg.CodeAgent.KeepImagesOrDefault(-1))
	}
	if cfg.GUIAgent.KeepImagesOrDefault(-1) != 2 {
		t.Errorf("expected gui agent keep_images 2, got %d", cfg.GUIAgent.KeepImagesOrDefault(-1))
	}
}

func TestLoad_JSON5AndEnvOverride(t *testing.T) {
	clearAgentEnv(t)
	path := filepath.Join(t.TempDir(), "config.json5")
	data := `{
  // comments are allowed
  gui_agent: { model: "file-model", api_key: "file-key" },
  orchestrator: { human_timeout_sec: 60 },
}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvGUIModel, "env-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GUIAgent.Model != "env-model" {
		t.Errorf("expected env override, got %s", cfg.GUIAgent.Model)
	}
	if cfg.GUIAgent.APIKey != "file-key" {
		t.Errorf("expected file-key, got %s", cfg.GUIAgent.APIKey)
	}
	if cfg.Orchestrator.HumanTimeoutSec != 60 {
		t.Errorf("expected 60, got %d", cfg.Orchestrator.HumanTimeoutSec)
	}
	if cfg.Orchestrator.PollIntervalMs != 500 {
		t.Errorf("expected default poll interval to survive, got %d", cfg.Orchestrator.PollIntervalMs)
	}
}

func TestLoad_YAML(t *testing.T) {
	clearAgentEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "code_agent:\n  model: coder\n  keep_images: 1\nexecutor:\n  languages: [bash, python]\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CodeAgent.Model != "coder" {
		t.Errorf("expected coder, got %s", cfg.CodeAgent.Model)
	}
	if cfg.CodeAgent.KeepImagesOrDefault(0) != 1 {
		t.Errorf("expected keep_images 1, got %d", cfg.CodeAgent.KeepImagesOrDefault(0))
	}
	if len(cfg.Executor.Languages) != 2 {
		t.Errorf("expected 2 languages, got %v", cfg.Executor.Languages)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := Default()
	cfg.GUIAgent.Model = "m"
	err := cfg.Validate()
	if !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("expected ErrMissingRequired, got %v", err)
	}
	missing := cfg.MissingRequired()
	if len(missing) != 3 {
		t.Errorf("expected 3 missing keys, got %v", missing)
	}
}

func TestResolveSecret_Keyring(t *testing.T) {
	keyring.MockInit()
	ref, err := StoreSecret("argus", "gui", "sk-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := ResolveSecret(ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "sk-secret" {
		t.Errorf("expected sk-secret, got %s", got)
	}
	if _, err := ResolveSecret("keyring:nouser"); err == nil {
		t.Error("expected error for malformed reference")
	}
}

func TestNormalizeAgentID(t *testing.T) {
	cases := map[string]string{
		"GUIAgent":    "guiagent",
		"Code Agent!": "code-agent",
		"   ":         DefaultAgentID,
	}
	for in, want := range cases {
		if got := NormalizeAgentID(in); got != want {
			t.Errorf("NormalizeAgentID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearAgentEnv(t)
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte(`{orchestrator: {max_retries: 2}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.debounce = 20 * time.Millisecond
	got := make(chan int, 4)
	w.OnReload(func(cfg *Config) { got <- cfg.Orchestrator.MaxRetries })
	if err := w.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte(`{orchestrator: {max_retries: 5}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case n := <-got:
		if n != 5 {
			t.Errorf("expected reloaded max_retries 5, got %d", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload after the file changed")
	}
}

func TestDefault_ToolsAndMemory(t *testing.T) {
	cfg := Default()
	if cfg.Tools.InjectionAction != "warn" {
		t.Errorf("expected injection_action warn, got %q", cfg.Tools.InjectionAction)
	}
	if cfg.Memory.Backend != "sqlite" {
		t.Errorf("expected sqlite memory backend, got %q", cfg.Memory.Backend)
	}
}
