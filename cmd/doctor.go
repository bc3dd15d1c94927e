package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/argus/internal/config"
	"github.com/nextlevelbuilder/argus/internal/device"
	"github.com/nextlevelbuilder/argus/internal/executor"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

type checkLevel int

const (
	checkPass checkLevel = iota
	checkWarn
	checkFail
)

// doctorReport counts check outcomes.
type doctorReport struct {
	pass, warn, fail int
}

func (r *doctorReport) add(level checkLevel, name, detail string) {
	var mark string
	switch level {
	case checkPass:
		r.pass++
		mark = okStyle.Render("ok  ")
	case checkWarn:
		r.warn++
		mark = warnStyle.Render("warn")
	case checkFail:
		r.fail++
		mark = errStyle.Render("FAIL")
	}
	fmt.Printf("    %s %-12s %s\n", mark, name+":", detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, desktop access and code runtimes",
		Run: func(cmd *cobra.Command, args []string) {
			doctor()
		},
	}
}

// doctor prints the environment report and exits 1 when a required check fails.
func doctor() {
	fmt.Println("argus doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	var r doctorReport

	fmt.Println("  Config:")
	cfgPath := resolveConfigPath()
	if _, err := os.Stat(cfgPath); err != nil {
		r.add(checkWarn, "file", cfgPath+" (not found, using defaults and environment)")
	} else {
		r.add(checkPass, "file", cfgPath)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		r.add(checkFail, "load", err.Error())
		summarize(r)
		return
	}
	if err := cfg.Validate(); err != nil && len(cfg.MissingRequired()) == 0 {
		r.add(checkFail, "validate", err.Error())
	}

	checkAgent(&r, "GUIAgent", cfg.GUIAgent)
	checkAgent(&r, "CodeAgent", cfg.CodeAgent)

	fmt.Println()
	fmt.Println("  Desktop:")
	checkPlatform(&r, cfg.Device)

	fmt.Println()
	fmt.Println("  Runtimes:")
	checkRuntimes(&r, cfg.Executor)

	fmt.Println()
	fmt.Println("  Memory:")
	switch cfg.Memory.Backend {
	case "memory":
		r.add(checkWarn, "notes", "in process, lost on exit")
	case "redis":
		if cfg.Memory.RedisURL == "" {
			r.add(checkFail, "notes", "backend redis without memory.redis_url")
		} else {
			r.add(checkPass, "notes", "redis")
		}
	default:
		db := config.ExpandHome(cfg.Memory.DBPath)
		if _, err := os.Stat(filepath.Dir(db)); err != nil {
			r.add(checkWarn, "notes", db+" (directory will be created)")
		} else {
			r.add(checkPass, "notes", db)
		}
	}

	summarize(r)
}

func checkAgent(r *doctorReport, name string, c config.AgentConfig) {
	fmt.Println()
	fmt.Printf("  %s:\n", name)
	if c.Model == "" {
		r.add(checkFail, "model", "not set ("+name+"_MODEL)")
	} else {
		r.add(checkPass, "model", c.Model)
	}
	if c.APIKey == "" {
		r.add(checkFail, "api key", "not set ("+name+"_API_KEY)")
	} else {
		r.add(checkPass, "api key", maskKey(c.APIKey))
	}
	if c.APIBase == "" {
		r.add(checkWarn, "api base", "not set ("+name+"_API_BASE), using the provider default")
	} else {
		r.add(checkPass, "api base", c.APIBase)
	}
}

func checkPlatform(r *doctorReport, c config.DeviceConfig) {
	if c.Backend == "none" {
		r.add(checkWarn, "backend", "disabled, the GUI agent cannot act")
		return
	}
	switch runtime.GOOS {
	case "linux":
		checkBinary(r, "xdotool")
		cmd := c.ScreenshotCommand
		if cmd == "" {
			cmd = device.DefaultScreenshotCommand
		}
		if argv, err := shellwords.Parse(cmd); err != nil || len(argv) == 0 {
			r.add(checkFail, "screenshot", fmt.Sprintf("invalid command %q", cmd))
		} else {
			checkBinary(r, argv[0])
		}
	case "windows":
		r.add(checkPass, "platform", runtime.GOOS)
	default:
		r.add(checkWarn, "platform", runtime.GOOS+" is not a supported desktop")
	}
}

func checkRuntimes(r *doctorReport, c config.ExecutorConfig) {
	e := executor.NewEngine(executor.Options{Languages: c.Languages, KernelCommand: c.KernelCommand})
	defer e.Close()
	for _, lang := range []string{"bash", "powershell", "python", "javascript", "starlark"} {
		if e.Available(lang) {
			r.add(checkPass, lang, "available")
		} else {
			r.add(checkWarn, lang, "not available")
		}
	}
}

func checkBinary(r *doctorReport, name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		r.add(checkWarn, name, "NOT FOUND")
		return
	}
	r.add(checkPass, name, path)
}

func summarize(r doctorReport) {
	fmt.Println()
	summary := fmt.Sprintf("%s  %s  %s",
		okStyle.Render(fmt.Sprintf("%d passed", r.pass)),
		warnStyle.Render(fmt.Sprintf("%d warnings", r.warn)),
		errStyle.Render(fmt.Sprintf("%d failed", r.fail)))
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1).Render(summary))
	if r.fail > 0 {
		os.Exit(1)
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
