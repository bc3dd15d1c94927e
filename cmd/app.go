package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/argus/internal/agent"
	"github.com/nextlevelbuilder/argus/internal/bus"
	"github.com/nextlevelbuilder/argus/internal/config"
	"github.com/nextlevelbuilder/argus/internal/device"
	"github.com/nextlevelbuilder/argus/internal/executor"
	"github.com/nextlevelbuilder/argus/internal/memory"
	"github.com/nextlevelbuilder/argus/internal/orchestrator"
	"github.com/nextlevelbuilder/argus/internal/providers"
	"github.com/nextlevelbuilder/argus/internal/tools"
)

const busCapacity = 256

// app holds every collaborator built at startup.
type app struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	gate       *bus.ApprovalGate
	dispatcher *bus.Dispatcher
	engine     *executor.Engine
	notes      memory.NotesStore
	registry   *tools.Registry
	router     *agent.Router
	orch       *orchestrator.Orchestrator
}

func newApp(cfg *config.Config, autoApprove bool) (*app, error) {
	a := &app{cfg: cfg, bus: bus.New(busCapacity)}
	a.gate = bus.NewApprovalGate(a.bus, autoApprove || cfg.Executor.AutoApprove)
	a.dispatcher = bus.NewDispatcher(a.bus, a.gate)

	a.engine = executor.NewEngine(executor.Options{
		Languages:     cfg.Executor.Languages,
		GracePeriod:   cfg.Executor.GracePeriod(),
		KernelCommand: cfg.Executor.KernelCommand,
	})

	a.notes = newNotesStore(cfg.Memory)
	counter, _ := memory.NewTokenCounter(cfg.Memory.Encoding)

	ctrl, screen, err := buildDevice(cfg.Device)
	if err != nil {
		a.close()
		return nil, err
	}

	a.registry = tools.NewRegistry()
	a.registry.SetScrubbing(!cfg.Tools.NoScrub)
	a.registry.SetRateLimiter(tools.NewToolRateLimiter(cfg.Tools.MaxCallsPerHour, time.Hour))
	a.registry.Register(tools.NewExecuteCodeTool(a.engine, a.gate))
	a.registry.Register(tools.NewInterruptCodeTool(a.engine))
	a.registry.Register(tools.NewRememberTool())
	a.registry.Register(tools.NewForgetTool())
	for _, t := range tools.DeviceTools(ctrl, screen) {
		a.registry.Register(t)
	}
	a.registry.AddSecrets(cfg.GUIAgent.APIKey, cfg.CodeAgent.APIKey)

	guard := agent.NewInputGuard(cfg.Tools.InjectionAction)
	guiLLM := newProvider(cfg.GUIAgent)
	codeLLM := newProvider(cfg.CodeAgent)

	deps := agent.Deps{
		Registry: a.registry,
		Emitter:  a.bus,
		Notes:    a.notes,
		Counter:  counter,
		Guard:    guard,
	}
	codeDeps, guiDeps := deps, deps
	codeDeps.Provider = codeLLM
	guiDeps.Provider = guiLLM

	a.router = agent.NewRouter()
	a.router.Register(agent.StrategyCode, agent.NewCodeAgent(codeDeps, loopConfig(cfg.CodeAgent, 0), a.engine.Languages()))
	a.router.Register(agent.StrategyGUI, agent.NewGUIAgent(guiDeps, screen, loopConfig(cfg.GUIAgent, memory.DefaultKeepImages)))

	classifier, err := classifierFor(cfg.Orchestrator)
	if err != nil {
		a.close()
		return nil, err
	}
	a.orch = orchestrator.New(
		a.router,
		orchestrator.NewAnalyzer(codeLLM, cfg.CodeAgent.Model),
		classifier,
		a.bus,
		a.dispatcher.Responses(),
		orchestratorConfig(cfg.Orchestrator),
	)

	slog.Info("argus: ready",
		"tools", a.registry.Count(),
		"strategies", a.router.List(),
		"languages", a.engine.Languages(),
		"auto_approve", autoApprove || cfg.Executor.AutoApprove)
	return a, nil
}

// start launches the inbound dispatcher. The returned stop cancels it and
// waits for it to return; call it before close.
func (a *app) start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		a.dispatcher.Run(ctx)
		return nil
	})
	return func() {
		cancel()
		g.Wait()
	}
}

// apply re-applies the runtime-tunable sections after a config reload.
func (a *app) apply(cfg *config.Config) {
	classifier, err := classifierFor(cfg.Orchestrator)
	if err != nil {
		slog.Error("argus: reload kept previous classifier", "error", err)
	} else {
		a.orch.SetClassifier(classifier)
	}
	a.orch.SetConfig(orchestratorConfig(cfg.Orchestrator))
}

func (a *app) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.notes != nil {
		a.notes.Close()
	}
	a.bus.Close()
}

// newNotesStore opens the configured long-term store, falling back to an
// in-process one on error.
func newNotesStore(c config.MemoryConfig) memory.NotesStore {
	switch c.Backend {
	case "memory":
		return memory.NewMemStore()
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s, err := memory.NewRedisStore(ctx, c.RedisURL, "")
		if err != nil {
			slog.Warn("memory: redis unavailable, notes kept in process", "error", err)
			return memory.NewMemStore()
		}
		return s
	default:
		s, err := memory.NewSQLiteStore(config.ExpandHome(c.DBPath))
		if err != nil {
			slog.Warn("memory: sqlite unavailable, notes kept in process", "error", err)
			return memory.NewMemStore()
		}
		return s
	}
}

func newProvider(c config.AgentConfig) providers.Provider {
	return providers.New(c.Provider, c.APIKey, c.APIBase, c.Model, c.RequestsPerMinute)
}

func loopConfig(c config.AgentConfig, keepImages int) agent.LoopConfig {
	return agent.LoopConfig{
		Model:          c.Model,
		MaxIterations:  c.MaxIterations,
		MaxTokens:      c.MaxTokens,
		KeepImages:     c.KeepImagesOrDefault(keepImages),
		KeepToolGroups: c.KeepToolGroups,
	}
}

func orchestratorConfig(c config.OrchestratorConfig) orchestrator.Config {
	return orchestrator.Config{
		MaxRetries:        c.MaxRetries,
		HumanTimeout:      c.HumanTimeout(),
		PollInterval:      c.PollInterval(),
		FallbackThreshold: c.FallbackThreshold,
	}
}

func classifierFor(c config.OrchestratorConfig) (*orchestrator.Classifier, error) {
	cl, err := orchestrator.NewClassifier(c.SuccessIndicators, c.FailureIndicators, c.SuccessExpr)
	if err != nil {
		return nil, fmt.Errorf("orchestrator classifier: %w", err)
	}
	return cl, nil
}

// buildDevice returns the configured controller and screen. Backend "none"
// disables desktop access; the GUI agent then fails on its first capture.
func buildDevice(c config.DeviceConfig) (device.Controller, device.Screen, error) {
	if c.Backend == "none" {
		return device.Nop{}, device.Nop{}, nil
	}
	ctrl, err := device.NewCommandController(nil, c.ActionsPerSecond)
	if err != nil {
		return nil, nil, err
	}
	screen, err := device.NewCommandScreen(c.ScreenshotCommand, c.MaxWidth)
	if err != nil {
		return nil, nil, err
	}
	return ctrl, screen, nil
}
