package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/argus/internal/device"
	"github.com/nextlevelbuilder/argus/internal/memory"
	"github.com/nextlevelbuilder/argus/internal/providers"
	"github.com/nextlevelbuilder/argus/internal/tools"
	"github.com/nextlevelbuilder/argus/internal/tracing"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

const (
	defaultGUIIterations = 50
	defaultSettleDelay   = 500 * time.Millisecond
	defaultWaitDelay     = 5 * time.Second

	screenStateNote = "(Current Screen State)"
)

// GUIAgent solves tasks by looking at screenshots and emitting one action
// per iteration, executed through the registry's device tools.
type GUIAgent struct {
	deps   Deps
	cfg    LoopConfig
	screen device.Screen
	settle time.Duration // pause after every action
	wait   time.Duration // duration of the wait() action
}

func NewGUIAgent(deps Deps, screen device.Screen, cfg LoopConfig) *GUIAgent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultGUIIterations
	}
	return &GUIAgent{
		deps:   deps,
		cfg:    cfg,
		screen: screen,
		settle: defaultSettleDelay,
		wait:   defaultWaitDelay,
	}
}

// WithDelays overrides the post-action settle delay and the wait() duration.
func (a *GUIAgent) WithDelays(settle, wait time.Duration) *GUIAgent {
	a.settle, a.wait = settle, wait
	return a
}

func (a *GUIAgent) Name() string { return protocol.SenderGUIAgent }

// Run executes one task with fresh short-term memory.
func (a *GUIAgent) Run(ctx context.Context, task string) (string, error) {
	emit := emitterOrNop(a.deps.Emitter)
	if err := a.deps.Guard.Inspect("task", task); err != nil {
		return "", fmt.Errorf("gui agent: %w", err)
	}

	mem := a.deps.newMemory(a.Name(), GUIPrompt(task), a.cfg)

	ctx = tools.WithAgentName(ctx, a.Name())
	ctx = tools.WithMemory(ctx, mem)
	ctx, span := tracing.Start(ctx, "agent.run", attribute.String(tracing.AttrAgent, a.Name()))

	emit.Emit(protocol.NewStatus(a.Name(), protocol.EventRunStarted))
	defer emit.Emit(protocol.NewStatus(a.Name(), protocol.EventRunStopped))

	result, err := a.loop(ctx, mem, emit)
	span.SetAttributes(tracing.Preview(result))
	tracing.End(span, err)
	return result, err
}

func (a *GUIAgent) loop(ctx context.Context, mem *memory.Manager, emit Emitter) (string, error) {
	model := modelOrDefault(a.cfg, a.deps.Provider)

	for i := 1; i <= a.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return ResultFailed + "user stopped", err
		}

		shot, err := a.screen.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ResultFailed + "user stopped", ctx.Err()
			}
			slog.Error("gui agent: screenshot failed", "iteration", i, "error", err)
			emit.Emit(protocol.NewStatus(a.Name(), "Error: "+err.Error()))
			return ResultFailed + "screenshot error: " + err.Error(), nil
		}
		mem.Add(memory.RoleUser, screenStateNote, shot.Image, false)
		slog.Debug("gui agent: iteration", "iteration", i, "max", a.cfg.MaxIterations, "tokens", mem.Tokens())

		emit.Emit(protocol.NewStatus(a.Name(), protocol.EventStreamBegin))
		resp, err := chatStream(ctx, a.deps.Provider, providers.ChatRequest{
			Model:       model,
			Messages:    mem.Context(),
			Temperature: a.cfg.Temperature,
		}, func(c providers.StreamChunk) {
			if c.Content != "" {
				emit.Emit(protocol.NewAIContent(a.Name(), c.Content))
			}
		})
		emit.Emit(protocol.NewStatus(a.Name(), protocol.EventStreamEnd))
		if err != nil {
			if ctx.Err() != nil {
				return ResultFailed + "user stopped", ctx.Err()
			}
			slog.Error("gui agent: llm call failed", "iteration", i, "error", err)
			emit.Emit(protocol.NewStatus(a.Name(), protocol.EventLLMError))
			return "", fmt.Errorf("gui agent: llm: %w", err)
		}
		mem.Add(memory.RoleAssistant, resp.Content, nil, false)

		act, err := ParseAction(resp.Content)
		if err != nil {
			slog.Warn("gui agent: unparseable action", "iteration", i, "error", err)
			emit.Emit(protocol.NewStatus(a.Name(), "Error: "+err.Error()))
			continue
		}
		if act.Name == ActionFinished {
			slog.Info("gui agent: finished", "iteration", i)
			return ResultFinished + act.Args["content"], nil
		}

		if err := a.perform(ctx, mem, emit, act, shot); err != nil {
			if ctx.Err() != nil {
				return ResultFailed + "user stopped", ctx.Err()
			}
			slog.Warn("gui agent: action failed", "action", act.Name, "error", err)
			emit.Emit(protocol.NewStatus(a.Name(), "Error: "+err.Error()))
		}
		if err := sleepCtx(ctx, a.settle); err != nil {
			return ResultFailed + "user stopped", err
		}
	}

	slog.Warn("gui agent: max iterations reached", "max", a.cfg.MaxIterations)
	emit.Emit(protocol.NewStatus(a.Name(), protocol.EventMaxIterations))
	return ResultFailed + "max iterations reached", nil
}

// perform maps act onto device tools and runs them in order, stopping at the
// first failing step.
func (a *GUIAgent) perform(ctx context.Context, mem *memory.Manager, emit Emitter, act Action, shot *device.Screenshot) error {
	steps, point, err := plan(act, shot)
	if err != nil {
		return err
	}
	slog.Info("gui agent: action", "action", act.Name, "steps", len(steps))
	if point != nil {
		emit.Emit(protocol.NewActionPoint(a.Name(), point))
	}

	for _, s := range steps {
		res := a.deps.Registry.Execute(ctx, s.tool, s.args)
		mem.RecordToolUse(s.tool, !res.IsError)
		emit.Emit(protocol.NewToolResult(a.Name(), s.tool, !res.IsError, res.ErrorType))
		if res.IsError {
			return fmt.Errorf("%s: %s", s.tool, res.ForLLM)
		}
	}

	if act.Name == ActionWait {
		return sleepCtx(ctx, a.wait)
	}
	return nil
}
