package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/argus/internal/memory"
	"github.com/nextlevelbuilder/argus/internal/providers"
	"github.com/nextlevelbuilder/argus/internal/tools"
	"github.com/nextlevelbuilder/argus/internal/tracing"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

const (
	defaultCodeIterations = 30
	defaultCodeToolGroups = 10

	toolsDoneNote   = "工具执行完成。"
	keepGoingNote   = "请继续执行任务或使用工具。"
	blockedToolNote = "[tool output withheld: it contained a possible prompt injection]"
)

// CodeTools are the registry tools offered to the CodeAgent.
var CodeTools = []string{"execute_code", "interrupt_code", "remember", "forget"}

// CodeAgent solves tasks by asking the model for tool calls (mostly
// execute_code) until it prints a loop breaker or runs out of iterations.
type CodeAgent struct {
	deps   Deps
	cfg    LoopConfig
	prompt string
	tools  []string
}

// NewCodeAgent builds a CodeAgent. languages is listed in the system prompt.
func NewCodeAgent(deps Deps, cfg LoopConfig, languages []string) *CodeAgent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultCodeIterations
	}
	if cfg.KeepToolGroups <= 0 {
		cfg.KeepToolGroups = defaultCodeToolGroups
	}
	return &CodeAgent{
		deps:   deps,
		cfg:    cfg,
		prompt: CodePrompt(languages),
		tools:  CodeTools,
	}
}

func (a *CodeAgent) Name() string { return protocol.SenderCodeAgent }

// Run executes one task. Each run starts with fresh short-term memory; notes
// and tool statistics persist through the shared NotesStore.
func (a *CodeAgent) Run(ctx context.Context, task string) (string, error) {
	emit := emitterOrNop(a.deps.Emitter)
	if err := a.deps.Guard.Inspect("task", task); err != nil {
		return "", fmt.Errorf("code agent: %w", err)
	}

	mem := a.deps.newMemory(a.Name(), a.prompt, a.cfg)
	mem.Add(memory.RoleUser, task, nil, false)

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

func (a *CodeAgent) loop(ctx context.Context, mem *memory.Manager, emit Emitter) (string, error) {
	defs := a.deps.Registry.ProviderDefsFor(a.tools)
	model := modelOrDefault(a.cfg, a.deps.Provider)

	for i := 1; i <= a.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return ResultFailed + "user stopped", err
		}
		slog.Debug("code agent: iteration", "iteration", i, "max", a.cfg.MaxIterations, "tokens", mem.Tokens())

		resp, err := chat(ctx, a.deps.Provider, providers.ChatRequest{
			Model:       model,
			Messages:    mem.Context(),
			Tools:       defs,
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ResultFailed + "user stopped", ctx.Err()
			}
			slog.Error("code agent: llm call failed", "iteration", i, "error", err)
			emit.Emit(protocol.NewStatus(a.Name(), protocol.EventLLMError))
			emit.Emit(protocol.NewText(a.Name(), "error: "+err.Error()))
			return "", fmt.Errorf("code agent: llm: %w", err)
		}

		if resp.Content != "" {
			emit.Emit(protocol.NewAIContent(a.Name(), resp.Content))
			if breaker := findBreaker(resp.Content); breaker != "" {
				slog.Info("code agent: loop breaker", "breaker", breaker, "iteration", i)
				mem.Add(memory.RoleAssistant, resp.Content, nil, false)
				return breakerResult(breaker, resp.Content), nil
			}
		}

		if len(resp.ToolCalls) == 0 {
			mem.Add(memory.RoleAssistant, resp.Content, nil, false)
			mem.Add(memory.RoleUser, keepGoingNote+codePromptEnd, nil, false)
			continue
		}

		mem.AddToolCall(resp.ToolCalls, resp.Content)
		emit.Emit(protocol.NewStatus(a.Name(), fmt.Sprintf("%s %d", protocol.EventToolsExecuting, len(resp.ToolCalls))))
		slog.Info("code agent: executing tools", "count", len(resp.ToolCalls), "iteration", i)

		for _, r := range a.deps.Registry.ExecuteToolCalls(ctx, tools.CallsFromProvider(resp.ToolCalls)) {
			content := r.Content()
			if err := a.deps.Guard.Inspect("tool:"+r.Name, r.Output); err != nil {
				content = blockedToolNote
			}
			mem.AddToolResult(r.CallID, r.Name, content)

			if r.Name == "execute_code" && r.Output != "" {
				emit.Emit(protocol.NewText(a.Name(), r.Output))
			}
			if !r.Success {
				emit.Emit(protocol.NewText(a.Name(), "[error] "+r.Error))
			}
			emit.Emit(protocol.NewToolResult(a.Name(), r.Name, r.Success, r.ErrorType))
			slog.Info("code agent: tool result", "tool", r.Name, "success", r.Success, "error_type", r.ErrorType)
		}
		mem.Add(memory.RoleUser, toolsDoneNote+codePromptEnd, nil, false)
	}

	slog.Warn("code agent: max iterations reached", "max", a.cfg.MaxIterations)
	emit.Emit(protocol.NewStatus(a.Name(), protocol.EventMaxIterations))
	return fmt.Sprintf("%smax iterations (%d) reached", ResultFailed, a.cfg.MaxIterations), nil
}

// findBreaker returns the first loop breaker contained in text.
func findBreaker(text string) string {
	for _, b := range []string{BreakerDone, BreakerImpossible, BreakerDoneZH, BreakerImpossibleZH} {
		if strings.Contains(text, b) {
			return b
		}
	}
	return ""
}

func breakerResult(breaker, content string) string {
	switch breaker {
	case BreakerImpossible, BreakerImpossibleZH:
		return ResultFailed + content
	}
	return ResultFinished + content
}
