// Package agent implements the two LLM-driven agent loops: CodeAgent solves a
// task by writing and running code, GUIAgent by acting on the screen.
package agent

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/argus/internal/config"
	"github.com/nextlevelbuilder/argus/internal/memory"
	"github.com/nextlevelbuilder/argus/internal/providers"
	"github.com/nextlevelbuilder/argus/internal/tools"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

// Agent is one strategy the orchestrator can run a task with.
// Run returns a human-readable result; a non-nil error means the agent
// could not run at all (LLM unreachable, cancelled).
type Agent interface {
	Name() string
	Run(ctx context.Context, task string) (string, error)
}

// Emitter receives the status stream. *bus.MessageBus satisfies it.
type Emitter interface {
	Emit(msg protocol.Message)
}

// Deps are the collaborators shared by both loops.
type Deps struct {
	Provider providers.Provider
	Registry *tools.Registry
	Emitter  Emitter
	Notes    memory.NotesStore // optional
	Counter  memory.Counter    // optional, defaults to len/4
	Guard    *InputGuard       // optional
}

// LoopConfig bounds one loop.
type LoopConfig struct {
	Model          string
	MaxIterations  int
	MaxTokens      int
	KeepImages     int
	KeepToolGroups int
	Temperature    *float64
}

// Result prefixes shared with the orchestrator's classifier.
const (
	ResultFinished = "Task finished: "
	ResultFailed   = "Task failed: "
)

type nopEmitter struct{}

func (nopEmitter) Emit(protocol.Message) {}

func emitterOrNop(e Emitter) Emitter {
	if e == nil {
		return nopEmitter{}
	}
	return e
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d Deps) newMemory(name, prompt string, cfg LoopConfig) *memory.Manager {
	return memory.NewManager(memory.Options{
		SystemPrompt:   prompt,
		AgentID:        config.NormalizeAgentID(name),
		MaxTokens:      cfg.MaxTokens,
		KeepImages:     cfg.KeepImages,
		KeepToolGroups: cfg.KeepToolGroups,
		Counter:        d.Counter,
		Notes:          d.Notes,
	})
}
