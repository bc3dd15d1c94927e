package tools

import "context"

type contextKey string

const (
	agentNameKey contextKey = "argus_agent_name"
	memoryKey    contextKey = "argus_memory"
)

// Memory is the per-run memory a tool call can write to.
type Memory interface {
	Remember(topic, text string) error
	Forget(topic string) error
	RecordToolUse(tool string, ok bool)
}

// WithAgentName returns a new context naming the calling agent.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameKey, name)
}

// AgentNameFromContext extracts the calling agent name. Returns "" if not set.
func AgentNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(agentNameKey).(string); ok {
		return v
	}
	return ""
}

// WithMemory returns a new context carrying the run's memory.
func WithMemory(ctx context.Context, m Memory) context.Context {
	return context.WithValue(ctx, memoryKey, m)
}

// MemoryFromContext extracts the run's memory. Returns nil if not set.
func MemoryFromContext(ctx context.Context) Memory {
	if v, ok := ctx.Value(memoryKey).(Memory); ok {
		return v
	}
	return nil
}
