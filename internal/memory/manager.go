package memory

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/argus/internal/providers"
)

const (
	DefaultMaxTokens      = 8000
	DefaultKeepImages     = 2
	DefaultKeepToolGroups = 5
	topToolsInContext     = 5
)

// Options configures a Manager.
type Options struct {
	SystemPrompt   string
	AgentID        string
	MaxTokens      int        // token budget for the history (default 8000)
	KeepImages     int        // K: image payloads kept; negative disables visual forgetting
	KeepToolGroups int        // F: newest tool-call groups kept pinned (default 5)
	Counter        Counter    // nil = ApproxCounter
	Notes          NotesStore // nil = no long-term memory
}

// Manager owns one agent's history for one task. Every append is followed
// by visual forgetting, tool-group trimming and token-budget eviction.
type Manager struct {
	mu      sync.Mutex
	opts    Options
	history []*Message
	tokens  int // running sum of history costs
}

func NewManager(opts Options) *Manager {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.KeepToolGroups <= 0 {
		opts.KeepToolGroups = DefaultKeepToolGroups
	}
	if opts.Counter == nil {
		opts.Counter = ApproxCounter{}
	}
	return &Manager{opts: opts}
}

// SetSystemPrompt replaces the system prompt.
func (m *Manager) SetSystemPrompt(prompt string) {
	m.mu.Lock()
	m.opts.SystemPrompt = prompt
	m.mu.Unlock()
}

// Add appends a plain message. image may be nil.
func (m *Manager) Add(role, text string, image []byte, pinned bool) {
	m.append(&Message{
		Role:      role,
		Text:      text,
		Image:     image,
		ImageMIME: detectImageMIME(image),
		Pinned:    pinned,
	})
}

// AddToolCall appends an assistant message carrying tool-call descriptors.
// Tool-call groups start pinned; trimming unpins the old ones.
func (m *Manager) AddToolCall(calls []providers.ToolCall, text string) {
	m.append(&Message{
		Role:      RoleAssistant,
		Text:      text,
		ToolCalls: calls,
		Pinned:    true,
	})
}

// AddToolResult appends the result of the tool call callID.
func (m *Manager) AddToolResult(callID, toolName, text string) {
	m.append(&Message{
		Role:       RoleTool,
		Text:       text,
		ToolCallID: callID,
		ToolName:   toolName,
		Pinned:     true,
	})
}

func (m *Manager) append(msg *Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg.CreatedAt = time.Now()
	msg.cost = msg.estimate(m.opts.Counter)
	m.history = append(m.history, msg)
	m.tokens += msg.cost
	m.prune()
}

// Context assembles the system prompt, long-term notes and tool statistics,
// followed by the pruned history in wire shape. It does not mutate state.
func (m *Manager) Context() []providers.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]providers.Message, 0, len(m.history)+1)
	if sys := m.systemText(); sys != "" {
		out = append(out, providers.Message{Role: RoleSystem, Content: sys})
	}
	for _, msg := range m.history {
		out = append(out, msg.wire())
	}
	return out
}

func (m *Manager) systemText() string {
	var sb strings.Builder
	sb.WriteString(m.opts.SystemPrompt)

	if m.opts.Notes == nil {
		return sb.String()
	}

	notes, err := m.opts.Notes.Notes(m.opts.AgentID)
	if err != nil {
		slog.Warn("memory: load notes failed", "agent", m.opts.AgentID, "error", err)
	}
	if len(notes) > 0 {
		sb.WriteString("\n\n## Long-term notes")
		for _, n := range notes {
			fmt.Fprintf(&sb, "\n- %s: %s", n.Topic, n.Text)
		}
	}

	stats, err := m.opts.Notes.TopTools(m.opts.AgentID, topToolsInContext)
	if err != nil {
		slog.Warn("memory: load tool stats failed", "agent", m.opts.AgentID, "error", err)
	}
	if len(stats) > 0 {
		sb.WriteString("\n\n## Frequently used tools")
		for _, st := range stats {
			fmt.Fprintf(&sb, "\n- %s: %d calls", st.Tool, st.Calls)
			if st.Failures > 0 {
				fmt.Fprintf(&sb, " (%d failed)", st.Failures)
			}
		}
	}
	return strings.TrimLeft(sb.String(), "\n")
}

// Messages returns a copy of the retained history.
func (m *Manager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.history))
	for i, msg := range m.history {
		out[i] = *msg
	}
	return out
}

// Tokens returns the estimated cost of the retained history.
func (m *Manager) Tokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// Reset clears the short-term history. Notes and statistics are kept.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.history = nil
	m.tokens = 0
	m.mu.Unlock()
}

// Remember stores a long-term note for this agent.
func (m *Manager) Remember(topic, text string) error {
	if m.opts.Notes == nil {
		return fmt.Errorf("memory: no notes store configured")
	}
	return m.opts.Notes.PutNote(m.opts.AgentID, topic, text)
}

// Forget removes a long-term note.
func (m *Manager) Forget(topic string) error {
	if m.opts.Notes == nil {
		return nil
	}
	return m.opts.Notes.DeleteNote(m.opts.AgentID, topic)
}

// RecordToolUse counts one tool invocation.
func (m *Manager) RecordToolUse(tool string, ok bool) {
	if m.opts.Notes == nil {
		return
	}
	if err := m.opts.Notes.RecordToolUse(m.opts.AgentID, tool, ok); err != nil {
		slog.Warn("memory: record tool use failed", "tool", tool, "error", err)
	}
}
