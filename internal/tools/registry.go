package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/argus/internal/providers"
	"github.com/nextlevelbuilder/argus/internal/tracing"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

type entry struct {
	tool   Tool
	schema *Schema
}

// Registry manages tool registration and execution. It is built once at
// startup and shared by every agent.
type Registry struct {
	tools       map[string]entry
	mu          sync.RWMutex
	rateLimiter *ToolRateLimiter // nil = no rate limiting
	scrubbing   bool             // scrub credentials from output (default true)
	secrets     []string         // literal values scrubbed from output, guarded by mu
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]entry),
		scrubbing: true,
	}
}

// SetRateLimiter enables per-tool rate limiting.
func (r *Registry) SetRateLimiter(rl *ToolRateLimiter) {
	r.rateLimiter = rl
}

// SetScrubbing enables or disables credential scrubbing on tool output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.scrubbing = enabled
}

// AddSecrets registers literal values (configured API keys) that are always
// scrubbed from tool output. Values shorter than 8 bytes are ignored.
func (r *Registry) AddSecrets(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range values {
		if len(v) >= minSecretLen {
			r.secrets = append(r.secrets, v)
		}
	}
}

// Register adds a tool to the registry. It panics if the tool's parameter
// schema does not compile.
func (r *Registry) Register(tool Tool) {
	schema, err := CompileSchema(tool.Parameters())
	if err != nil {
		panic(fmt.Sprintf("tools: register %s: %v", tool.Name(), err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = entry{tool: tool, schema: schema}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// Unregister removes a tool from the registry by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Execute validates args and runs one tool. It never panics; every failure
// is an error Result with ErrorType set.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return ErrorResult("unknown tool: " + name).WithType(protocol.ErrUnknownTool)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := e.schema.Validate(args); err != nil {
		return ErrorResult(err.Error()).WithType(protocol.ErrInvalidArguments)
	}
	if r.rateLimiter != nil {
		if err := r.rateLimiter.Allow(name); err != nil {
			return ErrorResult(err.Error()).WithType(protocol.ErrRateLimited)
		}
	}

	start := time.Now()
	result := safeExecute(ctx, e.tool, args)
	duration := time.Since(start)

	if result.IsError && result.ErrorType == "" {
		result.ErrorType = protocol.ErrExecution
	}

	if r.scrubbing && result.ForLLM != "" {
		r.mu.RLock()
		secrets := r.secrets
		r.mu.RUnlock()
		result.ForLLM = ScrubCredentials(result.ForLLM, secrets...)
	}

	slog.Debug("tools: executed",
		"tool", name,
		"duration_ms", duration.Milliseconds(),
		"is_error", result.IsError,
		"error_type", result.ErrorType,
	)
	return result
}

func safeExecute(ctx context.Context, tool Tool, args map[string]interface{}) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tools: handler panicked", "tool", tool.Name(), "panic", rec, "stack", string(debug.Stack()))
			result = ErrorResult(fmt.Sprintf("tool %s panicked: %v", tool.Name(), rec)).WithType(protocol.ErrPanic)
		}
	}()
	result = tool.Execute(ctx, args)
	if result == nil {
		result = NewResult("")
	}
	return result
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID        string
	Name      string
	Arguments string // JSON object text
}

// CallsFromProvider converts provider tool calls.
func CallsFromProvider(tcs []providers.ToolCall) []Call {
	calls := make([]Call, len(tcs))
	for i, tc := range tcs {
		calls[i] = Call{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return calls
}

// CallResult is the outcome of one Call, tagged with its call id.
type CallResult struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Image     []byte `json:"-"`
	ImageMIME string `json:"-"`
}

// Content is the text fed back to the model for this result.
func (cr CallResult) Content() string {
	if cr.Success {
		return cr.Output
	}
	b, _ := json.Marshal(struct {
		Success   bool   `json:"success"`
		Error     string `json:"error"`
		ErrorType string `json:"error_type"`
	}{false, cr.Error, cr.ErrorType})
	return string(b)
}

// ExecuteToolCalls runs calls in order and returns one result per call in the
// same order. A failing call never aborts the batch; once ctx is done the
// remaining calls fail without running.
func (r *Registry) ExecuteToolCalls(ctx context.Context, calls []Call) []CallResult {
	results := make([]CallResult, len(calls))
	mem := MemoryFromContext(ctx)

	for i, c := range calls {
		cr := CallResult{CallID: c.ID, Name: c.Name}

		var res *Result
		args := map[string]interface{}{}
		switch {
		case ctx.Err() != nil:
			res = ErrorResult("cancelled: " + ctx.Err().Error()).WithType(protocol.ErrExecution)
		case c.Arguments != "" && json.Unmarshal([]byte(c.Arguments), &args) != nil:
			res = ErrorResult("arguments are not a JSON object").WithType(protocol.ErrInvalidArguments)
		default:
			spanCtx, span := tracing.Start(ctx, "tool_call",
				attribute.String(tracing.AttrSpanType, "tool_call"),
				attribute.String(tracing.AttrToolName, c.Name),
				attribute.String(tracing.AttrToolCallID, c.ID),
			)
			res = r.Execute(spanCtx, c.Name, args)
			var spanErr error
			if res.IsError {
				spanErr = fmt.Errorf("%s: %s", res.ErrorType, res.ForLLM)
			}
			tracing.End(span, spanErr)
		}

		if res.IsError {
			cr.Error, cr.ErrorType = res.ForLLM, res.ErrorType
		} else {
			cr.Success, cr.Output = true, res.ForLLM
		}
		cr.Image, cr.ImageMIME = res.Image, res.ImageMIME
		results[i] = cr

		if mem != nil && res.ErrorType != protocol.ErrUnknownTool {
			mem.RecordToolUse(c.Name, cr.Success)
		}
	}
	return results
}

// ProviderDefs returns tool definitions for LLM provider APIs, sorted by name.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	return r.ProviderDefsFor(nil)
}

// ProviderDefsFor returns definitions for the named tools only (nil = all).
func (r *Registry) ProviderDefsFor(names []string) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allow map[string]bool
	if names != nil {
		allow = make(map[string]bool, len(names))
		for _, n := range names {
			allow[n] = true
		}
	}

	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for name, e := range r.tools {
		if allow != nil && !allow[name] {
			continue
		}
		defs = append(defs, ToProviderDef(e.tool))
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Function.Name < defs[j].Function.Name })
	return defs
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
