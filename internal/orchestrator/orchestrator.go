// Package orchestrator routes a task to an agent strategy, classifies the
// result, falls back to the other strategy and, when both fail, waits for a
// human decision.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/argus/internal/agent"
	"github.com/nextlevelbuilder/argus/internal/tracing"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

const (
	DefaultMaxRetries        = 2
	DefaultHumanTimeout      = 300 * time.Second
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultFallbackThreshold = 0.8
)

// Agents resolves strategies to agents. *agent.Router satisfies it.
type Agents interface {
	Get(strategy string) (agent.Agent, error)
	Other(strategy string) (string, bool)
}

// Config holds the runtime-adjustable knobs.
type Config struct {
	MaxRetries        int
	HumanTimeout      time.Duration
	PollInterval      time.Duration
	FallbackThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.HumanTimeout <= 0 {
		c.HumanTimeout = DefaultHumanTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FallbackThreshold <= 0 {
		c.FallbackThreshold = DefaultFallbackThreshold
	}
	return c
}

// Task is one unit of work submitted by the client.
type Task struct {
	Text       string
	Force      string // "gui", "code" or "" for automatic selection
	MaxRetries int    // 0 = configured default
}

// Status is the terminal state of a task.
type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusSkipped
	StatusCompletedByHuman
	StatusTimedOut
	StatusCancelled
)

var statusNames = [...]string{
	StatusSucceeded:        "succeeded",
	StatusFailed:           "failed",
	StatusSkipped:          "skipped",
	StatusCompletedByHuman: "completed_by_human",
	StatusTimedOut:         "timed_out",
	StatusCancelled:        "cancelled",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Attempt is one (strategy, task text) run.
type Attempt struct {
	Number     int
	Strategy   string
	Confidence float64
	Fallback   bool
	Task       string
	Result     string
	Err        error
	Success    bool
	Duration   time.Duration
}

// Outcome is the terminal result of Execute.
type Outcome struct {
	Status     Status
	Result     string // the successful agent result
	Attempts   []Attempt
	Errors     []string // "<strategy>Agent: <result or error>" per failed attempt
	MaxRetries int
}

// OK reports whether the task ended without failure.
func (o Outcome) OK() bool {
	switch o.Status {
	case StatusSucceeded, StatusSkipped, StatusCompletedByHuman:
		return true
	}
	return false
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusSucceeded:
		return o.Result
	case StatusSkipped:
		return "Task skipped (human intervention)"
	case StatusCompletedByHuman:
		return "Task completed manually by a human"
	case StatusTimedOut:
		return "Task failed: human intervention timeout. Errors: " + strings.Join(o.Errors, "; ")
	case StatusCancelled:
		return "Task failed: cancelled by user"
	case StatusFailed:
		return fmt.Sprintf("Task failed: max retries (%d) reached.\nErrors:\n%s", o.MaxRetries, strings.Join(o.Errors, "\n"))
	}
	return o.Status.String()
}

// Orchestrator runs tasks through the retry/fallback state machine.
type Orchestrator struct {
	agents    Agents
	analyzer  *Analyzer
	emitter   agent.Emitter
	responses <-chan *protocol.HumanResponse

	mu         sync.RWMutex
	cfg        Config
	classifier *Classifier
}

// New builds an orchestrator. responses delivers human answers (usually
// bus.Dispatcher.Responses()); nil means nobody can answer and every
// intervention times out.
func New(agents Agents, analyzer *Analyzer, classifier *Classifier, emitter agent.Emitter, responses <-chan *protocol.HumanResponse, cfg Config) *Orchestrator {
	if classifier == nil {
		classifier, _ = NewClassifier(nil, nil, "")
	}
	return &Orchestrator{
		agents:     agents,
		analyzer:   analyzer,
		classifier: classifier,
		emitter:    emitter,
		responses:  responses,
		cfg:        cfg.withDefaults(),
	}
}

// SetConfig swaps the knobs; running tasks pick them up at their next step.
func (o *Orchestrator) SetConfig(cfg Config) {
	o.mu.Lock()
	o.cfg = cfg.withDefaults()
	o.mu.Unlock()
}

// SetClassifier swaps the success classifier.
func (o *Orchestrator) SetClassifier(c *Classifier) {
	if c == nil {
		return
	}
	o.mu.Lock()
	o.classifier = c
	o.mu.Unlock()
}

func (o *Orchestrator) settings() (Config, *Classifier) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg, o.classifier
}

func (o *Orchestrator) emit(msg protocol.Message) {
	if o.emitter != nil {
		o.emitter.Emit(msg)
	}
}

// Publisher is implemented by emitters that can deliver a message without
// dropping it, blocking while the client is behind.
type Publisher interface {
	PublishOutbound(ctx context.Context, msg protocol.Message) error
}

// publish delivers a control message the client must see. Emitters without
// a blocking path fall back to Emit.
func (o *Orchestrator) publish(ctx context.Context, msg protocol.Message) error {
	if p, ok := o.emitter.(Publisher); ok {
		return p.PublishOutbound(ctx, msg)
	}
	o.emit(msg)
	return nil
}

func (o *Orchestrator) say(format string, a ...any) {
	o.emit(protocol.NewText(protocol.SenderOrchestrator, fmt.Sprintf(format, a...)))
}

// Execute runs task to a terminal state.
func (o *Orchestrator) Execute(ctx context.Context, task Task) Outcome {
	cfg, _ := o.settings()
	maxRetries := task.MaxRetries
	if maxRetries <= 0 {
		maxRetries = cfg.MaxRetries
	}

	ctx, span := tracing.Start(ctx, "task", attribute.Int("argus.max_retries", maxRetries))
	out := o.execute(ctx, task, maxRetries)
	span.SetAttributes(attribute.String("argus.status", out.Status.String()), attribute.Int("argus.attempts", len(out.Attempts)))
	var spanErr error
	if !out.OK() {
		spanErr = errors.New(out.Status.String())
	}
	tracing.End(span, spanErr)

	if out.OK() {
		o.emit(protocol.NewStatus(protocol.SenderOrchestrator, protocol.EventTaskCompleted))
	} else {
		o.emit(protocol.NewStatus(protocol.SenderOrchestrator, protocol.EventTaskFailed))
	}
	slog.Info("orchestrator: task finished", "status", out.Status, "attempts", len(out.Attempts))
	return out
}

func (o *Orchestrator) execute(ctx context.Context, task Task, maxRetries int) Outcome {
	out := Outcome{MaxRetries: maxRetries}
	current, force := task.Text, task.Force

	for n := 1; n <= maxRetries; n++ {
		if ctx.Err() != nil {
			out.Status = StatusCancelled
			return out
		}
		cfg, _ := o.settings()

		d := Decision{Strategy: force, Confidence: 1.0, Source: "forced"}
		if force == "" {
			d = o.analyzer.Analyze(ctx, current)
		}
		slog.Info("orchestrator: attempt", "attempt", n, "strategy", d.Strategy, "confidence", d.Confidence, "source", d.Source)
		o.emit(protocol.NewStatus(protocol.SenderOrchestrator, protocol.EventAttemptStarted))
		o.say("[router] attempt #%d: using %sAgent (confidence: %.2f)", n, strings.ToUpper(d.Strategy), d.Confidence)

		at := o.attempt(ctx, n, d, current, false)
		out.Attempts = append(out.Attempts, at)
		if ctx.Err() != nil {
			out.Status = StatusCancelled
			return out
		}
		if at.Success {
			out.Status, out.Result = StatusSucceeded, at.Result
			return out
		}
		out.Errors = append(out.Errors, failureText(at))

		if force == "" && d.Confidence < cfg.FallbackThreshold {
			if other, ok := o.agents.Other(d.Strategy); ok {
				slog.Info("orchestrator: switching strategy", "from", d.Strategy, "to", other)
				o.emit(protocol.NewStatus(protocol.SenderOrchestrator, protocol.EventStrategySwitched))
				o.say("[router] %sAgent failed, switching to %sAgent", strings.ToUpper(d.Strategy), strings.ToUpper(other))

				fb := o.attempt(ctx, n, Decision{Strategy: other, Confidence: d.Confidence, Source: "fallback"}, current, true)
				out.Attempts = append(out.Attempts, fb)
				if ctx.Err() != nil {
					out.Status = StatusCancelled
					return out
				}
				if fb.Success {
					out.Status, out.Result = StatusSucceeded, fb.Result
					return out
				}
				out.Errors = append(out.Errors, failureText(fb))
			}
		}

		if n >= maxRetries {
			break
		}

		resp, err := o.waitForHuman(ctx, &protocol.InterventionRequest{
			OriginalTask: task.Text,
			CurrentTask:  current,
			Errors:       append([]string(nil), out.Errors...),
			RetryCount:   n,
			MaxRetries:   maxRetries,
		})
		switch {
		case errors.Is(err, ErrHumanTimeout):
			out.Status = StatusTimedOut
			return out
		case err != nil:
			out.Status = StatusCancelled
			return out
		}

		switch resp.Action {
		case protocol.ActionModifyTask:
			if resp.ModifiedTask != "" {
				current = resp.ModifiedTask
			} else {
				current = task.Text
			}
			o.say("[human] task modified, continuing")
		case protocol.ActionRetry:
			force = normalizeStrategy(resp.ForceAgent)
			o.say("[human] retrying task")
		case protocol.ActionSkip:
			out.Status = StatusSkipped
			return out
		case protocol.ActionCompleted:
			out.Status = StatusCompletedByHuman
			return out
		case protocol.ActionProvideContext:
			current = current + "\n\nAdditional context: " + resp.Context
			o.say("[human] context added, continuing")
		default:
			slog.Warn("orchestrator: unknown human action, retrying", "action", resp.Action)
		}
	}

	out.Status = StatusFailed
	return out
}

// attempt runs one agent and classifies its result. Agent errors and panics
// become failed attempts.
func (o *Orchestrator) attempt(ctx context.Context, n int, d Decision, text string, fallback bool) (at Attempt) {
	at = Attempt{Number: n, Strategy: d.Strategy, Confidence: d.Confidence, Fallback: fallback, Task: text}
	start := time.Now()

	ctx, span := tracing.Start(ctx, "attempt",
		attribute.Int(tracing.AttrAttempt, n),
		attribute.String(tracing.AttrStrategy, d.Strategy),
		attribute.Float64("argus.confidence", d.Confidence),
		attribute.Bool("argus.fallback", fallback),
	)
	defer func() {
		at.Duration = time.Since(start)
		var spanErr error
		if !at.Success {
			spanErr = errors.New(failureText(at))
		}
		span.SetAttributes(tracing.Preview(at.Result))
		tracing.End(span, spanErr)
	}()

	ag, err := o.agents.Get(d.Strategy)
	if err != nil {
		at.Err = err
		return at
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("orchestrator: agent panicked", "strategy", d.Strategy, "panic", r)
				at.Err = fmt.Errorf("agent panic: %v", r)
			}
		}()
		at.Result, at.Err = ag.Run(ctx, text)
	}()

	_, classifier := o.settings()
	at.Success = at.Err == nil && classifier.Success(at.Result)
	if at.Success {
		slog.Info("orchestrator: attempt succeeded", "strategy", d.Strategy, "attempt", n)
	} else {
		slog.Warn("orchestrator: attempt failed", "strategy", d.Strategy, "attempt", n, "result", at.Result, "error", at.Err)
	}
	return at
}

func failureText(at Attempt) string {
	if at.Err != nil {
		return fmt.Sprintf("%sAgent: %v", at.Strategy, at.Err)
	}
	return fmt.Sprintf("%sAgent: %s", at.Strategy, at.Result)
}

func normalizeStrategy(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case agent.StrategyGUI:
		return agent.StrategyGUI
	case agent.StrategyCode:
		return agent.StrategyCode
	}
	return ""
}
