// Package executor runs code strings in named languages and streams their
// output as typed items. Shell languages run one process per request; python
// runs in a persistent kernel; javascript and starlark run in-process.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

var (
	// ErrUnavailable is reported when a language is unknown or its runtime is not installed.
	ErrUnavailable = errors.New("language not available")
	// ErrBusy is reported when a language already has a request in flight.
	ErrBusy = errors.New("session busy")
)

const (
	defaultGrace  = 500 * time.Millisecond
	outputBuffer  = 256
	defaultKernel = "python3 -u"
)

// session is one interpreter runtime. Execute blocks until the request is
// complete and pushes its output to out; it must return when ctx is done.
type session interface {
	Execute(ctx context.Context, code string, out chan<- Item) error
	Interrupt(grace time.Duration) bool
	Close() error
}

// spawnError marks a failure to start the runtime; it is reported as a single error item.
type spawnError struct{ err error }

func (e *spawnError) Error() string { return "start runtime: " + e.err.Error() }
func (e *spawnError) Unwrap() error { return e.err }

// Options configures an Engine.
type Options struct {
	Languages     []string      // enabled languages; empty enables every available runtime
	GracePeriod   time.Duration // graceful stop window before a forced kill
	KernelCommand string        // python kernel interpreter command, default "python3 -u"
}

// sessionState tracks one language's Interpreter Session.
type sessionState struct {
	lang      string
	sess      session
	running   bool
	cancelled bool
	started   time.Time
	elapsed   time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// Engine owns one session per language. Safe for concurrent use.
type Engine struct {
	grace     time.Duration
	factories map[string]func() session

	mu     sync.Mutex
	states map[string]*sessionState
}

var aliases = map[string]string{
	"sh":      "bash",
	"shell":   "bash",
	"pwsh":    "powershell",
	"ps1":     "powershell",
	"py":      "python",
	"python3": "python",
	"js":      "javascript",
	"star":    "starlark",
}

// Canonical maps a language name or alias to its canonical name.
func Canonical(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if c, ok := aliases[l]; ok {
		return c
	}
	return l
}

// Aliases returns the alternative names accepted for a canonical language, sorted.
func Aliases(language string) []string {
	var out []string
	for alias, c := range aliases {
		if c == language {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// NewEngine detects the installed runtimes once and returns an engine for the
// enabled, available ones.
func NewEngine(opts Options) *Engine {
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = defaultGrace
	}
	e := &Engine{
		grace:     grace,
		factories: make(map[string]func() session),
		states:    make(map[string]*sessionState),
	}

	enabled := func(lang string) bool {
		if len(opts.Languages) == 0 {
			return true
		}
		for _, l := range opts.Languages {
			if Canonical(l) == lang {
				return true
			}
		}
		return false
	}

	if path, err := exec.LookPath("bash"); err == nil && enabled("bash") {
		e.factories["bash"] = func() session { return newShellSession([]string{path, "-s"}, grace) }
	}
	for _, name := range []string{"pwsh", "powershell"} {
		if path, err := exec.LookPath(name); err == nil && enabled("powershell") {
			e.factories["powershell"] = func() session {
				return newShellSession([]string{path, "-NoProfile", "-NonInteractive", "-Command", "-"}, grace)
			}
			break
		}
	}
	kernelCmd := opts.KernelCommand
	if kernelCmd == "" {
		kernelCmd = defaultKernel
	}
	if argv, err := shellwords.Parse(kernelCmd); err != nil || len(argv) == 0 {
		slog.Warn("executor: invalid kernel command", "command", kernelCmd, "error", err)
	} else if path, err := exec.LookPath(argv[0]); err == nil && enabled("python") {
		argv[0] = path
		e.factories["python"] = func() session { return newKernelSession(argv, grace) }
	}
	if enabled("javascript") {
		e.factories["javascript"] = func() session { return newJSSession() }
	}
	if enabled("starlark") {
		e.factories["starlark"] = func() session { return newStarlarkSession() }
	}

	slog.Info("executor: runtimes detected", "languages", e.Languages())
	return e
}

// Languages returns the available languages, sorted.
func (e *Engine) Languages() []string {
	names := make([]string, 0, len(e.factories))
	for name := range e.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available reports whether language (or an alias) can be run.
func (e *Engine) Available(language string) bool {
	_, ok := e.factories[Canonical(language)]
	return ok
}

// Run starts code in language and returns immediately. The returned channel
// delivers the output items in order and is closed when the run is over.
// Callers must drain it.
func (e *Engine) Run(ctx context.Context, language, code string) <-chan Item {
	lang := Canonical(language)
	factory, ok := e.factories[lang]
	if !ok {
		slog.Warn("executor: run rejected", "language", language, "reason", "unavailable")
		return single(errorItem(fmt.Sprintf("%v: %q (available: %s)", ErrUnavailable, language, strings.Join(e.Languages(), ", "))))
	}

	e.mu.Lock()
	st := e.states[lang]
	if st == nil {
		st = &sessionState{lang: lang, sess: factory()}
		e.states[lang] = st
	}
	if st.running {
		e.mu.Unlock()
		slog.Warn("executor: run rejected", "language", lang, "reason", "busy")
		return single(errorItem(fmt.Sprintf("%v: %s is still executing a previous request", ErrBusy, lang)))
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	st.running = true
	st.cancelled = false
	st.started = time.Now()
	st.elapsed = 0
	st.cancel = cancel
	st.done = done
	sess := st.sess
	e.mu.Unlock()

	out := make(chan Item, outputBuffer)
	go func() {
		defer close(out)
		err := sess.Execute(runCtx, code, out)
		cancelled := e.finish(st, done)

		if err == nil {
			return
		}
		var se *spawnError
		switch {
		case errors.As(err, &se):
			slog.Warn("executor: spawn failed", "language", lang, "error", err)
			out <- errorItem(err.Error())
		case cancelled || errors.Is(err, context.Canceled):
			out <- errorItem("execution interrupted")
			out <- statusItem(StatusInterrupted)
		default:
			slog.Warn("executor: run crashed", "language", lang, "error", err)
			out <- errorItem(err.Error())
			out <- statusItem(StatusCrashed)
		}
	}()
	return out
}

// finish marks st as stopped, freezing its elapsed time. Returns whether it was interrupted.
func (e *Engine) finish(st *sessionState, done chan struct{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st.elapsed = time.Since(st.started)
	st.running = false
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	close(done)
	slog.Debug("executor: run finished", "language", st.lang, "elapsed", st.elapsed, "cancelled", st.cancelled)
	return st.cancelled
}

type interruptTarget struct {
	lang   string
	sess   session
	cancel context.CancelFunc
	done   chan struct{}
}

// Interrupt stops every running session: a graceful stop first, then a
// forced kill once the grace period expires. Returns a description of what
// was interrupted.
func (e *Engine) Interrupt() string {
	e.mu.Lock()
	var targets []interruptTarget
	for _, st := range e.states {
		if st.running {
			st.cancelled = true
			targets = append(targets, interruptTarget{lang: st.lang, sess: st.sess, cancel: st.cancel, done: st.done})
		}
	}
	e.mu.Unlock()

	if len(targets) == 0 {
		return "Nothing is running"
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		t.sess.Interrupt(e.grace)
		if t.cancel != nil {
			t.cancel()
		}
		select {
		case <-t.done:
		case <-time.After(e.grace + killWait):
			slog.Warn("executor: session did not settle after interrupt", "language", t.lang)
		}
		names = append(names, t.lang)
	}
	sort.Strings(names)
	slog.Info("executor: interrupted", "languages", names)
	return "Interrupted " + strings.Join(names, ", ")
}

// IsRunning reports whether language has a request in flight. An empty
// language means any.
func (e *Engine) IsRunning(language string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if language == "" {
		for _, st := range e.states {
			if st.running {
				return true
			}
		}
		return false
	}
	st := e.states[Canonical(language)]
	return st != nil && st.running
}

// Elapsed returns how long the current (or, once stopped, the last) run of language took.
func (e *Engine) Elapsed(language string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.states[Canonical(language)]
	if st == nil {
		return 0
	}
	if st.running {
		return time.Since(st.started)
	}
	return st.elapsed
}

// Close interrupts running work and shuts down every session.
func (e *Engine) Close() error {
	e.Interrupt()

	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for lang, st := range e.states {
		if err := st.sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", lang, err))
		}
		delete(e.states, lang)
	}
	return errors.Join(errs...)
}
