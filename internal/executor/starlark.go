package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

var starlarkOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// starlarkSession evaluates starlark in-process. Globals defined by one
// request are visible to the next.
type starlarkSession struct {
	mu      sync.Mutex
	globals starlark.StringDict
	thread  *starlark.Thread
}

func newStarlarkSession() *starlarkSession {
	return &starlarkSession{globals: starlark.StringDict{}}
}

func (s *starlarkSession) Execute(ctx context.Context, code string, out chan<- Item) error {
	thread := &starlark.Thread{
		Name: "cell",
		Print: func(_ *starlark.Thread, msg string) {
			for _, line := range strings.Split(msg, "\n") {
				out <- textItem(line)
			}
		},
	}

	s.mu.Lock()
	s.thread = thread
	predeclared := make(starlark.StringDict, len(s.globals))
	for k, v := range s.globals {
		predeclared[k] = v
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.thread = nil
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { thread.Cancel("interrupted") })
	defer stop()

	globals, err := starlark.ExecFileOptions(starlarkOptions, thread, "cell.star", code, predeclared)

	s.mu.Lock()
	for k, v := range globals {
		s.globals[k] = v
	}
	s.mu.Unlock()

	if err != nil {
		msg := err.Error()
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			msg = evalErr.Backtrace()
		}
		if ctx.Err() != nil {
			out <- textItem(msg)
			out <- statusItem(StatusInterrupted)
			return nil
		}
		out <- errorItem(msg)
	}
	out <- statusItem(StatusDone)
	return nil
}

func (s *starlarkSession) Interrupt(time.Duration) bool {
	s.mu.Lock()
	thread := s.thread
	s.mu.Unlock()
	if thread == nil {
		return false
	}
	thread.Cancel("interrupted")
	return true
}

func (s *starlarkSession) Close() error { return nil }
