package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// jsSession evaluates javascript in an embedded goja runtime. Globals persist
// between requests.
type jsSession struct {
	mu  sync.Mutex
	vm  *goja.Runtime
	out chan<- Item
}

func newJSSession() *jsSession {
	return &jsSession{}
}

func (s *jsSession) runtime() *goja.Runtime {
	if s.vm != nil {
		return s.vm
	}
	vm := goja.New()
	printFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		s.print(strings.Join(parts, " "))
		return goja.Undefined()
	}
	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(name, printFn)
	}
	_ = vm.Set("console", console)
	_ = vm.Set("print", printFn)
	s.vm = vm
	return vm
}

func (s *jsSession) print(text string) {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out == nil {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		out <- textItem(line)
	}
}

func (s *jsSession) Execute(ctx context.Context, code string, out chan<- Item) error {
	s.mu.Lock()
	vm := s.runtime()
	vm.ClearInterrupt()
	s.out = out
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.out = nil
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { vm.Interrupt("interrupted") })
	defer stop()

	v, err := vm.RunString(code)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			out <- textItem("Execution interrupted")
			out <- statusItem(StatusInterrupted)
			return nil
		}
		var exc *goja.Exception
		if errors.As(err, &exc) {
			out <- errorItem(exc.String())
		} else {
			out <- errorItem(err.Error())
		}
		out <- statusItem(StatusDone)
		return nil
	}
	if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		out <- textItem(v.String())
	}
	out <- statusItem(StatusDone)
	return nil
}

func (s *jsSession) Interrupt(time.Duration) bool {
	s.mu.Lock()
	vm, busy := s.vm, s.out != nil
	s.mu.Unlock()
	if vm == nil || !busy {
		return false
	}
	vm.Interrupt("interrupted")
	return true
}

func (s *jsSession) Close() error { return nil }
