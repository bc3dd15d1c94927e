package executor

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Item) []Item {
	t.Helper()
	var items []Item
	timeout := time.After(20 * time.Second)
	for {
		select {
		case it, ok := <-ch:
			if !ok {
				return items
			}
			items = append(items, it)
		case <-timeout:
			t.Fatalf("timed out collecting output, got %d items so far", len(items))
		}
	}
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

func TestCanonical(t *testing.T) {
	cases := map[string]string{"sh": "bash", "PWSH": "powershell", "py": "python", "js": "javascript", "bash": "bash"}
	for in, want := range cases {
		if got := Canonical(in); got != want {
			t.Errorf("Canonical(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAliases(t *testing.T) {
	if got := strings.Join(Aliases("bash"), ","); got != "sh,shell" {
		t.Errorf("expected sh,shell, got %s", got)
	}
	if got := Aliases("cobol"); len(got) != 0 {
		t.Errorf("expected no aliases, got %v", got)
	}
}

func TestRun_UnknownLanguage(t *testing.T) {
	e := NewEngine(Options{})
	items := collect(t, e.Run(context.Background(), "cobol", "DISPLAY 'HI'."))
	if len(items) != 1 {
		t.Fatalf("expected exactly 1 item, got %d", len(items))
	}
	if items[0].Kind != ItemError {
		t.Errorf("expected error item, got %s", items[0].Kind)
	}
	if !strings.Contains(items[0].Content, "not available") {
		t.Errorf("unexpected message: %s", items[0].Content)
	}
}

func TestRun_DisabledLanguageUnavailable(t *testing.T) {
	e := NewEngine(Options{Languages: []string{"starlark"}})
	if e.Available("javascript") {
		t.Error("javascript should be disabled")
	}
	items := collect(t, e.Run(context.Background(), "js", "1"))
	if len(items) != 1 || items[0].Kind != ItemError {
		t.Fatalf("expected single error item, got %+v", items)
	}
}

func TestRun_JavaScript(t *testing.T) {
	e := NewEngine(Options{Languages: []string{"javascript"}})
	items := collect(t, e.Run(context.Background(), "js", `console.log("a"); print("b\nc"); 1 + 2`))
	var texts []string
	for _, it := range items[:len(items)-1] {
		texts = append(texts, it.Content)
	}
	if got := strings.Join(texts, ","); got != "a,b,c,3" {
		t.Errorf("expected a,b,c,3, got %s", got)
	}
	if last := items[len(items)-1]; last.Kind != ItemStatus {
		t.Errorf("expected trailing status, got %s", last.Kind)
	}
}

func TestRun_StarlarkKeepsGlobals(t *testing.T) {
	e := NewEngine(Options{Languages: []string{"starlark"}})
	collect(t, e.Run(context.Background(), "starlark", "x = 41"))
	items := collect(t, e.Run(context.Background(), "starlark", "print(x + 1)"))
	if len(items) != 2 || items[0].Content != "42" {
		t.Fatalf("expected [42, status], got %+v", items)
	}
}

func TestRun_RuntimeErrorsAreErrorItems(t *testing.T) {
	e := NewEngine(Options{Languages: []string{"javascript", "starlark"}})
	tests := []struct {
		lang, code, want string
	}{
		{"javascript", `throw new Error("boom")`, "boom"},
		{"javascript", `let x = ;`, ""},
		{"starlark", `fail("boom")`, "boom"},
		{"starlark", `print(undefined_name)`, "undefined_name"},
	}
	for _, tt := range tests {
		items := collect(t, e.Run(context.Background(), tt.lang, tt.code))
		if len(items) != 2 {
			t.Fatalf("%s %q: expected error + status, got %+v", tt.lang, tt.code, items)
		}
		if items[0].Kind != ItemError {
			t.Errorf("%s %q: expected error item, got %s", tt.lang, tt.code, items[0].Kind)
		}
		if !strings.Contains(items[0].Content, tt.want) {
			t.Errorf("%s %q: expected %q in %q", tt.lang, tt.code, tt.want, items[0].Content)
		}
		if items[1].Kind != ItemStatus || items[1].Content != StatusDone {
			t.Errorf("%s %q: expected done status, got %+v", tt.lang, tt.code, items[1])
		}
	}
}

func TestRun_BusyRejected(t *testing.T) {
	e := NewEngine(Options{Languages: []string{"javascript"}, GracePeriod: 100 * time.Millisecond})
	first := e.Run(context.Background(), "javascript", "while (true) {}")

	deadline := time.Now().Add(2 * time.Second)
	for !e.IsRunning("javascript") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	items := collect(t, e.Run(context.Background(), "javascript", "1"))
	if len(items) != 1 || items[0].Kind != ItemError || !strings.Contains(items[0].Content, "busy") {
		t.Fatalf("expected busy error item, got %+v", items)
	}

	msg := e.Interrupt()
	if !strings.Contains(msg, "javascript") {
		t.Errorf("unexpected interrupt message: %s", msg)
	}
	collect(t, first)
	if e.IsRunning("javascript") {
		t.Error("session should not be running after interrupt")
	}
}

func TestInterrupt_NothingRunning(t *testing.T) {
	e := NewEngine(Options{Languages: []string{"starlark"}})
	if msg := e.Interrupt(); msg != "Nothing is running" {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestElapsed_FreezesAfterStop(t *testing.T) {
	e := NewEngine(Options{Languages: []string{"starlark"}})
	collect(t, e.Run(context.Background(), "starlark", "n = 0\nfor i in range(1000):\n    n += i\n"))
	first := e.Elapsed("starlark")
	time.Sleep(20 * time.Millisecond)
	if second := e.Elapsed("starlark"); second != first {
		t.Errorf("elapsed changed after stop: %v -> %v", first, second)
	}
}

func TestRun_BashStreamsAndReportsExitCode(t *testing.T) {
	requireBinary(t, "bash")
	e := NewEngine(Options{Languages: []string{"bash"}})
	items := collect(t, e.Run(context.Background(), "sh", "echo one\necho two\nexit 3"))
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %+v", items)
	}
	if items[0].Content != "one" || items[1].Content != "two" {
		t.Errorf("unexpected lines: %+v", items[:2])
	}
	if !strings.Contains(items[2].Content, "exit code: 3") {
		t.Errorf("expected exit code item, got %q", items[2].Content)
	}
}

func TestRun_BashInterruptKillsLoop(t *testing.T) {
	requireBinary(t, "bash")
	e := NewEngine(Options{Languages: []string{"bash"}, GracePeriod: 200 * time.Millisecond})
	ch := e.Run(context.Background(), "bash", "trap '' TERM\necho started\nwhile true; do :; done")

	select {
	case it := <-ch:
		if it.Content != "started" {
			t.Fatalf("expected started, got %q", it.Content)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shell did not start")
	}

	start := time.Now()
	e.Interrupt()
	if d := time.Since(start); d > 200*time.Millisecond+killWait+time.Second {
		t.Errorf("interrupt took too long: %v", d)
	}
	collect(t, ch)
	if e.IsRunning("bash") {
		t.Error("bash should not be running")
	}
}

func TestRun_PythonPrintsLinesThenStatus(t *testing.T) {
	requireBinary(t, "python3")
	e := NewEngine(Options{Languages: []string{"python"}})
	defer e.Close()

	items := collect(t, e.Run(context.Background(), "python", "for i in range(4):\n    print('line', i)"))
	if len(items) != 5 {
		t.Fatalf("expected 4 text items + 1 status, got %+v", items)
	}
	for i, it := range items[:4] {
		if it.Kind != ItemText {
			t.Errorf("item %d: expected text, got %s", i, it.Kind)
		}
	}
	if items[4].Kind != ItemStatus {
		t.Errorf("expected final status, got %s", items[4].Kind)
	}
}

func TestRun_PythonStatePersistsAndRichOutput(t *testing.T) {
	requireBinary(t, "python3")
	e := NewEngine(Options{Languages: []string{"python"}})
	defer e.Close()

	collect(t, e.Run(context.Background(), "python", "class T:\n    def _repr_html_(self):\n        return '<b>hi</b>'\nt = T()"))
	items := collect(t, e.Run(context.Background(), "python", "t"))
	if len(items) != 2 || items[0].Kind != ItemHTML || items[0].Content != "<b>hi</b>" {
		t.Fatalf("expected html item then status, got %+v", items)
	}
}

func TestRun_PythonErrorIsPlainText(t *testing.T) {
	requireBinary(t, "python3")
	e := NewEngine(Options{Languages: []string{"python"}})
	defer e.Close()

	items := collect(t, e.Run(context.Background(), "python", "raise ValueError('\\x1b[31mbad\\x1b[0m')"))
	if len(items) != 2 {
		t.Fatalf("expected error text + status, got %+v", items)
	}
	if strings.Contains(items[0].Content, "\x1b[") {
		t.Errorf("ANSI codes not stripped: %q", items[0].Content)
	}
	if !strings.Contains(items[0].Content, "ValueError") {
		t.Errorf("expected traceback, got %q", items[0].Content)
	}
}

func TestInterrupt_PythonInfiniteLoop(t *testing.T) {
	requireBinary(t, "python3")
	grace := 300 * time.Millisecond
	e := NewEngine(Options{Languages: []string{"python"}, GracePeriod: grace})
	defer e.Close()

	for _, code := range []string{
		"print('go')\nwhile True:\n    pass",
		"import signal\nsignal.signal(signal.SIGINT, signal.SIG_IGN)\nprint('go')\nwhile True:\n    pass",
	} {
		ch := e.Run(context.Background(), "python", code)
		select {
		case it := <-ch:
			if it.Content != "go" {
				t.Fatalf("expected go, got %+v", it)
			}
		case <-time.After(15 * time.Second):
			t.Fatal("kernel did not start")
		}

		start := time.Now()
		e.Interrupt()
		if d := time.Since(start); d > grace+killWait+time.Second {
			t.Errorf("interrupt took %v", d)
		}
		collect(t, ch)
		if e.IsRunning("python") {
			t.Error("python still running after interrupt")
		}
	}

	items := collect(t, e.Run(context.Background(), "python", "print('back')"))
	if len(items) == 0 || items[0].Content != "back" {
		t.Errorf("kernel should be usable after forced kill, got %+v", items)
	}
}

func TestRun_PythonRestartsAfterIdleDeath(t *testing.T) {
	requireBinary(t, "python3")
	e := NewEngine(Options{Languages: []string{"python"}})
	defer e.Close()

	collect(t, e.Run(context.Background(), "python", "import os, threading\nthreading.Timer(0.2, lambda: os._exit(1)).start()"))
	time.Sleep(800 * time.Millisecond)

	items := collect(t, e.Run(context.Background(), "python", "print('after')"))
	if len(items) != 2 || items[0].Kind != ItemText || items[0].Content != "after" {
		t.Fatalf("expected the kernel restarted transparently, got %+v", items)
	}
	if items[1].Kind != ItemStatus || items[1].Content != StatusIdle {
		t.Errorf("expected idle status, got %+v", items[1])
	}
}
