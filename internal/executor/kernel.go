package executor

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

//go:embed kernel_driver.py
var kernelDriver string

const kernelStartTimeout = 15 * time.Second

var errKernelExited = errors.New("kernel exited unexpectedly")

// kernelEvent is one line of the driver's event stream.
type kernelEvent struct {
	ParentID       string            `json:"parent_id"`
	Type           string            `json:"type"`
	Name           string            `json:"name,omitempty"`
	Text           string            `json:"text,omitempty"`
	ExecutionState string            `json:"execution_state,omitempty"`
	EName          string            `json:"ename,omitempty"`
	EValue         string            `json:"evalue,omitempty"`
	Traceback      []string          `json:"traceback,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
}

type kernelRequest struct {
	MsgID string `json:"msg_id"`
	Code  string `json:"code"`
}

// kernelSession keeps one python process alive across requests so state
// (variables, imports) persists. The process restarts after it dies.
type kernelSession struct {
	argv  []string
	grace time.Duration

	mu      sync.Mutex
	proc    *os.Process
	stdin   io.WriteCloser
	events  chan kernelEvent
	exited  chan struct{}
	current string
	idle    chan struct{}
}

func newKernelSession(argv []string, grace time.Duration) *kernelSession {
	return &kernelSession{argv: argv, grace: grace}
}

// start launches the kernel and waits for its ready event. Caller holds no lock.
func (k *kernelSession) start() error {
	args := append(append([]string{}, k.argv[1:]...), "-c", kernelDriver)
	cmd := exec.Command(k.argv[0], args...)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "PYTHONIOENCODING=utf-8")
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	events := make(chan kernelEvent, outputBuffer)
	exited := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error { return k.readEvents(stdout, events) })
	g.Go(func() error { return k.readStderr(stderr, events) })
	go func() {
		if err := g.Wait(); err != nil {
			slog.Warn("executor: kernel stream error", "error", err)
		}
		err := cmd.Wait()
		slog.Info("executor: kernel exited", "pid", cmd.Process.Pid, "error", err)
		close(events)
		close(exited)
	}()

	select {
	case ev, ok := <-events:
		if !ok {
			return errKernelExited
		}
		if ev.Type != "ready" {
			killGroup(cmd.Process)
			return fmt.Errorf("kernel handshake: unexpected %q event", ev.Type)
		}
	case <-time.After(kernelStartTimeout):
		killGroup(cmd.Process)
		return fmt.Errorf("kernel did not become ready within %s", kernelStartTimeout)
	}

	k.mu.Lock()
	k.proc = cmd.Process
	k.stdin = stdin
	k.events = events
	k.exited = exited
	k.mu.Unlock()

	slog.Info("executor: kernel started", "pid", cmd.Process.Pid)
	return nil
}

func (k *kernelSession) readEvents(r io.Reader, events chan<- kernelEvent) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 32*maxLineBytes)
	for sc.Scan() {
		var ev kernelEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			slog.Debug("executor: malformed kernel event", "error", err)
			continue
		}
		events <- ev
	}
	return sc.Err()
}

// readStderr turns process-level stderr output (subprocesses, C extensions)
// into stream events for whichever request is current.
func (k *kernelSession) readStderr(r io.Reader, events chan<- kernelEvent) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		k.mu.Lock()
		parent := k.current
		k.mu.Unlock()
		if parent == "" {
			slog.Debug("executor: kernel stderr", "line", sc.Text())
			continue
		}
		events <- kernelEvent{ParentID: parent, Type: "stream", Name: "stderr", Text: sc.Text()}
	}
	return sc.Err()
}

func (k *kernelSession) reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.proc = nil
	k.stdin = nil
	k.events = nil
	k.exited = nil
	k.current = ""
	k.idle = nil
}

// alive reports whether the kernel process is started and has not exited.
// Caller holds k.mu.
func (k *kernelSession) alive() bool {
	if k.proc == nil {
		return false
	}
	select {
	case <-k.exited:
		return false
	default:
		return true
	}
}

func (k *kernelSession) Execute(ctx context.Context, code string, out chan<- Item) error {
	k.mu.Lock()
	running := k.alive()
	dead := k.proc != nil && !running
	k.mu.Unlock()
	if dead {
		slog.Info("executor: kernel died while idle, restarting")
		k.reset()
	}
	if !running {
		if err := k.start(); err != nil {
			return &spawnError{err}
		}
	}

	msgID := uuid.NewString()
	idle := make(chan struct{})

	k.mu.Lock()
	if k.current != "" {
		k.mu.Unlock()
		return ErrBusy
	}
	k.current = msgID
	k.idle = idle
	events, stdin := k.events, k.stdin
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		if k.current == msgID {
			k.current = ""
			k.idle = nil
		}
		k.mu.Unlock()
		close(idle)
	}()

	req, _ := json.Marshal(kernelRequest{MsgID: msgID, Code: code})
	if _, err := stdin.Write(append(req, '\n')); err != nil {
		k.reset()
		return fmt.Errorf("send request: %w", err)
	}

	done := ctx.Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				k.reset()
				return errKernelExited
			}
			if ev.ParentID != msgID {
				continue
			}
			if finished := k.emit(ev, out); finished {
				out <- statusItem(StatusIdle)
				return nil
			}
		case <-done:
			done = nil
			go k.Interrupt(k.grace)
		}
	}
}

// emit converts one event into output items. Returns true at the idle status.
func (k *kernelSession) emit(ev kernelEvent, out chan<- Item) bool {
	switch ev.Type {
	case "stream":
		out <- textItem(ev.Text)
	case "error":
		tb := strings.TrimRight(strings.Join(ev.Traceback, ""), "\n")
		if tb == "" {
			tb = ev.EName + ": " + ev.EValue
		}
		out <- textItem(StripANSI(tb))
	case "display", "result":
		if it, ok := richest(ev.Data); ok {
			out <- it
		}
	case "status":
		return ev.ExecutionState == "idle"
	}
	return false
}

// richest picks the best representation: image > html > plain text.
func richest(data map[string]string) (Item, bool) {
	for _, mime := range []string{"image/png", "image/jpeg", "image/svg+xml"} {
		if v, ok := data[mime]; ok {
			return Item{Kind: ItemImage, Content: v, MIME: mime}, true
		}
	}
	if v, ok := data["text/html"]; ok {
		return Item{Kind: ItemHTML, Content: v, MIME: "text/html"}, true
	}
	if v, ok := data["text/plain"]; ok {
		return textItem(v), true
	}
	return Item{}, false
}

// Interrupt sends SIGINT to the kernel; if the request is not idle within
// grace the kernel is killed and restarts on the next request.
func (k *kernelSession) Interrupt(grace time.Duration) bool {
	k.mu.Lock()
	proc, idle, exited := k.proc, k.idle, k.exited
	k.mu.Unlock()
	if proc == nil || idle == nil {
		return false
	}

	if err := interruptProcess(proc); err != nil {
		slog.Debug("executor: kernel SIGINT failed", "error", err)
	}
	select {
	case <-idle:
		return true
	case <-exited:
		return true
	case <-time.After(grace):
	}

	slog.Warn("executor: kernel ignored interrupt, killing", "pid", proc.Pid, "grace", grace)
	if err := killGroup(proc); err != nil {
		slog.Warn("executor: kernel kill failed", "error", err)
	}
	select {
	case <-exited:
	case <-time.After(killWait):
	}
	return true
}

func (k *kernelSession) Close() error {
	k.mu.Lock()
	proc, stdin, exited := k.proc, k.stdin, k.exited
	k.mu.Unlock()
	if proc == nil {
		return nil
	}
	stdin.Close()
	stopProcess(proc, exited, k.grace, terminateGroup)
	k.reset()
	return nil
}
