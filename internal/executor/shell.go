package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxLineBytes bounds a single scanned output line.
const maxLineBytes = 1024 * 1024

// shellSession runs each request in a fresh shell process that reads the
// code from stdin. Output is forwarded line by line as it is produced.
type shellSession struct {
	argv  []string
	grace time.Duration

	mu     sync.Mutex
	proc   *os.Process
	exited chan struct{}
}

func newShellSession(argv []string, grace time.Duration) *shellSession {
	return &shellSession{argv: argv, grace: grace}
}

func (s *shellSession) Execute(ctx context.Context, code string, out chan<- Item) error {
	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	cmd.Stdin = strings.NewReader(code + "\n")
	cmd.Env = os.Environ()
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &spawnError{err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &spawnError{err}
	}
	if err := cmd.Start(); err != nil {
		return &spawnError{err}
	}

	exited := make(chan struct{})
	s.mu.Lock()
	s.proc = cmd.Process
	s.exited = exited
	s.mu.Unlock()

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Interrupt(s.grace)
		case <-stopWatch:
		}
	}()

	var g errgroup.Group
	g.Go(func() error { return forwardLines(stdout, out) })
	g.Go(func() error { return forwardLines(stderr, out) })
	readErr := g.Wait()
	waitErr := cmd.Wait()

	close(exited)
	close(stopWatch)
	s.mu.Lock()
	s.proc = nil
	s.exited = nil
	s.mu.Unlock()

	if readErr != nil {
		out <- textItem("output read error: " + readErr.Error())
	}

	exit, err := exitCode(waitErr)
	if err != nil {
		return err
	}
	if exit == 0 {
		out <- textItem(fmt.Sprintf("Command finished, exit code: %d", exit))
	} else {
		out <- textItem(fmt.Sprintf("Command failed, exit code: %d", exit))
	}
	return nil
}

// forwardLines sends each line of r to out as a text item.
func forwardLines(r io.Reader, out chan<- Item) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		out <- textItem(sc.Text())
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait: %w", err)
}

// Interrupt terminates the process group, then kills it after grace.
func (s *shellSession) Interrupt(grace time.Duration) bool {
	s.mu.Lock()
	proc, exited := s.proc, s.exited
	s.mu.Unlock()
	if proc == nil {
		return false
	}
	stopProcess(proc, exited, grace, terminateGroup)
	return true
}

func (s *shellSession) Close() error {
	s.Interrupt(s.grace)
	return nil
}
