package executor

import (
	"log/slog"
	"os"
	"time"
)

// killWait bounds how long we wait for the OS to reap a killed process.
const killWait = 2 * time.Second

// stopProcess runs graceful, waits up to grace for exited to close, then
// kills the process group. Reports whether the forced kill was needed.
func stopProcess(p *os.Process, exited <-chan struct{}, grace time.Duration, graceful func(*os.Process) error) bool {
	if err := graceful(p); err != nil {
		slog.Debug("executor: graceful stop failed", "pid", p.Pid, "error", err)
	}

	select {
	case <-exited:
		return false
	case <-time.After(grace):
	}

	slog.Warn("executor: process ignored graceful stop, killing", "pid", p.Pid, "grace", grace)
	if err := killGroup(p); err != nil {
		slog.Warn("executor: kill failed", "pid", p.Pid, "error", err)
	}
	select {
	case <-exited:
	case <-time.After(killWait):
		slog.Error("executor: process still alive after kill", "pid", p.Pid)
	}
	return true
}
