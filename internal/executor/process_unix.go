//go:build !windows

package executor

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts cmd in its own process group so the whole tree can be signalled.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// interruptProcess delivers SIGINT to the process only.
func interruptProcess(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}

// terminateGroup asks the process group to exit (SIGTERM).
func terminateGroup(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGTERM); err != nil {
		return p.Signal(syscall.SIGTERM)
	}
	return nil
}

// killGroup forcibly kills the process group.
func killGroup(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		return p.Kill()
	}
	return nil
}
