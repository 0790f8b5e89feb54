//go:build unix

// Package process runs engine commands in their own process group.
package process

import (
	"os/exec"
	"syscall"
)

// SetGroup starts cmd in a new process group and makes context cancellation
// kill the whole group, so grandchildren holding the output pipes die too.
func SetGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
