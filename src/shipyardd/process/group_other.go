//go:build !unix

// Package process runs engine commands in their own process group.
package process

import "os/exec"

// SetGroup kills only the direct child on cancellation
func SetGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
}
