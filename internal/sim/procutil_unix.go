//go:build unix

package sim

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// killProcessGroup kills the child and anything it spawned. The child was
// started as the leader of its own group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if err == unix.ESRCH {
		return nil
	}
	if err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
