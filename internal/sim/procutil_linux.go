//go:build linux

package sim

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func setSysProcAttr(attrs *syscall.SysProcAttr) {
	attrs.Setpgid = true
	// The child dies with the host even if the host is SIGKILLed.
	attrs.Pdeathsig = unix.SIGKILL
}
