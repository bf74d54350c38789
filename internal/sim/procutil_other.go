//go:build unix && !linux

package sim

import "syscall"

func setSysProcAttr(attrs *syscall.SysProcAttr) {
	attrs.Setpgid = true
}
