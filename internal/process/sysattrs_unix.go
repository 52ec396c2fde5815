//go:build !windows

package process

import (
	"syscall"
)

// childSysProcAttr places the child in its own process group so Stop can
// signal the whole group (replica plus any descendants it spawns) instead
// of just the immediate child.
func childSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// withUmask sets the process umask for the brief window around fork+exec so
// the spawned child inherits it, then restores the previous value. Go's
// os/exec has no per-child umask knob, and process-wide umask is otherwise
// inherited at fork time; this is the standard workaround.
func withUmask(mask int) (restore func()) {
	old := syscall.Umask(mask)
	return func() { syscall.Umask(old) }
}
