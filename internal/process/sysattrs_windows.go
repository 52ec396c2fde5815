//go:build windows

package process

import (
	"syscall"
)

// childSysProcAttr creates a new process group on Windows so the replica
// can be signalled as a unit (best-effort; Windows has no POSIX process
// groups, see reap_windows.go for the corresponding Stop behavior).
func childSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: 0x00000200} // CREATE_NEW_PROCESS_GROUP
}

// withUmask is a no-op on Windows, which has no umask concept.
func withUmask(int) func() {
	return func() {}
}
