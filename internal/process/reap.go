//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// TryReap performs a non-blocking wait on cmd's child. It returns
// (exited, exitCode) -- exited is false if the child is still running or
// cmd/cmd.Process is nil. Non-blocking reaping is what lets tick() scan
// every replica in one pass without blocking on any single one of them.
func TryReap(cmd *exec.Cmd) (exited bool, exitCode int) {
	if cmd == nil || cmd.Process == nil {
		return false, 0
	}
	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(cmd.Process.Pid, &ws, syscall.WNOHANG, nil)
	if err != nil || pid == 0 {
		return false, 0
	}
	if ws.Exited() {
		return true, ws.ExitStatus()
	}
	if ws.Signaled() {
		return true, 128 + int(ws.Signal())
	}
	return true, -1
}

// IsAlive reports whether pid still exists, using signal 0 semantics.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// SignalGroup delivers sig to the process group led by pid, swallowing
// errors (e.g. ESRCH on an already-dead group): the caller has no
// meaningful recovery for a signal that failed to reach a process already
// on its way out.
func SignalGroup(pid int, sig syscall.Signal) {
	_ = syscall.Kill(-pid, sig)
}

// KillGroup force-kills the process group led by pid.
func KillGroup(pid int) {
	SignalGroup(pid, syscall.SIGKILL)
}
