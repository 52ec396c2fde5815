//go:build windows

package process

import (
	"os/exec"
	"syscall"
	"unsafe"
)

var (
	kernel32            = syscall.NewLazyDLL("kernel32.dll")
	procGetExitCodeProc = kernel32.NewProc("GetExitCodeProcess")
	stillActive         = uint32(259) // STILL_ACTIVE
)

// TryReap polls GetExitCodeProcess, Windows' non-blocking equivalent of
// waitpid(WNOHANG).
func TryReap(cmd *exec.Cmd) (exited bool, exitCode int) {
	if cmd == nil || cmd.Process == nil {
		return false, 0
	}
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(cmd.Process.Pid))
	if err != nil {
		return true, -1
	}
	defer syscall.CloseHandle(h)

	var code uint32
	ret, _, _ := procGetExitCodeProc.Call(uintptr(h), uintptr(unsafe.Pointer(&code)))
	if ret == 0 {
		return false, 0
	}
	if code == stillActive {
		return false, 0
	}
	return true, int(code)
}

func IsAlive(pid int) bool {
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer syscall.CloseHandle(h)
	return true
}

// SignalGroup and KillGroup terminate the process; Windows has no POSIX
// process groups, so only SIGKILL-equivalent termination is supported.
func SignalGroup(pid int, _ syscall.Signal) {
	KillGroup(pid)
}

func KillGroup(pid int) {
	h, err := syscall.OpenProcess(syscall.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return
	}
	defer syscall.CloseHandle(h)
	_ = syscall.TerminateProcess(h, 1)
}
