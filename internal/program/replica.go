package program

import (
	"io"
	"os/exec"
	"time"
)

// Replica is one OS child process belonging to a Program, plus the runtime
// metadata needed to report and manage it. It carries no behaviour of its
// own beyond representing current state; Program owns every transition.
type Replica struct {
	Index     int
	State     ReplicaState
	PID       int
	StartTime time.Time
	StopTime  time.Time
	Restarts  int
	ExitCode  int
	HasExit   bool

	cmd    *exec.Cmd
	stdout io.WriteCloser
	stderr io.WriteCloser
}

// closeStreams releases the redirected stdout/stderr file handles. Called
// from every path that moves a Replica out of a live state, so a replica
// never leaks its output file descriptors once it stops or exits.
func (r *Replica) closeStreams() {
	if r.stdout != nil {
		_ = r.stdout.Close()
		r.stdout = nil
	}
	if r.stderr != nil {
		_ = r.stderr.Close()
		r.stderr = nil
	}
}
