package program

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/kestrux/supervisor/internal/history"
	"github.com/kestrux/supervisor/internal/metrics"
	"github.com/kestrux/supervisor/internal/process"
)

// Program is the live fleet of replicas for one process.Spec. Every method
// here assumes the caller (internal/supervisor) already holds the single
// supervisor-wide mutex: Program performs no locking of its own.
type Program struct {
	spec     process.Spec
	replicas map[int]*Replica

	// maxRestartsLatched remembers which replicas have already emitted the
	// "max restarts reached" history event, so it fires once per replica
	// lineage rather than on every subsequent tick.
	maxRestartsLatched map[int]bool

	log     *slog.Logger
	history []history.Sink
}

// New constructs a Program from spec with no live replicas.
func New(spec process.Spec, log *slog.Logger, sinks []history.Sink) *Program {
	return &Program{
		spec:               spec,
		replicas:           make(map[int]*Replica),
		maxRestartsLatched: make(map[int]bool),
		log:                log,
		history:            sinks,
	}
}

// Spec returns the program's current spec.
func (p *Program) Spec() process.Spec { return p.spec }

// Name returns the program's name, a convenience over Spec().Name.
func (p *Program) Name() string { return p.spec.Name }

// Replicas returns a snapshot slice of all replicas, ordered by index.
func (p *Program) Replicas() []Replica {
	out := make([]Replica, 0, len(p.replicas))
	for i := 1; i <= len(p.replicas); i++ {
		if r, ok := p.replicas[i]; ok {
			out = append(out, *r)
		}
	}
	// Catch any sparse indices (e.g. after a processes decrease/increase).
	if len(out) != len(p.replicas) {
		out = out[:0]
		for _, r := range p.replicas {
			out = append(out, *r)
		}
		sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	}
	return out
}

// Replica returns a copy of the replica at index, and whether it exists.
func (p *Program) Replica(index int) (Replica, bool) {
	r, ok := p.replicas[index]
	if !ok {
		return Replica{}, false
	}
	return *r, true
}

func (p *Program) emit(ctx context.Context, typ history.EventType, r *Replica) {
	rec := history.Record{
		Program:  p.spec.Name,
		Replica:  r.Index,
		PID:      r.PID,
		State:    r.State.String(),
		ExitCode: r.ExitCode,
		HasExit:  r.HasExit,
	}
	evt := history.Event{Type: typ, OccurredAt: time.Now(), Record: rec}
	for _, sink := range p.history {
		if err := sink.Send(ctx, evt); err != nil && p.log != nil {
			p.log.Warn("history sink send failed", slog.String("program", p.spec.Name), slog.Any("error", err))
		}
	}
}

func (p *Program) transition(r *Replica, to ReplicaState) {
	from := r.State
	r.State = to
	metrics.RecordTransition(p.spec.Name, from.String(), to.String())
	metrics.SetCurrentState(p.spec.Name, from.String(), false)
	metrics.SetCurrentState(p.spec.Name, to.String(), true)
}

// spawn launches a fresh replica at index with the given restart count
// (0 for a brand-new replica, the prior count plus one for a restart).
func (p *Program) spawn(ctx context.Context, index int, restarts int) *Replica {
	r := &Replica{Index: index, Restarts: restarts, StartTime: time.Now()}

	cmd, stdout, stderr, err := p.spec.Launch(index)
	if err != nil {
		p.transition(r, StateFailed)
		r.HasExit = true
		r.ExitCode = -1
		if p.log != nil {
			p.log.Error("spawn failed", slog.String("program", p.spec.Name), slog.Int("replica", index), slog.Any("error", err))
		}
		p.emit(ctx, history.EventSpawnFailed, r)
		p.replicas[index] = r
		return r
	}

	r.cmd = cmd
	r.stdout = stdout
	r.stderr = stderr
	r.PID = cmd.Process.Pid
	p.transition(r, StateStarting)
	metrics.IncStart(p.spec.Name)
	p.emit(ctx, history.EventStart, r)
	p.replicas[index] = r
	return r
}

// Start spawns Processes replicas at indices 1..N if StartAtLaunch is set.
// It is a no-op otherwise: a program configured not to start automatically
// waits for an explicit StartProgram call instead.
func (p *Program) Start(ctx context.Context) {
	if !p.spec.StartAtLaunch {
		return
	}
	for i := 1; i <= p.spec.Processes; i++ {
		if _, exists := p.replicas[i]; exists {
			continue
		}
		p.spawn(ctx, i, 0)
	}
	p.updateLiveGauge()
}

// Stop halts one replica (index given) or all replicas (index nil). When
// force is true every replica is targeted regardless of StartAtLaunch --
// used for an operator-requested stop or supervisor shutdown, as opposed to
// the routine fleet-sizing Reconcile does on its own.
func (p *Program) Stop(ctx context.Context, index *int, force bool) {
	targets := p.stopTargets(index, force)
	for _, i := range targets {
		p.stopOne(ctx, i)
	}
	p.updateLiveGauge()
}

func (p *Program) stopTargets(index *int, force bool) []int {
	if index != nil {
		return []int{*index}
	}
	if !p.spec.StartAtLaunch && !force {
		return nil
	}
	out := make([]int, 0, len(p.replicas))
	for i := range p.replicas {
		out = append(out, i)
	}
	return out
}

func (p *Program) stopOne(ctx context.Context, index int) {
	r, ok := p.replicas[index]
	if !ok || !r.State.live() {
		return
	}

	process.SignalGroup(r.PID, p.spec.StopSignal)

	deadline := time.Now().Add(p.spec.StopTimeout)
	exited := false
	var exitCode int
	for time.Now().Before(deadline) {
		if exited, exitCode = process.TryReap(r.cmd); exited {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !exited {
		if p.log != nil {
			p.log.Warn("stop timeout exceeded, escalating to kill",
				slog.String("program", p.spec.Name), slog.Int("replica", index))
		}
		process.KillGroup(r.PID)
		for i := 0; i < 50; i++ {
			if exited, exitCode = process.TryReap(r.cmd); exited {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
	}

	r.closeStreams()
	r.HasExit = true
	r.ExitCode = exitCode
	r.StopTime = time.Now()
	p.transition(r, StateStopped)
	metrics.IncStop(p.spec.Name)
	p.emit(ctx, history.EventStop, r)
}

// Restart consults the restart policy for every terminal replica
// (exited/failed) and respawns the eligible ones; running replicas are
// left untouched.
func (p *Program) Restart(ctx context.Context) {
	for i, r := range p.replicas {
		if r.State.terminal() {
			p.maybeRestart(ctx, i, r)
		}
	}
	p.updateLiveGauge()
}

// Reboot constructs a fresh replica at the same index for every replica not
// currently starting/running, used after a config reload to respawn
// replicas that died while the diff was in flight.
func (p *Program) Reboot(ctx context.Context) {
	for i, r := range p.replicas {
		if !r.State.live() {
			p.spawn(ctx, i, r.Restarts)
		}
	}
	p.updateLiveGauge()
}

// Tick reaps any child that has exited, promotes a replica that survived
// its success window from starting to running, and hands terminal replicas
// to the restart policy. Called once per monitor period for every program;
// it never blocks, since a single slow program can't be allowed to stall
// the scan for the rest of the fleet.
func (p *Program) Tick(ctx context.Context, now time.Time) {
	for _, r := range p.replicas {
		switch r.State {
		case StateStarting:
			if exited, code := process.TryReap(r.cmd); exited {
				r.closeStreams()
				r.HasExit = true
				r.ExitCode = code
				r.StopTime = now
				p.transition(r, StateFailed)
				continue
			}
			if now.Sub(r.StartTime) >= p.spec.SuccessTimeout {
				p.transition(r, StateRunning)
			}
		case StateRunning:
			if exited, code := process.TryReap(r.cmd); exited {
				r.closeStreams()
				r.HasExit = true
				r.ExitCode = code
				r.StopTime = now
				p.transition(r, StateExited)
			}
		}
	}

	if p.spec.StartAtLaunch {
		for i, r := range p.replicas {
			if r.State.terminal() {
				p.maybeRestart(ctx, i, r)
			}
		}
	}
	p.updateLiveGauge()
}

// maybeRestart decides whether one terminal replica should be respawned:
// "always" respawns up to MaxRestarts regardless of exit code, "never"
// never respawns, and "on_failure" respawns only when the exit code is not
// in ExpectedExitCodes, also capped at MaxRestarts. Once a replica hits its
// cap, the max-restarts event fires exactly once per lineage rather than on
// every subsequent tick.
func (p *Program) maybeRestart(ctx context.Context, index int, r *Replica) {
	eligible := false
	switch p.spec.RestartPolicy {
	case process.RestartAlways:
		eligible = r.Restarts < p.spec.MaxRestarts
	case process.RestartNever:
		eligible = false
	case process.RestartOnFailure:
		_, expected := p.spec.ExpectedExitCodes[r.ExitCode]
		eligible = !expected && r.Restarts < p.spec.MaxRestarts
	}

	if eligible {
		p.maxRestartsLatched[index] = false
		metrics.IncRestart(p.spec.Name)
		p.emit(ctx, history.EventRestart, r)
		p.spawn(ctx, index, r.Restarts+1)
		return
	}

	if p.spec.RestartPolicy != process.RestartNever && r.Restarts >= p.spec.MaxRestarts && !p.maxRestartsLatched[index] {
		p.maxRestartsLatched[index] = true
		if p.log != nil {
			p.log.Warn("max restarts reached",
				slog.String("program", p.spec.Name), slog.Int("replica", index))
		}
		p.emit(ctx, history.EventMaxRestarts, r)
	}
}

// Reconcile applies a vetted hot-swap: spec fields that do not require
// tearing down live replicas. hotFields names which fields actually changed;
// the Supervisor computes that diff and Reconcile trusts it rather than
// re-deriving it, so Program stays agnostic about the full restart-required
// field list.
func (p *Program) Reconcile(ctx context.Context, newSpec process.Spec, hotFields map[string]bool) {
	oldProcesses := p.spec.Processes
	oldStartAtLaunch := p.spec.StartAtLaunch
	p.spec = newSpec

	if hotFields["processes"] && newSpec.Processes != oldProcesses {
		if newSpec.Processes > oldProcesses {
			for i := oldProcesses + 1; i <= newSpec.Processes; i++ {
				if _, exists := p.replicas[i]; !exists {
					p.spawn(ctx, i, 0)
				}
			}
		} else {
			for i := newSpec.Processes + 1; i <= oldProcesses; i++ {
				idx := i
				p.stopOne(ctx, idx)
				delete(p.replicas, idx)
			}
		}
	}

	if hotFields["start_at_launch"] && newSpec.StartAtLaunch != oldStartAtLaunch {
		if newSpec.StartAtLaunch {
			if !p.hasLiveReplicas() {
				p.Start(ctx)
			} else {
				p.Reboot(ctx)
			}
		} else {
			p.Stop(ctx, nil, true)
		}
	}

	p.updateLiveGauge()
}

func (p *Program) hasLiveReplicas() bool {
	for _, r := range p.replicas {
		if r.State.live() {
			return true
		}
	}
	return false
}

func (p *Program) updateLiveGauge() {
	n := 0
	inState := make(map[ReplicaState]bool, len(p.replicas))
	for _, r := range p.replicas {
		if r.State.live() {
			n++
		}
		inState[r.State] = true
	}
	metrics.SetLiveReplicas(p.spec.Name, n)
	for s := StateInitial; s <= StateFailed; s++ {
		metrics.SetCurrentState(p.spec.Name, s.String(), inState[s])
	}
}
