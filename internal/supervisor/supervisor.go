// Package supervisor owns the live program registry and decides, on every
// config reload, whether a changed program can be hot-swapped in place or
// must be torn down and recreated. Every mutation is serialized under one
// mutex: Program and Replica hold no locks of their own, so a caller
// reaching them any other way would race the monitor loop and the control
// REPL against each other.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kestrux/supervisor/internal/config"
	"github.com/kestrux/supervisor/internal/history"
	"github.com/kestrux/supervisor/internal/process"
	"github.com/kestrux/supervisor/internal/program"
)

// restartRequiredFields names the ProgramSpec fields whose change forces
// dropping and recreating a Program: the process launch parameters baked
// into an already-running child, which can't be altered without a new exec.
var restartRequiredFields = map[string]bool{
	"command":     true,
	"umask":       true,
	"working_dir": true,
	"stdout":      true,
	"stderr":      true,
	"env":         true,
}

// hotSwapFields names the fields Reconcile can apply without disturbing
// live replicas.
var hotSwapFields = map[string]bool{
	"processes":           true,
	"start_at_launch":     true,
	"restart_policy":      true,
	"expected_exit_codes": true,
	"success_timeout":     true,
	"max_restarts":        true,
	"stop_signal":         true,
	"stop_timeout":        true,
}

// NotFound is returned by operations that reference an unknown program name.
type NotFound struct{ Name string }

func (e *NotFound) Error() string { return fmt.Sprintf("program not found: %s", e.Name) }

// Supervisor holds the live spec set and the live Programs.
type Supervisor struct {
	mu         sync.Mutex
	programs   map[string]*program.Program
	configPath string
	log        *slog.Logger
	sinks      []history.Sink
}

// New constructs an empty Supervisor. Call Reload to populate it from a
// config file.
func New(configPath string, log *slog.Logger, sinks []history.Sink) *Supervisor {
	return &Supervisor{
		programs:   make(map[string]*program.Program),
		configPath: configPath,
		log:        log,
		sinks:      sinks,
	}
}

// Reload re-reads the config file and applies each program's field diff:
// a restart-required change recreates the Program from scratch, a hot-swap
// change is applied to the live replicas in place, and programs dropped
// from the file are stopped and removed. A bad config file is rejected
// outright, leaving the supervisor running on whatever config last loaded
// successfully.
func (s *Supervisor) Reload(ctx context.Context) error {
	set, err := config.LoadConfig(s.configPath)
	if err != nil {
		if s.log != nil {
			s.log.Error("reload failed, retaining previous config", slog.Any("error", err))
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(set.Programs) == 0 {
		for name, p := range s.programs {
			p.Stop(ctx, nil, true)
			delete(s.programs, name)
		}
		return nil
	}

	seen := make(map[string]bool, len(set.Programs))
	for _, spec := range set.Programs {
		seen[spec.Name] = true
		existing, ok := s.programs[spec.Name]
		if !ok {
			p := program.New(spec, s.log, s.sinks)
			p.Start(ctx)
			s.programs[spec.Name] = p
			continue
		}

		changed := diffFields(existing.Spec(), spec)
		if anyRestartRequired(changed) {
			existing.Stop(ctx, nil, true)
			p := program.New(spec, s.log, s.sinks)
			p.Start(ctx)
			s.programs[spec.Name] = p
			continue
		}
		if len(changed) > 0 {
			existing.Reconcile(ctx, spec, changed)
		}
	}

	for name, p := range s.programs {
		if !seen[name] {
			p.Stop(ctx, nil, true)
			delete(s.programs, name)
		}
	}

	for _, p := range s.programs {
		if p.Spec().StartAtLaunch {
			p.Reboot(ctx)
		}
	}

	return nil
}

// diffFields compares the restart-required and hot-swap field sets between
// old and new, returning the set of changed field keys (snake_case, matching
// the keys in restartRequiredFields/hotSwapFields).
func diffFields(oldSpec, newSpec process.Spec) map[string]bool {
	changed := make(map[string]bool)
	if oldSpec.Command != newSpec.Command {
		changed["command"] = true
	}
	if oldSpec.Umask != newSpec.Umask {
		changed["umask"] = true
	}
	if oldSpec.WorkingDir != newSpec.WorkingDir {
		changed["working_dir"] = true
	}
	if oldSpec.Stdout != newSpec.Stdout {
		changed["stdout"] = true
	}
	if oldSpec.Stderr != newSpec.Stderr {
		changed["stderr"] = true
	}
	if !envEqual(oldSpec.Env, newSpec.Env) {
		changed["env"] = true
	}

	if oldSpec.Processes != newSpec.Processes {
		changed["processes"] = true
	}
	if oldSpec.StartAtLaunch != newSpec.StartAtLaunch {
		changed["start_at_launch"] = true
	}
	if oldSpec.RestartPolicy != newSpec.RestartPolicy {
		changed["restart_policy"] = true
	}
	if !exitCodesEqual(oldSpec.ExpectedExitCodes, newSpec.ExpectedExitCodes) {
		changed["expected_exit_codes"] = true
	}
	if oldSpec.SuccessTimeout != newSpec.SuccessTimeout {
		changed["success_timeout"] = true
	}
	if oldSpec.MaxRestarts != newSpec.MaxRestarts {
		changed["max_restarts"] = true
	}
	if oldSpec.StopSignal != newSpec.StopSignal {
		changed["stop_signal"] = true
	}
	if oldSpec.StopTimeout != newSpec.StopTimeout {
		changed["stop_timeout"] = true
	}
	return changed
}

func anyRestartRequired(changed map[string]bool) bool {
	for field := range changed {
		if restartRequiredFields[field] {
			return true
		}
	}
	return false
}

func envEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func exitCodesEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Names returns the sorted list of currently registered program names.
func (s *Supervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.programs))
	for name := range s.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns a snapshot of the named program's replicas, or NotFound.
func (s *Supervisor) Status(name string) ([]program.Replica, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programs[name]
	if !ok {
		return nil, &NotFound{Name: name}
	}
	return p.Replicas(), nil
}

// StartProgram spawns replicas for an existing program by name.
func (s *Supervisor) StartProgram(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programs[name]
	if !ok {
		return &NotFound{Name: name}
	}
	spec := p.Spec()
	spec.StartAtLaunch = true
	p.Reconcile(ctx, spec, map[string]bool{"start_at_launch": true})
	return nil
}

// StopProgram stops a program (or one of its replicas by index) by name.
func (s *Supervisor) StopProgram(ctx context.Context, name string, index *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programs[name]
	if !ok {
		return &NotFound{Name: name}
	}
	p.Stop(ctx, index, true)
	return nil
}

// RestartProgram advances the restart path for one program, or for all
// programs when name is empty.
func (s *Supervisor) RestartProgram(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		for _, p := range s.programs {
			p.Restart(ctx)
		}
		return nil
	}
	p, ok := s.programs[name]
	if !ok {
		return &NotFound{Name: name}
	}
	p.Restart(ctx)
	return nil
}

// Shutdown is used by cmd/supervisor: it stops every program in sorted name
// order (the registry does not record insertion order), each bounded by its
// own stop_timeout.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.programs))
	for name := range s.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.programs[name].Stop(ctx, nil, true)
	}
}

// WithLock runs fn with the supervisor mutex held, letting the monitor loop
// call program.Tick across the whole registry without racing Reload or the
// control REPL.
func (s *Supervisor) WithLock(fn func(programs map[string]*program.Program)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.programs)
}
