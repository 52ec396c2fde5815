package process

import (
	"io"
	"os/exec"
	"strconv"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/kestrux/supervisor/internal/env"
)

// BuildCommand constructs an *exec.Cmd for spec.Command. Command is always
// tokenised on whitespace; no shell is ever invoked, so shell metacharacters
// in Command are passed through as literal argv, never interpreted.
func (s *Spec) BuildCommand() *exec.Cmd {
	parts := strings.Fields(s.Command)
	if len(parts) == 0 {
		// #nosec G204 -- no user input reaches exec.Command unvalidated; Validate already rejected empty Command.
		return exec.Command("/bin/true")
	}
	// #nosec G204 -- argv is tokenised from an operator-supplied config value, never shell-interpreted.
	return exec.Command(parts[0], parts[1:]...)
}

// MergedEnv returns the supervisor's own environment overlaid with
// spec.Env (spec values win on conflict), with ${VAR} references in spec.Env
// values expanded against the merged set.
func (s *Spec) MergedEnv() []string {
	return env.Merge(s.Env)
}

// openOutput opens path through a lumberjack.Logger so redirected program
// output gets size/age-bounded rotation instead of growing unbounded.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nil, nil
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
	}, nil
}

// OpenStreams resolves the stdout/stderr destinations for replica index,
// honoring DiscardOutput and the per-replica filename suffixing rule.
// A nil writer means "inherit devnull"; callers close non-nil writers on
// replica termination.
func (s *Spec) OpenStreams(index int) (stdout, stderr io.WriteCloser, err error) {
	if s.DiscardOutput {
		return nil, nil, nil
	}
	if stdout, err = openOutput(OutputPathFor(s.Stdout, index, s.Processes)); err != nil {
		return nil, nil, err
	}
	if stderr, err = openOutput(OutputPathFor(s.Stderr, index, s.Processes)); err != nil {
		if stdout != nil {
			_ = stdout.Close()
		}
		return nil, nil, err
	}
	return stdout, stderr, nil
}

// Launch starts one replica process for index, wiring its stdio, working
// directory, environment, process group, and umask. It does not block.
func (s *Spec) Launch(index int) (*exec.Cmd, io.WriteCloser, io.WriteCloser, error) {
	cmd := s.BuildCommand()
	if s.WorkingDir != "" {
		cmd.Dir = s.WorkingDir
	}
	cmd.Env = s.MergedEnv()
	cmd.SysProcAttr = childSysProcAttr()

	stdout, stderr, err := s.OpenStreams(index)
	if err != nil {
		return nil, nil, nil, err
	}
	if s.DiscardOutput {
		cmd.Stdout = nil
		cmd.Stderr = nil
	} else {
		if stdout != nil {
			cmd.Stdout = stdout
		}
		if stderr != nil {
			cmd.Stderr = stderr
		}
	}

	mask, parseErr := strconv.ParseUint(s.Umask, 8, 32)
	if parseErr != nil {
		mask = 0o022
	}
	restore := withUmask(int(mask))
	startErr := cmd.Start()
	restore()

	if startErr != nil {
		if stdout != nil {
			_ = stdout.Close()
		}
		if stderr != nil {
			_ = stderr.Close()
		}
		return nil, nil, nil, startErr
	}
	return cmd, stdout, stderr, nil
}
