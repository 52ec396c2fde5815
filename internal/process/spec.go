// Package process defines the immutable configuration (Spec) and launch
// mechanics for a single supervised program.
package process

import (
	"fmt"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// RestartPolicy controls whether a terminated replica is respawned.
type RestartPolicy string

const (
	RestartAlways     RestartPolicy = "always"
	RestartNever      RestartPolicy = "never"
	RestartOnFailure  RestartPolicy = "on_failure"
	restartUnexpected RestartPolicy = "unexpected" // accepted synonym for RestartOnFailure
)

// Normalize resolves the "unexpected" synonym and defaults an empty policy
// to RestartOnFailure.
func (p RestartPolicy) Normalize() RestartPolicy {
	switch p {
	case "":
		return RestartOnFailure
	case restartUnexpected:
		return RestartOnFailure
	default:
		return p
	}
}

// ConfigError reports a validation failure in a Spec.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Reason)
}

// Spec is the immutable, validated configuration of one program.
// Equality of the restart-required subset of fields is what the
// Supervisor's reload diff (see internal/supervisor) uses to decide
// between a hot-swap and a full recreate.
type Spec struct {
	Name               string            `mapstructure:"name" yaml:"name"`
	Command            string            `mapstructure:"command" yaml:"command"`
	Processes          int               `mapstructure:"processes" yaml:"processes"`
	StartAtLaunch      bool              `mapstructure:"start_at_launch" yaml:"start_at_launch"`
	RestartPolicy      RestartPolicy     `mapstructure:"restart_policy" yaml:"restart_policy"`
	ExpectedExitCodes  map[int]struct{}  `mapstructure:"-" yaml:"-"`
	SuccessTimeout     time.Duration     `mapstructure:"success_timeout" yaml:"success_timeout"`
	MaxRestarts        int               `mapstructure:"max_restarts" yaml:"max_restarts"`
	StopSignal         syscall.Signal    `mapstructure:"-" yaml:"-"`
	StopSignalName     string            `mapstructure:"stop_signal" yaml:"stop_signal"`
	StopTimeout        time.Duration     `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	Stdout             string            `mapstructure:"stdout" yaml:"stdout"`
	Stderr             string            `mapstructure:"stderr" yaml:"stderr"`
	DiscardOutput      bool              `mapstructure:"discard_output" yaml:"discard_output"`
	Env                map[string]string `mapstructure:"env" yaml:"env"`
	WorkingDir         string            `mapstructure:"working_dir" yaml:"working_dir"`
	Umask              string            `mapstructure:"umask" yaml:"umask"`
	ExpectedExitCodesL []int             `mapstructure:"expected_exit_codes" yaml:"expected_exit_codes"`
}

// Defaults, applied by Validate when the corresponding field is unset.
// DefaultMaxRestarts is the exception: 0 is a valid max_restarts, so
// config.LoadConfig applies it before decoding, and an explicit value in the
// file overrides it.
const (
	DefaultProcesses      = 1
	DefaultSuccessTimeout = 5 * time.Second
	DefaultMaxRestarts    = 3
	DefaultStopSignal     = "SIGTERM"
	DefaultStopTimeout    = 10 * time.Second
	DefaultUmask          = "022"
)

// Validate normalizes defaults and aliases, then checks required fields and
// mutual-exclusion constraints. It returns a *ConfigError on any violation.
// Validate mutates the receiver in place (it is meant to be called once,
// immediately after decoding, before the Spec is handed to a Program).
func (s *Spec) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return &ConfigError{Field: "name", Reason: "required"}
	}
	s.Command = strings.TrimSpace(s.Command)
	if s.Command == "" {
		return &ConfigError{Field: "command", Reason: "required"}
	}
	if s.DiscardOutput && (s.Stdout != "" || s.Stderr != "") {
		return &ConfigError{Field: "discard_output", Reason: "mutually exclusive with stdout/stderr"}
	}

	if s.Processes <= 0 {
		s.Processes = DefaultProcesses
	}
	s.RestartPolicy = s.RestartPolicy.Normalize()
	switch s.RestartPolicy {
	case RestartAlways, RestartNever, RestartOnFailure:
	default:
		return &ConfigError{Field: "restart_policy", Reason: "must be one of always, never, on_failure"}
	}

	if len(s.ExpectedExitCodesL) == 0 {
		s.ExpectedExitCodesL = []int{0}
	}
	s.ExpectedExitCodes = make(map[int]struct{}, len(s.ExpectedExitCodesL))
	for _, c := range s.ExpectedExitCodesL {
		s.ExpectedExitCodes[c] = struct{}{}
	}

	if s.SuccessTimeout <= 0 {
		s.SuccessTimeout = DefaultSuccessTimeout
	}
	if s.MaxRestarts < 0 {
		return &ConfigError{Field: "max_restarts", Reason: "must be >= 0"}
	}

	name := s.StopSignalName
	if name == "" {
		name = DefaultStopSignal
	}
	s.StopSignal = resolveSignal(name)

	if s.StopTimeout <= 0 {
		s.StopTimeout = DefaultStopTimeout
	}

	if s.Umask == "" {
		s.Umask = DefaultUmask
	}
	if _, err := strconv.ParseUint(s.Umask, 8, 32); err != nil {
		return &ConfigError{Field: "umask", Reason: "must be an octal string"}
	}

	if s.WorkingDir != "" {
		s.WorkingDir = expandHome(s.WorkingDir)
	}
	if s.Stdout != "" {
		s.Stdout = expandHome(s.Stdout)
	}
	if s.Stderr != "" {
		s.Stderr = expandHome(s.Stderr)
	}

	return nil
}

// expandHome resolves a leading "~" to the current user's home directory.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		u, err := user.Current()
		if err != nil {
			return path
		}
		return filepath.Join(u.HomeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}

// OutputPathFor returns the stdout/stderr path for replica index, inserting
// the index before the file extension when Processes > 1 (e.g. "app.log" ->
// "app1.log" for index 1). An empty base path yields an empty result.
func OutputPathFor(base string, index, processes int) string {
	if base == "" {
		return ""
	}
	if processes <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s%d%s", stem, index, ext)
}
