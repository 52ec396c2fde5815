package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kestrux/supervisor/internal/process"
)

func writeConfig(t *testing.T, dir, yaml string) string {
	t.Helper()
	p := filepath.Join(dir, "supervisor.yaml")
	if err := os.WriteFile(p, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig_Minimal(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  web:
    command: "sleep 1"
`)
	set, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(set.Programs) != 1 {
		t.Fatalf("expected 1 program, got %d", len(set.Programs))
	}
	s := set.Programs[0]
	if s.Name != "web" || s.Command != "sleep 1" {
		t.Fatalf("unexpected spec: %+v", s)
	}
	if s.Processes != process.DefaultProcesses {
		t.Errorf("expected default processes, got %d", s.Processes)
	}
	if s.RestartPolicy != process.RestartOnFailure {
		t.Errorf("expected default restart policy on_failure, got %s", s.RestartPolicy)
	}
	if s.SuccessTimeout != process.DefaultSuccessTimeout {
		t.Errorf("expected default success_timeout, got %v", s.SuccessTimeout)
	}
}

func TestLoadConfig_CmdAlias(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  worker:
    cmd: "echo hi"
`)
	set, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if set.Programs[0].Command != "echo hi" {
		t.Fatalf("cmd alias not resolved: %+v", set.Programs[0])
	}
}

func TestLoadConfig_CommandWinsOverCmd(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  worker:
    command: "real"
    cmd: "ignored"
`)
	set, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if set.Programs[0].Command != "real" {
		t.Fatalf("expected command to win over cmd alias, got %q", set.Programs[0].Command)
	}
}

func TestLoadConfig_FullFields(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  api:
    command: "sleep 5"
    processes: 3
    start_at_launch: true
    restart_policy: always
    expected_exit_codes: [0, 2]
    success_timeout: 10
    max_restarts: 5
    stop_signal: SIGINT
    stop_timeout: 20
    env:
      FOO: bar
    working_dir: /tmp
    umask: "027"
`)
	set, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	s := set.Programs[0]
	if s.Processes != 3 || !s.StartAtLaunch || s.RestartPolicy != process.RestartAlways {
		t.Fatalf("unexpected spec: %+v", s)
	}
	if s.SuccessTimeout != 10*time.Second || s.MaxRestarts != 5 || s.StopTimeout != 20*time.Second {
		t.Fatalf("unexpected durations: %+v", s)
	}
	if _, ok := s.ExpectedExitCodes[2]; !ok {
		t.Errorf("expected exit code 2 to be recognized")
	}
	if s.Env["FOO"] != "bar" || s.WorkingDir != "/tmp" || s.Umask != "027" {
		t.Fatalf("unexpected env/workdir/umask: %+v", s)
	}
}

func TestLoadConfig_UnexpectedSynonym(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  web:
    command: "sleep 1"
    restart_policy: unexpected
`)
	set, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if set.Programs[0].RestartPolicy != process.RestartOnFailure {
		t.Errorf("expected unexpected to normalize to on_failure, got %s", set.Programs[0].RestartPolicy)
	}
}

func TestLoadConfig_MissingCommand(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  broken: {}
`)
	if _, err := LoadConfig(p); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestLoadConfig_DiscardOutputMutualExclusion(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  broken:
    command: "sleep 1"
    discard_output: true
    stdout: "/tmp/out.log"
`)
	if _, err := LoadConfig(p); err == nil {
		t.Fatal("expected error for discard_output + stdout mutual exclusion")
	}
}

func TestLoadConfig_Idempotent(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  web:
    command: "sleep 1"
    processes: 2
`)
	first, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(first.Programs) != len(second.Programs) {
		t.Fatalf("program count mismatch across reloads")
	}
	a, b := first.Programs[0], second.Programs[0]
	if a.Name != b.Name || a.Command != b.Command || a.Processes != b.Processes {
		t.Errorf("expected structurally identical specs across reloads, got %+v vs %+v", a, b)
	}
}

func TestLoadConfig_HistoryAndMetrics(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
history:
  dsn: "sqlite://:memory:"
metrics:
  listen: ":9090"
programs:
  web:
    command: "sleep 1"
`)
	set, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if set.HistoryDSN != "sqlite://:memory:" {
		t.Errorf("unexpected history dsn: %q", set.HistoryDSN)
	}
	if set.MetricsListen != ":9090" {
		t.Errorf("unexpected metrics listen: %q", set.MetricsListen)
	}
}

func TestLoadConfig_MultiplePrograms(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  a:
    command: "sleep 1"
  b:
    command: "sleep 2"
`)
	set, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(set.Programs) != 2 {
		t.Fatalf("expected 2 programs, got %d", len(set.Programs))
	}
	names := map[string]bool{set.Programs[0].Name: true, set.Programs[1].Name: true}
	if !names["a"] || !names["b"] {
		t.Fatalf("unexpected program names: %v", names)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/definitely/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfig_InvalidUmask(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
programs:
  web:
    command: "sleep 1"
    umask: "999"
`)
	if _, err := LoadConfig(p); err == nil {
		t.Fatal("expected error for non-octal umask")
	}
}
