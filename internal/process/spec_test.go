package process

import (
	"testing"
	"time"
)

func TestValidate_Defaults(t *testing.T) {
	s := Spec{Name: "web", Command: "sleep 1"}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.Processes != DefaultProcesses {
		t.Errorf("Processes = %d, want %d", s.Processes, DefaultProcesses)
	}
	if s.SuccessTimeout != DefaultSuccessTimeout {
		t.Errorf("SuccessTimeout = %v, want %v", s.SuccessTimeout, DefaultSuccessTimeout)
	}
	if s.StopTimeout != DefaultStopTimeout {
		t.Errorf("StopTimeout = %v, want %v", s.StopTimeout, DefaultStopTimeout)
	}
	if s.Umask != DefaultUmask {
		t.Errorf("Umask = %q, want %q", s.Umask, DefaultUmask)
	}
	if s.RestartPolicy != RestartOnFailure {
		t.Errorf("RestartPolicy = %q, want %q", s.RestartPolicy, RestartOnFailure)
	}
	if _, ok := s.ExpectedExitCodes[0]; !ok || len(s.ExpectedExitCodes) != 1 {
		t.Errorf("ExpectedExitCodes = %v, want {0}", s.ExpectedExitCodes)
	}
}

func TestValidate_RequiresNameAndCommand(t *testing.T) {
	if err := (&Spec{Command: "x"}).Validate(); err == nil {
		t.Fatal("expected error for missing name")
	}
	if err := (&Spec{Name: "x"}).Validate(); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestValidate_UnexpectedSynonymNormalizesToOnFailure(t *testing.T) {
	s := Spec{Name: "web", Command: "sleep 1", RestartPolicy: "unexpected"}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.RestartPolicy != RestartOnFailure {
		t.Errorf("RestartPolicy = %q, want %q (unexpected should normalize)", s.RestartPolicy, RestartOnFailure)
	}
}

func TestValidate_RejectsUnknownRestartPolicy(t *testing.T) {
	s := Spec{Name: "web", Command: "sleep 1", RestartPolicy: "sometimes"}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for unknown restart_policy")
	}
}

func TestValidate_DiscardOutputMutualExclusion(t *testing.T) {
	s := Spec{Name: "web", Command: "sleep 1", DiscardOutput: true, Stdout: "/tmp/a.log"}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error when discard_output and stdout are both set")
	}
}

func TestValidate_RejectsNegativeMaxRestarts(t *testing.T) {
	s := Spec{Name: "web", Command: "sleep 1", MaxRestarts: -1}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for negative max_restarts")
	}
}

func TestValidate_RejectsNonOctalUmask(t *testing.T) {
	s := Spec{Name: "web", Command: "sleep 1", Umask: "abc"}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for non-octal umask")
	}
}

func TestValidate_ExpectedExitCodesPopulatesSet(t *testing.T) {
	s := Spec{Name: "web", Command: "sleep 1", ExpectedExitCodesL: []int{0, 1, 2}}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, code := range []int{0, 1, 2} {
		if _, ok := s.ExpectedExitCodes[code]; !ok {
			t.Errorf("expected exit code %d to be present", code)
		}
	}
}

func TestValidate_ResolvesStopSignal(t *testing.T) {
	s := Spec{Name: "web", Command: "sleep 1", StopSignalName: "INT"}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.StopSignal != resolveSignal("INT") {
		t.Errorf("StopSignal not resolved from StopSignalName")
	}
}

func TestOutputPathFor(t *testing.T) {
	cases := []struct {
		base      string
		index     int
		processes int
		want      string
	}{
		{"", 1, 3, ""},
		{"app.log", 1, 1, "app.log"},
		{"app.log", 1, 3, "app1.log"},
		{"app.log", 2, 3, "app2.log"},
		{"/var/log/app", 1, 2, "/var/log/app1"},
	}
	for _, c := range cases {
		if got := OutputPathFor(c.base, c.index, c.processes); got != c.want {
			t.Errorf("OutputPathFor(%q, %d, %d) = %q, want %q", c.base, c.index, c.processes, got, c.want)
		}
	}
}

func TestValidate_Idempotent(t *testing.T) {
	s := Spec{Name: " web ", Command: " sleep 1 ", SuccessTimeout: 2 * time.Second}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	wantName, wantCommand, wantTimeout := s.Name, s.Command, s.SuccessTimeout
	if err := s.Validate(); err != nil {
		t.Fatalf("second Validate: %v", err)
	}
	if s.Name != wantName || s.Command != wantCommand || s.SuccessTimeout != wantTimeout {
		t.Errorf("Validate was not idempotent: got Name=%q Command=%q SuccessTimeout=%v", s.Name, s.Command, s.SuccessTimeout)
	}
}
