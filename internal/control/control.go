// Package control implements a line-oriented verb dispatcher over a
// Supervisor, usable both as an interactive stdin REPL and, line by line,
// as a scriptable interface.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kestrux/supervisor/internal/program"
	"github.com/kestrux/supervisor/internal/supervisor"
)

// Surface dispatches status, start, stop, restart, reload, and quit/exit
// against a Supervisor.
type Surface struct {
	sup *supervisor.Supervisor
}

// New constructs a Surface bound to sup.
func New(sup *supervisor.Supervisor) *Surface {
	return &Surface{sup: sup}
}

// Dispatch parses and executes a single command line, writing its textual
// reply to w. It returns quit=true when the line was "quit" or "exit".
func (s *Surface) Dispatch(ctx context.Context, line string, w io.Writer) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	verb := fields[0]
	args := fields[1:]

	switch verb {
	case "status":
		s.handleStatus(args, w)
	case "start":
		s.handleStart(ctx, args, w)
	case "stop":
		s.handleStop(ctx, args, w)
	case "restart":
		s.handleRestart(ctx, args, w)
	case "reload":
		s.handleReload(ctx, w)
	case "help":
		s.handleHelp(args, w)
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(w, "Unknown command: %s\n", verb)
	}
	return false
}

// Run reads lines from r until quit/exit or EOF, printing a "> " prompt and
// writing replies to w before each prompt.
func (s *Surface) Run(ctx context.Context, r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	fmt.Fprint(w, "> ")
	for scanner.Scan() {
		if s.Dispatch(ctx, scanner.Text(), w) {
			return
		}
		fmt.Fprint(w, "> ")
	}
}

func (s *Surface) handleStatus(args []string, w io.Writer) {
	names := args
	if len(names) == 0 {
		names = s.sup.Names()
	}
	var index *int
	programName := ""
	if len(args) >= 1 {
		programName = args[0]
	}
	if len(args) >= 2 {
		if i, err := strconv.Atoi(args[1]); err == nil {
			index = &i
		}
	}
	if programName == "" {
		for _, name := range names {
			s.printProgramStatus(name, nil, w)
		}
		return
	}
	s.printProgramStatus(programName, index, w)
}

func (s *Surface) printProgramStatus(name string, index *int, w io.Writer) {
	replicas, err := s.sup.Status(name)
	if err != nil {
		fmt.Fprintf(w, "%v\n", err)
		return
	}
	for _, r := range replicas {
		if index != nil && r.Index != *index {
			continue
		}
		fmt.Fprintln(w, formatStatusLine(name, r))
	}
}

// formatStatusLine renders one replica's status line in a fixed field order
// so scripts piping the REPL's output can rely on column position.
func formatStatusLine(programName string, r program.Replica) string {
	exit := "N/A"
	if r.HasExit {
		exit = strconv.Itoa(r.ExitCode)
	}
	start := "N/A"
	if !r.StartTime.IsZero() {
		start = r.StartTime.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("Program:%s Index:%d PID:%d State:%s Start:%s Exit:%s Restarts:%d",
		programName, r.Index, r.PID, r.State.String(), start, exit, r.Restarts)
}

func (s *Surface) handleStart(ctx context.Context, args []string, w io.Writer) {
	if len(args) < 1 {
		fmt.Fprintln(w, "usage: start <program>")
		return
	}
	if err := s.sup.StartProgram(ctx, args[0]); err != nil {
		fmt.Fprintf(w, "%v\n", err)
		return
	}
	fmt.Fprintf(w, "started %s\n", args[0])
}

func (s *Surface) handleStop(ctx context.Context, args []string, w io.Writer) {
	if len(args) < 1 {
		fmt.Fprintln(w, "usage: stop <program> [index]")
		return
	}
	var index *int
	if len(args) >= 2 {
		i, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(w, "invalid index %q\n", args[1])
			return
		}
		index = &i
	}
	if err := s.sup.StopProgram(ctx, args[0], index); err != nil {
		fmt.Fprintf(w, "%v\n", err)
		return
	}
	fmt.Fprintf(w, "stopped %s\n", args[0])
}

func (s *Surface) handleRestart(ctx context.Context, args []string, w io.Writer) {
	name := ""
	if len(args) >= 1 {
		name = args[0]
	}
	if err := s.sup.RestartProgram(ctx, name); err != nil {
		fmt.Fprintf(w, "%v\n", err)
		return
	}
	if name == "" {
		fmt.Fprintln(w, "restarted all")
		return
	}
	fmt.Fprintf(w, "restarted %s\n", name)
}

func (s *Surface) handleReload(ctx context.Context, w io.Writer) {
	if err := s.sup.Reload(ctx); err != nil {
		fmt.Fprintf(w, "reload failed: %v\n", err)
		return
	}
	fmt.Fprintln(w, "reloaded")
}

func (s *Surface) handleHelp(args []string, w io.Writer) {
	topics := map[string]string{
		"status":  "status [program] [replica_index] - show replica status",
		"start":   "start <program> - start a program's replicas",
		"stop":    "stop <program> [index] - stop a program or one replica",
		"restart": "restart [program] - restart terminal replicas",
		"reload":  "reload - reread the config file and apply changes",
		"quit":    "quit|exit - leave the control surface",
	}
	if len(args) == 1 {
		if help, ok := topics[args[0]]; ok {
			fmt.Fprintln(w, help)
			return
		}
		fmt.Fprintf(w, "no help for %q\n", args[0])
		return
	}
	for _, verb := range []string{"status", "start", "stop", "restart", "reload", "quit"} {
		fmt.Fprintln(w, topics[verb])
	}
}
