package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/procsched/internal/scheduler"
)

// Controller is the part of the scheduler the shell drives.
type Controller interface {
	Create(ctx context.Context, n int) (scheduler.CreateResult, error)
	List() []scheduler.Row
	ListVerbose() []scheduler.Row
	SetRoundRobin(q time.Duration) error
	SetFCFS() (int, error)
	Kill(ctx context.Context, id int) error
	Resume(id int) error
	ResumeAll() ([]int, error)
	Interrupt()
	Shutdown(ctx context.Context) error
}

// Shell is the line-oriented command loop.
type Shell struct {
	ctrl   Controller
	in     io.Reader
	out    io.Writer
	prompt string
	log    *slog.Logger
}

func New(ctrl Controller, in io.Reader, out io.Writer, prompt string, log *slog.Logger) *Shell {
	if log == nil {
		log = slog.Default()
	}
	return &Shell{ctrl: ctrl, in: in, out: out, prompt: prompt, log: log.With("component", "shell")}
}

const helpText = `Commands:
  c N      create N workers
  l        list workers (l -v adds the OS status)
  s rr Q   Round-Robin with a quantum of Q seconds
  s fcfs   First-Come-First-Served
  k ID     kill worker ID
  r ID     resume suspended worker ID
  r all    resume all suspended workers
  i        suspend the running worker (same as Ctrl-C)
  x        terminate all workers and exit
`

// Run reads commands until x, end of input or ctx cancellation. Every exit
// path terminates the workers. Command failures are reported to out and never
// end the loop, and a worker that cannot be terminated is logged, not returned.
func (s *Shell) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		s.printf("%s", s.prompt)
		select {
		case <-ctx.Done():
			s.printf("\nExiting shell.\n")
			s.shutdown()
			return nil
		case err := <-readErr:
			if err != nil {
				s.log.Error("read input", "error", err)
			}
			s.printf("\nExiting shell.\n")
			s.shutdown()
			return nil
		case line := <-lines:
			if s.Exec(ctx, Parse(line)) {
				s.shutdown()
				return nil
			}
		}
	}
}

func (s *Shell) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.ctrl.Shutdown(ctx); err != nil {
		s.log.Error("terminate workers", "error", err)
	}
}

// Exec runs one command and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, cmd Command) bool {
	switch cmd.Kind {
	case KindEmpty:
	case KindExit:
		s.printf("Exiting and terminating all processes.\n")
		return true
	case KindCreate:
		s.create(ctx, cmd.N)
	case KindList:
		s.printf("%s\n", RenderTable(s.ctrl.List(), false))
	case KindListVerbose:
		s.printf("%s\n", RenderTable(s.ctrl.ListVerbose(), true))
	case KindRoundRobin:
		if err := s.ctrl.SetRoundRobin(time.Duration(cmd.N) * time.Second); err != nil {
			s.report(err, "Invalid quantum %d: must be a positive number of seconds.\n", cmd.N)
			return false
		}
		s.printf("Round Robin scheduling selected with a quantum of %d seconds.\n", cmd.N)
	case KindFCFS:
		s.printf("Setting scheduler to FCFS.\n")
		started, err := s.ctrl.SetFCFS()
		if err != nil {
			s.report(err, "Failed to switch to FCFS: %v\n", err)
			return false
		}
		if started > 0 {
			s.printf("Process %d started.\n", started)
		}
	case KindKill:
		s.kill(ctx, cmd.N)
	case KindResume:
		if err := s.ctrl.Resume(cmd.N); err != nil {
			if errors.Is(err, scheduler.ErrNotSuspended) {
				s.printf("Process %d not found or not in a suspended state.\n", cmd.N)
				return false
			}
			s.report(err, "Failed to resume process %d: %v\n", cmd.N, err)
			return false
		}
		s.printf("Process %d resumed.\n", cmd.N)
	case KindResumeAll:
		ids, err := s.ctrl.ResumeAll()
		if err != nil {
			s.report(err, "Failed to resume processes: %v\n", err)
			return false
		}
		for _, id := range ids {
			s.printf("Process %d resumed.\n", id)
		}
		if len(ids) == 0 {
			s.printf("No suspended processes to resume.\n")
		} else {
			s.printf("%d suspended processes resumed.\n", len(ids))
		}
	case KindInterrupt:
		s.ctrl.Interrupt()
		s.printf("Interrupt requested.\n")
	case KindHelp:
		s.printf("%s", helpText)
	default:
		s.printf("Command not recognized.\n")
	}
	return false
}

func (s *Shell) create(ctx context.Context, n int) {
	res, err := s.ctrl.Create(ctx, n)
	if err != nil {
		s.report(err, "Failed to create processes: %v\n", err)
		return
	}
	for _, f := range res.Failures {
		s.printf("Failed to start process: %v\n", f)
	}
	if res.Abandoned > 0 {
		s.printf("Giving up after repeated launch failures. %d processes not started.\n", res.Abandoned)
	}
	if res.Overflow > 0 {
		s.printf("Maximum number of processes reached. Created %d of %d.\n", len(res.Created), n)
	}
	if res.Started > 0 {
		s.printf("Process %d started.\n", res.Started)
	}
}

func (s *Shell) kill(ctx context.Context, id int) {
	err := s.ctrl.Kill(ctx, id)
	switch {
	case err == nil:
		s.printf("Process %d killed.\n", id)
	case errors.Is(err, scheduler.ErrAlreadyTerminated):
		s.printf("Process %d is already terminated.\n", id)
	case errors.Is(err, scheduler.ErrNotFound):
		s.printf("Process %d not found.\n", id)
	default:
		s.report(err, "Failed to kill process %d: %v\n", id, err)
	}
}

func (s *Shell) report(err error, format string, args ...any) {
	if errors.Is(err, scheduler.ErrClosed) {
		s.printf("Scheduler is shut down.\n")
		return
	}
	s.printf(format, args...)
}

func (s *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}
