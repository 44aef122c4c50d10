package scheduler

import "context"

// Worker is one controllable execution unit. internal/process provides the OS
// implementation; tests substitute an in-memory fake.
type Worker interface {
	// PID is the OS handle shown in listings.
	PID() int
	// Stop freezes the worker (SIGSTOP).
	Stop() error
	// Continue resumes a frozen worker (SIGCONT). It is harmless on a live one.
	Continue() error
	// Terminate kills the worker unconditionally and blocks until it is reaped or ctx ends.
	Terminate(ctx context.Context) error
	// Done is closed once the worker has exited and been reaped.
	Done() <-chan struct{}
	// ExitErr reports the wait status after Done is closed.
	ExitErr() error
}

// OSStatusReporter is implemented by workers that can report the kernel's view of
// their process (e.g. "running", "stop", "zombie").
type OSStatusReporter interface {
	OSStatus() string
}

// Launcher starts a new worker for the given logical id.
type Launcher interface {
	Launch(ctx context.Context, id int) (Worker, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, id int) (Worker, error)

func (f LauncherFunc) Launch(ctx context.Context, id int) (Worker, error) { return f(ctx, id) }
