package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ErrNotStarted is returned by signal methods before Start succeeded.
var ErrNotStarted = errors.New("process not started")

// Process is one launched worker. It satisfies scheduler.Worker.
//
// A single monitor goroutine owns cmd.Wait; everyone else observes the exit
// through Done.
type Process struct {
	spec Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	exitErr   error
	outCloser io.WriteCloser
	errCloser io.WriteCloser

	waitDone chan struct{}
}

func New(spec Spec) *Process {
	return &Process{spec: spec, waitDone: make(chan struct{})}
}

// configureCmd builds the command for spec with mergedEnv, working dir, process
// group and output destinations. Without file logging the worker shares the
// controller's terminal.
func (p *Process) configureCmd(mergedEnv []string) (*exec.Cmd, error) {
	cmd := p.spec.BuildCommand()
	if p.spec.WorkDir != "" {
		cmd.Dir = p.spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	configureSysProcAttr(cmd)

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if p.spec.Log.File.Enabled() {
		if p.spec.Log.File.Dir != "" {
			if err := os.MkdirAll(p.spec.Log.File.Dir, 0o750); err != nil {
				return nil, fmt.Errorf("create worker log dir: %w", err)
			}
		}
		outW, errW, err := p.spec.Log.ProcessWriters(p.spec.Name)
		if err != nil {
			return nil, err
		}
		p.outCloser, p.errCloser = outW, errW
		if outW != nil {
			cmd.Stdout = outW
		}
		if errW != nil {
			cmd.Stderr = errW
		}
	}
	return cmd, nil
}

// Start launches the worker and its monitor goroutine.
func (p *Process) Start(mergedEnv []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return fmt.Errorf("process %s already started", p.spec.Name)
	}
	cmd, err := p.configureCmd(mergedEnv)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		p.closeWritersLocked()
		return err
	}
	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.startedAt = time.Now()
	go p.monitor(cmd)
	return nil
}

func (p *Process) monitor(cmd *exec.Cmd) {
	err := cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.closeWritersLocked()
	p.mu.Unlock()
	close(p.waitDone)
}

func (p *Process) closeWritersLocked() {
	if p.outCloser != nil {
		_ = p.outCloser.Close()
		p.outCloser = nil
	}
	if p.errCloser != nil {
		_ = p.errCloser.Close()
		p.errCloser = nil
	}
}

func (p *Process) Name() string { return p.spec.Name }

func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *Process) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

func (p *Process) signal(sigName string, send func(pid int) error) error {
	pid := p.PID()
	if pid == 0 {
		return ErrNotStarted
	}
	if err := send(pid); err != nil {
		return fmt.Errorf("%s pid %d: %w", sigName, pid, err)
	}
	return nil
}

// Stop freezes the worker's process group with SIGSTOP.
func (p *Process) Stop() error {
	return p.signal("SIGSTOP", func(pid int) error { return signalGroup(pid, stopSignal()) })
}

// Continue resumes the worker's process group with SIGCONT.
func (p *Process) Continue() error {
	return p.signal("SIGCONT", func(pid int) error { return signalGroup(pid, continueSignal()) })
}

// Terminate sends SIGKILL to the process group and waits until the monitor has
// reaped the worker or ctx ends. A worker that already exited is not an error.
func (p *Process) Terminate(ctx context.Context) error {
	select {
	case <-p.waitDone:
		return nil
	default:
	}
	if err := p.signal("SIGKILL", func(pid int) error { return signalGroup(pid, killSignal()) }); err != nil {
		if errors.Is(err, ErrNotStarted) {
			return err
		}
		// The group may already be gone while the monitor is still reaping.
		select {
		case <-p.waitDone:
			return nil
		default:
		}
		return err
	}
	select {
	case <-p.waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed after cmd.Wait returned.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

// ExitErr is the wait error once Done is closed; nil for a clean exit.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// OSStatus reports the kernel's view of the worker (running, sleep, stop,
// zombie), or "exited" once reaped.
func (p *Process) OSStatus() string {
	select {
	case <-p.waitDone:
		return "exited"
	default:
	}
	pid := p.PID()
	if pid == 0 {
		return "unknown"
	}
	gp, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return "unknown"
	}
	st, err := gp.Status()
	if err != nil || len(st) == 0 {
		return "unknown"
	}
	return strings.Join(st, ",")
}
