package process

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/loykin/procsched/internal/env"
	"github.com/loykin/procsched/internal/scheduler"
)

// Launcher starts OS worker processes from a shared Spec.
type Launcher struct {
	Spec   Spec
	Env    *env.Env
	Logger *slog.Logger
}

var _ scheduler.Launcher = (*Launcher)(nil)

// Launch starts one worker for logical id. The worker is named "<spec name>-<id>"
// and receives PROCSCHED_WORKER_ID in its environment.
func (l *Launcher) Launch(ctx context.Context, id int) (scheduler.Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec := l.Spec
	if spec.Name == "" {
		spec.Name = "task"
	}
	spec.Name = fmt.Sprintf("%s-%d", spec.Name, id)
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	e := l.Env
	if e == nil {
		e = env.New(true, nil)
	}
	overrides := append(append([]string(nil), spec.Env...), "PROCSCHED_WORKER_ID="+strconv.Itoa(id))
	p := New(spec)
	if err := p.Start(e.Merge(overrides)); err != nil {
		return nil, fmt.Errorf("start %q: %w", spec.Command, err)
	}
	if l.Logger != nil {
		l.Logger.Debug("worker process started", "component", "launcher", "name", spec.Name, "pid", p.PID())
	}
	return p, nil
}
