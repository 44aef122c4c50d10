package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/procsched/internal/history"
	"github.com/loykin/procsched/internal/metrics"
)

// DefaultKillTimeout bounds how long Kill waits for a worker to be reaped.
const DefaultKillTimeout = 5 * time.Second

// Options configures a Scheduler.
type Options struct {
	Capacity    int
	Launcher    Launcher
	Mode        Mode
	Quantum     time.Duration
	KillTimeout time.Duration
	Logger      *slog.Logger
	History     history.Sink
	RunID       string
	NewTicker   TickerFactory
	Now         func() time.Time
}

// CreateResult summarizes one Create batch.
type CreateResult struct {
	Created  []int
	Overflow int
	Failures []error
	// Abandoned counts requested workers that were never attempted because the
	// launcher kept failing or ctx was done.
	Abandoned int
	// Started is the id promoted by the FCFS dispatch that follows the batch, or 0.
	Started int
}

// Scheduler owns the process table and applies the active dispatch policy.
//
// All table and policy state is confined to a single goroutine (run). Public
// methods queue a command and wait for its reply, so they are safe to call from
// the shell, the HTTP API and signal handlers at the same time.
type Scheduler struct {
	opts Options
	log  *slog.Logger

	// owned by run
	table   *Table
	mode    Mode
	quantum time.Duration
	current int
	ticker  Ticker
	tickC   <-chan time.Time

	cmdChan    chan command
	interrupts chan struct{}
	exits      chan exitEvent
	doneChan   chan struct{}
}

type commandAction int

const (
	actionCreate commandAction = iota
	actionKill
	actionResume
	actionResumeAll
	actionList
	actionSetFCFS
	actionSetRoundRobin
	actionMode
	actionShutdown
)

type command struct {
	action  commandAction
	ctx     context.Context
	n       int
	id      int
	quantum time.Duration
	verbose bool
	reply   chan result
}

type result struct {
	err     error
	started int
	create  CreateResult
	rows    []Row
	ids     []int
	mode    Mode
	quantum time.Duration
}

type exitEvent struct {
	id  int
	err error
}

// New validates opts and starts the scheduler goroutine.
func New(opts Options) (*Scheduler, error) {
	if opts.Launcher == nil {
		return nil, errors.New("scheduler: launcher is required")
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Mode == ModeRoundRobin && opts.Quantum <= 0 {
		return nil, ErrInvalidQuantum
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Scheduler{
		opts:       opts,
		log:        opts.Logger.With("component", "scheduler"),
		table:      NewTable(opts.Capacity),
		mode:       opts.Mode,
		quantum:    opts.Quantum,
		current:    -1,
		cmdChan:    make(chan command),
		interrupts: make(chan struct{}, 1),
		exits:      make(chan exitEvent, opts.Capacity),
		doneChan:   make(chan struct{}),
	}
	if s.mode == ModeRoundRobin {
		s.arm(s.quantum)
	}
	metrics.SetMode(s.mode.String(), ModeFCFS.String(), ModeRoundRobin.String())
	metrics.SetQuantum(s.quantum.Seconds())
	go s.run()
	return s, nil
}

func (s *Scheduler) do(ctx context.Context, cmd command) result {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.ctx = ctx
	cmd.reply = make(chan result, 1)
	select {
	case s.cmdChan <- cmd:
		// cmdChan is unbuffered: the scheduler goroutine took it and will reply.
		return <-cmd.reply
	case <-s.doneChan:
		return result{err: ErrClosed}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

// Create launches up to n workers and registers them as Ready. Workers beyond
// the table capacity are reported in Overflow; launch failures do not consume
// an id. After as many consecutive launch failures as there were free slots,
// or once ctx is done, the rest of the batch is reported in Abandoned. In FCFS
// mode one dispatch runs after the batch.
func (s *Scheduler) Create(ctx context.Context, n int) (CreateResult, error) {
	r := s.do(ctx, command{action: actionCreate, n: n})
	return r.create, r.err
}

// Kill terminates worker id and waits for it to be reaped. No successor is promoted.
func (s *Scheduler) Kill(ctx context.Context, id int) error {
	return s.do(ctx, command{action: actionKill, id: id}).err
}

// Resume continues a Suspended worker and marks it Ready.
func (s *Scheduler) Resume(id int) error {
	return s.do(context.Background(), command{action: actionResume, id: id}).err
}

// ResumeAll resumes every Suspended worker and returns their ids in table order.
func (s *Scheduler) ResumeAll() ([]int, error) {
	r := s.do(context.Background(), command{action: actionResumeAll})
	return r.ids, r.err
}

// List returns the table in insertion order, terminated workers included.
func (s *Scheduler) List() []Row {
	return s.do(context.Background(), command{action: actionList}).rows
}

// ListVerbose is List plus the OS status reported by each worker.
func (s *Scheduler) ListVerbose() []Row {
	return s.do(context.Background(), command{action: actionList, verbose: true}).rows
}

// SetFCFS disarms the quantum timer, selects FCFS and runs one dispatch. It
// returns the id of the worker that dispatch started, or 0.
func (s *Scheduler) SetFCFS() (int, error) {
	r := s.do(context.Background(), command{action: actionSetFCFS})
	return r.started, r.err
}

// SetRoundRobin selects Round-Robin with quantum q and (re)arms the timer.
func (s *Scheduler) SetRoundRobin(q time.Duration) error {
	if q <= 0 {
		return ErrInvalidQuantum
	}
	return s.do(context.Background(), command{action: actionSetRoundRobin, quantum: q}).err
}

// Mode reports the active policy and quantum.
func (s *Scheduler) Mode() (Mode, time.Duration) {
	r := s.do(context.Background(), command{action: actionMode})
	return r.mode, r.quantum
}

// Interrupt suspends the Running worker, if any. It never blocks; interrupts
// arriving before the previous one is handled are coalesced.
func (s *Scheduler) Interrupt() {
	select {
	case s.interrupts <- struct{}{}:
	default:
	}
}

// Shutdown terminates every live worker and stops the scheduler. Later calls
// on s return ErrClosed.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reply := make(chan result, 1)
	select {
	case s.cmdChan <- command{action: actionShutdown, ctx: ctx, reply: reply}:
		return (<-reply).err
	case <-s.doneChan:
		return nil
	}
}

// Done is closed once the scheduler goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.doneChan }

func (s *Scheduler) run() {
	defer close(s.doneChan)
	defer s.disarm()

	for {
		select {
		case cmd := <-s.cmdChan:
			if cmd.action == actionShutdown {
				cmd.reply <- result{err: s.shutdown(cmd.ctx)}
				return
			}
			cmd.reply <- s.handle(cmd)

		case <-s.interrupts:
			s.interrupt()

		case <-s.tickC:
			s.preempt()

		case ev := <-s.exits:
			s.exited(ev)
		}
	}
}

func (s *Scheduler) handle(cmd command) result {
	switch cmd.action {
	case actionCreate:
		return result{create: s.create(cmd.ctx, cmd.n)}
	case actionKill:
		return result{err: s.kill(cmd.ctx, cmd.id)}
	case actionResume:
		return result{err: s.resume(cmd.id)}
	case actionResumeAll:
		return result{ids: s.resumeAll()}
	case actionList:
		return result{rows: s.table.Rows(cmd.verbose)}
	case actionSetFCFS:
		s.setMode(ModeFCFS, s.quantum)
		return result{started: s.dispatchFCFS()}
	case actionSetRoundRobin:
		s.setMode(ModeRoundRobin, cmd.quantum)
		return result{}
	case actionMode:
		return result{mode: s.mode, quantum: s.quantum}
	default:
		return result{err: fmt.Errorf("unknown scheduler action %d", cmd.action)}
	}
}

func (s *Scheduler) create(ctx context.Context, n int) CreateResult {
	var res CreateResult
	// A failed launch takes no slot, so give up after one failure per free
	// slot in a row. This bounds a batch against a launcher that always fails.
	maxFailures := max(s.table.Cap()-s.table.Len(), 1)
	failures := 0
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			res.Abandoned = n - i
			s.log.Warn("create canceled", "requested", n, "abandoned", res.Abandoned, "error", err)
			break
		}
		if s.table.Full() {
			res.Overflow = n - i
			metrics.AddCreateRejected(res.Overflow)
			s.log.Warn("process table full", "requested", n, "rejected", res.Overflow)
			break
		}
		if failures >= maxFailures {
			res.Abandoned = n - i
			s.log.Error("giving up on create", "consecutive_failures", failures, "abandoned", res.Abandoned)
			break
		}
		id := s.table.NextID()
		w, err := s.opts.Launcher.Launch(ctx, id)
		if err != nil {
			failures++
			metrics.IncLaunchFailure()
			s.log.Error("launch worker failed", "id", id, "error", err)
			res.Failures = append(res.Failures, fmt.Errorf("launch worker %d: %w", id, err))
			continue
		}
		failures = 0
		e, err := s.table.Add(w, s.opts.Now())
		if err != nil {
			// Full was checked above; the worker must not leak.
			_ = w.Terminate(ctx)
			res.Failures = append(res.Failures, err)
			continue
		}
		res.Created = append(res.Created, e.ID)
		metrics.IncCreated()
		s.record(history.EventCreate, e, StateReady, StateReady, "created")
		s.log.Info("worker created", "id", e.ID, "pid", w.PID())
		go s.watch(e.ID, w)
	}
	s.refreshGauges()
	if s.mode == ModeFCFS {
		res.Started = s.dispatchFCFS()
	}
	return res
}

// watch reports the worker's exit to the scheduler goroutine.
func (s *Scheduler) watch(id int, w Worker) {
	select {
	case <-w.Done():
	case <-s.doneChan:
		return
	}
	select {
	case s.exits <- exitEvent{id: id, err: w.ExitErr()}:
	case <-s.doneChan:
	}
}

func (s *Scheduler) exited(ev exitEvent) {
	i := s.table.IndexOf(ev.id)
	if i < 0 {
		return
	}
	e := s.table.At(i)
	if e.ExitErr == nil {
		e.ExitErr = ev.err
	}
	if e.State == StateTerminated {
		return
	}
	s.log.Info("worker exited", "id", e.ID, "pid", e.Worker.PID(), "error", ev.err)
	s.setState(i, StateTerminated, "exited")
	if s.current == i {
		s.current = -1
	}
	if s.mode == ModeFCFS {
		s.dispatchFCFS()
	}
}

func (s *Scheduler) kill(ctx context.Context, id int) error {
	i := s.table.IndexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	e := s.table.At(i)
	if e.State == StateTerminated {
		return fmt.Errorf("%w: %d", ErrAlreadyTerminated, id)
	}
	kctx, cancel := context.WithTimeout(ctx, s.opts.KillTimeout)
	defer cancel()
	if err := e.Worker.Terminate(kctx); err != nil {
		s.log.Error("kill worker failed", "id", id, "pid", e.Worker.PID(), "error", err)
		return fmt.Errorf("kill worker %d: %w", id, err)
	}
	s.setState(i, StateTerminated, "kill")
	if s.current == i {
		s.current = -1
	}
	s.log.Info("worker killed", "id", id, "pid", e.Worker.PID())
	return nil
}

func (s *Scheduler) resume(id int) error {
	i := s.table.IndexOf(id)
	if i < 0 || s.table.At(i).State != StateSuspended {
		return fmt.Errorf("%w: %d", ErrNotSuspended, id)
	}
	e := s.table.At(i)
	if err := e.Worker.Continue(); err != nil {
		return fmt.Errorf("resume worker %d: %w", id, err)
	}
	s.setState(i, StateReady, "resume")
	return nil
}

func (s *Scheduler) resumeAll() []int {
	var ids []int
	for i := 0; i < s.table.Len(); i++ {
		e := s.table.At(i)
		if e.State != StateSuspended {
			continue
		}
		if err := e.Worker.Continue(); err != nil {
			s.log.Warn("resume worker failed", "id", e.ID, "error", err)
			continue
		}
		s.setState(i, StateReady, "resume")
		ids = append(ids, e.ID)
	}
	return ids
}

func (s *Scheduler) setMode(m Mode, q time.Duration) {
	prev := s.mode
	s.mode = m
	s.quantum = q
	if m == ModeRoundRobin {
		s.arm(q)
	} else {
		s.disarm()
	}
	metrics.SetMode(m.String(), ModeFCFS.String(), ModeRoundRobin.String())
	metrics.SetQuantum(q.Seconds())
	s.log.Info("scheduling mode set", "mode", m.String(), "previous", prev.String(), "quantum", q)
	s.emit(history.Event{
		Type:       history.EventMode,
		OccurredAt: s.opts.Now().UTC(),
		Record:     history.Record{RunID: s.opts.RunID, From: prev.String(), To: m.String(), Reason: fmt.Sprintf("quantum=%s", q), Mode: m.String()},
	})
}

func (s *Scheduler) arm(q time.Duration) {
	s.disarm()
	s.ticker = s.opts.NewTicker(q)
	s.tickC = s.ticker.C()
}

func (s *Scheduler) disarm() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.ticker = nil
	s.tickC = nil
}

func (s *Scheduler) shutdown(ctx context.Context) error {
	s.disarm()
	var errs []error
	for i := 0; i < s.table.Len(); i++ {
		e := s.table.At(i)
		if e.State == StateTerminated {
			continue
		}
		kctx, cancel := context.WithTimeout(ctx, s.opts.KillTimeout)
		err := e.Worker.Terminate(kctx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("kill worker %d: %w", e.ID, err))
			continue
		}
		s.setState(i, StateTerminated, "shutdown")
	}
	s.current = -1
	s.log.Info("scheduler stopped", "workers", s.table.Len())
	return errors.Join(errs...)
}
