package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeWorker records the signals it receives instead of touching the OS.
type fakeWorker struct {
	pid int

	mu          sync.Mutex
	signals     []string
	stopErr     error
	continueErr error
	hang        bool // Terminate waits for ctx instead of exiting

	done    chan struct{}
	once    sync.Once
	exitErr error
}

func newFakeWorker(pid int) *fakeWorker {
	return &fakeWorker{pid: pid, done: make(chan struct{})}
}

func (f *fakeWorker) PID() int { return f.pid }

func (f *fakeWorker) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, "STOP")
	return f.stopErr
}

func (f *fakeWorker) Continue() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, "CONT")
	return f.continueErr
}

func (f *fakeWorker) Terminate(ctx context.Context) error {
	f.mu.Lock()
	f.signals = append(f.signals, "KILL")
	hang := f.hang
	f.mu.Unlock()
	if !hang {
		f.exit(errors.New("signal: killed"))
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeWorker) Done() <-chan struct{} { return f.done }

func (f *fakeWorker) ExitErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitErr
}

// exit simulates the process ending on its own.
func (f *fakeWorker) exit(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.exitErr = err
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeWorker) Signals() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signals...)
}

func (f *fakeWorker) setContinueErr(err error) {
	f.mu.Lock()
	f.continueErr = err
	f.mu.Unlock()
}

// fakeLauncher hands out fake workers with pid 1000+id.
type fakeLauncher struct {
	mu      sync.Mutex
	workers map[int]*fakeWorker
	failIDs map[int]int // id -> remaining failures
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{workers: map[int]*fakeWorker{}, failIDs: map[int]int{}}
}

func (l *fakeLauncher) Launch(_ context.Context, id int) (Worker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := l.failIDs[id]; n > 0 {
		l.failIDs[id] = n - 1
		return nil, errors.New("fork: resource temporarily unavailable")
	}
	w := newFakeWorker(1000 + id)
	l.workers[id] = w
	return w, nil
}

func (l *fakeLauncher) failNext(id, times int) {
	l.mu.Lock()
	l.failIDs[id] = times
	l.mu.Unlock()
}

func (l *fakeLauncher) worker(id int) *fakeWorker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers[id]
}

// manualTicker fires only when a test sends on it.
type manualTicker struct {
	c       chan time.Time
	period  time.Duration
	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.c }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (f *tickerFactory) New(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time), period: d}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *tickerFactory) last() *manualTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		return nil
	}
	return f.tickers[len(f.tickers)-1]
}

// tick delivers one quantum expiry. The send returns once the scheduler
// goroutine has taken it, so a following List observes the result.
func (f *tickerFactory) tick(t *testing.T) {
	t.Helper()
	mt := f.last()
	require.NotNil(t, mt, "no ticker armed")
	select {
	case mt.c <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not take the tick")
	}
}
