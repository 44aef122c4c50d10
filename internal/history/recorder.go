package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDropped is returned by Recorder.Send when the buffer is full.
var ErrDropped = errors.New("history buffer full, event dropped")

const sendTimeout = 5 * time.Second

// Recorder fans events out to sinks from its own goroutine so that callers
// never wait on database or network I/O. It implements Sink.
type Recorder struct {
	sinks   []Sink
	log     *slog.Logger
	ch      chan Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewRecorder(log *slog.Logger, buffer int, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		sinks: append([]Sink(nil), sinks...),
		log:   log.With("component", "history"),
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// Send enqueues e without blocking.
func (r *Recorder) Send(_ context.Context, e Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}
	select {
	case r.ch <- e:
		return nil
	default:
		r.dropped.Add(1)
		return ErrDropped
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) loop() {
	defer close(r.done)
	for e := range r.ch {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			if err := s.Send(ctx, e); err != nil {
				r.log.Warn("history sink failed", "event", e.Type, "worker", e.Record.WorkerID, "error", err)
			}
			cancel()
		}
	}
}

// Close flushes queued events (until ctx ends) and closes sinks that are io.Closers.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	var err error
	select {
	case <-r.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	return err
}
