package scheduler

import (
	"context"

	"github.com/loykin/procsched/internal/history"
	"github.com/loykin/procsched/internal/metrics"
)

// dispatchFCFS promotes the first Ready worker in insertion order and returns
// its id, or 0. At most one worker is promoted per call, and none while another
// is Running.
func (s *Scheduler) dispatchFCFS() int {
	if s.table.running() >= 0 {
		return 0
	}
	for i := 0; i < s.table.Len(); i++ {
		e := s.table.At(i)
		if e.State != StateReady {
			continue
		}
		if err := e.Worker.Continue(); err != nil {
			s.log.Warn("continue worker failed", "id", e.ID, "pid", e.Worker.PID(), "error", err)
			continue
		}
		s.setState(i, StateRunning, "fcfs")
		s.current = i
		metrics.IncDispatch("fcfs")
		s.log.Info("worker started", "id", e.ID, "pid", e.Worker.PID())
		return e.ID
	}
	return 0
}

// preempt handles one quantum expiry: the Running worker is suspended and the
// next Ready or Suspended worker after it, wrapping around, gets the CPU.
func (s *Scheduler) preempt() {
	if s.mode != ModeRoundRobin {
		return
	}
	if s.current >= 0 {
		e := s.table.At(s.current)
		if e.State == StateRunning {
			if err := e.Worker.Stop(); err != nil {
				s.log.Warn("stop worker failed", "id", e.ID, "pid", e.Worker.PID(), "error", err)
			}
			s.setState(s.current, StateSuspended, "quantum")
			metrics.IncPreemption()
		}
	}

	n := s.table.Len()
	next := s.current
	for attempts := 0; attempts < n; attempts++ {
		next = (next + 1) % n
		e := s.table.At(next)
		if !e.State.eligible() {
			continue
		}
		if err := e.Worker.Continue(); err != nil {
			s.log.Warn("continue worker failed", "id", e.ID, "pid", e.Worker.PID(), "error", err)
			continue
		}
		s.setState(next, StateRunning, "quantum")
		s.current = next
		metrics.IncDispatch("rr")
		metrics.IncTick(true)
		s.log.Debug("quantum dispatch", "id", e.ID, "pid", e.Worker.PID())
		return
	}
	s.current = -1
	metrics.IncTick(false)
}

// interrupt suspends the Running worker without choosing a successor.
func (s *Scheduler) interrupt() {
	if s.current < 0 || s.table.At(s.current).State != StateRunning {
		metrics.IncInterrupt(false)
		return
	}
	e := s.table.At(s.current)
	if err := e.Worker.Stop(); err != nil {
		s.log.Warn("stop worker failed", "id", e.ID, "pid", e.Worker.PID(), "error", err)
	}
	s.setState(s.current, StateSuspended, "interrupt")
	s.current = -1
	metrics.IncInterrupt(true)
	s.log.Info("worker suspended", "id", e.ID, "pid", e.Worker.PID())
}

// setState applies a table transition and records it. Rejected transitions are
// logged and leave the table unchanged.
func (s *Scheduler) setState(i int, to State, reason string) {
	e := s.table.At(i)
	from, err := s.table.Set(i, to)
	if err != nil {
		s.log.Error("state transition rejected", "id", e.ID, "from", from.String(), "to", to.String(), "error", err)
		return
	}
	if from == to {
		return
	}
	metrics.RecordTransition(from.String(), to.String())
	s.refreshGauges()
	s.record(history.EventTransition, e, from, to, reason)
	s.log.Debug("state transition", "id", e.ID, "pid", e.Worker.PID(), "from", from.String(), "to", to.String(), "reason", reason)
}

func (s *Scheduler) refreshGauges() {
	for _, st := range []State{StateReady, StateRunning, StateSuspended, StateTerminated} {
		metrics.SetWorkers(st.String(), s.table.Count(st))
	}
}

func (s *Scheduler) record(t history.EventType, e *Entry, from, to State, reason string) {
	s.emit(history.Event{
		Type:       t,
		OccurredAt: s.opts.Now().UTC(),
		Record: history.Record{
			RunID:    s.opts.RunID,
			WorkerID: e.ID,
			PID:      e.Worker.PID(),
			From:     from.String(),
			To:       to.String(),
			Reason:   reason,
			Mode:     s.mode.String(),
		},
	})
}

func (s *Scheduler) emit(ev history.Event) {
	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.Send(context.Background(), ev); err != nil {
		s.log.Debug("history event not recorded", "type", string(ev.Type), "error", err)
	}
}
