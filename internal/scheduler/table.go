package scheduler

import (
	"fmt"
	"time"
)

// DefaultCapacity is the number of slots in the process table.
const DefaultCapacity = 10

// Entry is one slot of the process table.
type Entry struct {
	ID        int
	Worker    Worker
	State     State
	CreatedAt time.Time
	ExitErr   error
}

// Row is the read-only view of an entry returned by listings.
type Row struct {
	PID       int       `json:"pid"`
	ID        int       `json:"id"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	OSStatus  string    `json:"os_status,omitempty"`
	ExitError string    `json:"exit_error,omitempty"`
}

// Table is the fixed-capacity, insertion-ordered registry of workers.
// It is owned by the scheduler goroutine and is not safe for concurrent use.
//
// Invariants: ids strictly increase and are never reused; at most one entry is
// Running; Terminated is final; Len never exceeds Cap.
type Table struct {
	entries  []*Entry
	capacity int
	nextID   int
}

func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{entries: make([]*Entry, 0, capacity), capacity: capacity, nextID: 1}
}

func (t *Table) Cap() int   { return t.capacity }
func (t *Table) Len() int   { return len(t.entries) }
func (t *Table) Full() bool { return len(t.entries) >= t.capacity }

// NextID is the logical id the next successful Add will receive.
func (t *Table) NextID() int { return t.nextID }

func (t *Table) At(i int) *Entry { return t.entries[i] }

// Add registers a started worker as Ready.
func (t *Table) Add(w Worker, now time.Time) (*Entry, error) {
	if t.Full() {
		return nil, ErrTableFull
	}
	e := &Entry{ID: t.nextID, Worker: w, State: StateReady, CreatedAt: now}
	t.entries = append(t.entries, e)
	t.nextID++
	return e, nil
}

// IndexOf returns the slot index for a logical id, or -1.
func (t *Table) IndexOf(id int) int {
	for i, e := range t.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Set moves slot i to state to and returns the previous state.
func (t *Table) Set(i int, to State) (State, error) {
	e := t.entries[i]
	from := e.State
	if from == StateTerminated && to != StateTerminated {
		return from, fmt.Errorf("%w: worker %d is terminated", ErrInvalidTransition, e.ID)
	}
	if to == StateRunning && from != StateRunning {
		if r := t.running(); r >= 0 {
			return from, fmt.Errorf("%w: worker %d is already running", ErrInvalidTransition, t.entries[r].ID)
		}
	}
	e.State = to
	return from, nil
}

// Count returns how many entries are in state st.
func (t *Table) Count(st State) int {
	n := 0
	for _, e := range t.entries {
		if e.State == st {
			n++
		}
	}
	return n
}

func (t *Table) running() int {
	for i, e := range t.entries {
		if e.State == StateRunning {
			return i
		}
	}
	return -1
}

// Rows snapshots the table in insertion order. When verbose, workers that can
// report their OS status are asked for it.
func (t *Table) Rows(verbose bool) []Row {
	rows := make([]Row, 0, len(t.entries))
	for _, e := range t.entries {
		r := Row{PID: e.Worker.PID(), ID: e.ID, State: e.State, CreatedAt: e.CreatedAt}
		if e.ExitErr != nil {
			r.ExitError = e.ExitErr.Error()
		}
		if verbose {
			if rep, ok := e.Worker.(OSStatusReporter); ok {
				r.OSStatus = rep.OSStatus()
			}
		}
		rows = append(rows, r)
	}
	return rows
}
