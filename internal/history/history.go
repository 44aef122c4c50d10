package history

import (
	"context"
	"time"
)

// EventType defines the kind of scheduler event.
type EventType string

const (
	EventCreate     EventType = "create"
	EventTransition EventType = "transition"
	EventMode       EventType = "mode"
)

// Record describes one worker state change, or a policy switch when WorkerID is 0.
type Record struct {
	RunID    string `json:"run_id"`
	WorkerID int    `json:"worker_id"`
	PID      int    `json:"pid"`
	From     string `json:"from"`
	To       string `json:"to"`
	Reason   string `json:"reason"`
	Mode     string `json:"mode"`
}

// Event is exported to external audit/analytics systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
