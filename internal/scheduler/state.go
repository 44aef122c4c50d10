package scheduler

import (
	"fmt"
	"strings"
)

// State is the scheduling state of one worker.
type State int32

const (
	StateReady State = iota
	StateRunning
	StateSuspended
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateSuspended:
		return "Suspended"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// MarshalText lets rows render their state label in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// eligible reports whether Round-Robin may hand the CPU to a worker in this state.
func (s State) eligible() bool { return s == StateReady || s == StateSuspended }

// Mode is the active dispatch policy.
type Mode int32

const (
	ModeFCFS Mode = iota
	ModeRoundRobin
)

func (m Mode) String() string {
	switch m {
	case ModeFCFS:
		return "FCFS"
	case ModeRoundRobin:
		return "RoundRobin"
	default:
		return "Unknown"
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseMode accepts "fcfs", "rr", "roundrobin" and "round-robin" in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fcfs", "":
		return ModeFCFS, nil
	case "rr", "roundrobin", "round-robin":
		return ModeRoundRobin, nil
	default:
		return ModeFCFS, fmt.Errorf("unknown scheduling mode %q (want fcfs or rr)", s)
	}
}
