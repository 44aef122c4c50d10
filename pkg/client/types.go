package client

import (
	"fmt"
	"time"
)

// Worker is one row of the process table.
type Worker struct {
	PID       int       `json:"pid"`
	ID        int       `json:"id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	OSStatus  string    `json:"os_status,omitempty"`
	ExitError string    `json:"exit_error,omitempty"`
}

// CreateResult reports the outcome of a create request.
type CreateResult struct {
	Created   []int    `json:"created"`
	Overflow  int      `json:"overflow"`
	Abandoned int      `json:"abandoned,omitempty"`
	Started   int      `json:"started,omitempty"`
	Failures  []string `json:"failures,omitempty"`
}

// ModeInfo is the active scheduling policy.
type ModeInfo struct {
	Mode    string `json:"mode"`
	Quantum string `json:"quantum,omitempty"`
	Started int    `json:"started,omitempty"`
}

type modeRequest struct {
	Mode    string `json:"mode"`
	Quantum string `json:"quantum,omitempty"`
}

type resumeAllResponse struct {
	Resumed int   `json:"resumed"`
	IDs     []int `json:"ids,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}
