package procsched

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/procsched/internal/config"
	"github.com/loykin/procsched/internal/history"
	"github.com/loykin/procsched/internal/metrics"
	"github.com/loykin/procsched/internal/process"
	"github.com/loykin/procsched/internal/scheduler"
	iapi "github.com/loykin/procsched/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Scheduler = scheduler.Scheduler

type Options = scheduler.Options

type CreateResult = scheduler.CreateResult

type Row = scheduler.Row

type State = scheduler.State

type Mode = scheduler.Mode

type Worker = scheduler.Worker

type Launcher = scheduler.Launcher

type LauncherFunc = scheduler.LauncherFunc

type Config = cfg.Config

type HistorySink = history.Sink

type HistoryEvent = history.Event

const (
	StateReady      = scheduler.StateReady
	StateRunning    = scheduler.StateRunning
	StateSuspended  = scheduler.StateSuspended
	StateTerminated = scheduler.StateTerminated

	ModeFCFS       = scheduler.ModeFCFS
	ModeRoundRobin = scheduler.ModeRoundRobin
)

var (
	ErrNotFound          = scheduler.ErrNotFound
	ErrAlreadyTerminated = scheduler.ErrAlreadyTerminated
	ErrNotSuspended      = scheduler.ErrNotSuspended
	ErrInvalidQuantum    = scheduler.ErrInvalidQuantum
	ErrClosed            = scheduler.ErrClosed
)

// New starts a scheduler with a custom launcher.
func New(opts Options) (*Scheduler, error) { return scheduler.New(opts) }

func LoadConfig(path string) (*Config, error) { return cfg.LoadFile(path) }

// OSOptions derives scheduler options from c with an OS process launcher.
// Logger, History and RunID are left for the caller.
func OSOptions(c *Config) (Options, error) {
	wenv, err := c.WorkerEnv()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Capacity:    c.Scheduler.Capacity,
		Mode:        c.SchedulerMode(),
		Quantum:     c.Scheduler.Quantum,
		KillTimeout: c.Scheduler.KillTimeout,
		Launcher:    &process.Launcher{Spec: c.WorkerSpec(), Env: wenv},
	}, nil
}

// NewOSScheduler starts a scheduler whose workers are OS processes built from c.
func NewOSScheduler(c *Config) (*Scheduler, error) {
	opts, err := OSOptions(c)
	if err != nil {
		return nil, err
	}
	return scheduler.New(opts)
}

// NewHTTPServer builds (but does not start) the HTTP control API for s.
func NewHTTPServer(addr, basePath string, s *Scheduler) *http.Server {
	return iapi.NewServer(addr, basePath, s)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer builds an HTTP server exposing /metrics from the default registry.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
