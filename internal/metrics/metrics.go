package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procsched",
			Subsystem: "worker",
			Name:      "state_transitions_total",
			Help:      "Number of worker state transitions.",
		}, []string{"from", "to"},
	)
	workersByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "procsched",
			Subsystem: "worker",
			Name:      "count",
			Help:      "Current number of table entries per state.",
		}, []string{"state"},
	)
	workersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procsched",
			Subsystem: "worker",
			Name:      "created_total",
			Help:      "Number of workers launched and registered.",
		},
	)
	launchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procsched",
			Subsystem: "worker",
			Name:      "launch_failures_total",
			Help:      "Number of worker launches that failed to start.",
		},
	)
	createRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procsched",
			Subsystem: "worker",
			Name:      "create_rejected_total",
			Help:      "Number of requested workers rejected because the table was full.",
		},
	)
	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procsched",
			Subsystem: "scheduler",
			Name:      "dispatches_total",
			Help:      "Number of promotions to Running, by policy.",
		}, []string{"policy"},
	)
	preemptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procsched",
			Subsystem: "scheduler",
			Name:      "preemptions_total",
			Help:      "Number of Running workers suspended by a Round-Robin quantum expiry.",
		},
	)
	interrupts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procsched",
			Subsystem: "scheduler",
			Name:      "interrupts_total",
			Help:      "Manual interrupts, by whether a worker was suspended.",
		}, []string{"result"},
	)
	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procsched",
			Subsystem: "scheduler",
			Name:      "quantum_ticks_total",
			Help:      "Round-Robin quantum expiries, by outcome (dispatched, idle).",
		}, []string{"outcome"},
	)
	currentMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "procsched",
			Subsystem: "scheduler",
			Name:      "mode",
			Help:      "Active scheduling policy (1 = active).",
		}, []string{"mode"},
	)
	quantumSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procsched",
			Subsystem: "scheduler",
			Name:      "quantum_seconds",
			Help:      "Configured Round-Robin quantum.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		stateTransitions, workersByState, workersCreated, launchFailures, createRejected,
		dispatches, preemptions, interrupts, ticks, currentMode, quantumSeconds,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Helpers below no-op until Register has succeeded.

func RecordTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetWorkers(state string, n int) {
	if regOK.Load() {
		workersByState.WithLabelValues(state).Set(float64(n))
	}
}

func IncCreated() {
	if regOK.Load() {
		workersCreated.Inc()
	}
}

func IncLaunchFailure() {
	if regOK.Load() {
		launchFailures.Inc()
	}
}

func AddCreateRejected(n int) {
	if regOK.Load() && n > 0 {
		createRejected.Add(float64(n))
	}
}

func IncDispatch(policy string) {
	if regOK.Load() {
		dispatches.WithLabelValues(policy).Inc()
	}
}

func IncPreemption() {
	if regOK.Load() {
		preemptions.Inc()
	}
}

func IncInterrupt(suspended bool) {
	if regOK.Load() {
		result := "noop"
		if suspended {
			result = "suspended"
		}
		interrupts.WithLabelValues(result).Inc()
	}
}

func IncTick(dispatched bool) {
	if regOK.Load() {
		outcome := "idle"
		if dispatched {
			outcome = "dispatched"
		}
		ticks.WithLabelValues(outcome).Inc()
	}
}

// SetMode marks mode as the only active policy.
func SetMode(mode string, all ...string) {
	if regOK.Load() {
		for _, m := range all {
			currentMode.WithLabelValues(m).Set(0)
		}
		currentMode.WithLabelValues(mode).Set(1)
	}
}

func SetQuantum(seconds float64) {
	if regOK.Load() {
		quantumSeconds.Set(seconds)
	}
}
