// Package metrics exports engine runs as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rustyeddy/rebalancer/engine"
	"github.com/rustyeddy/rebalancer/risk"
)

const namespace = "rebalancer"

// Metrics implements engine.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	// RunsTotal counts finished runs by job, status and reason.
	RunsTotal *prometheus.CounterVec

	// OutcomesTotal counts per-symbol outcomes.
	OutcomesTotal *prometheus.CounterVec

	// SubmittedNotional sums the dollar value of submitted orders.
	SubmittedNotional *prometheus.CounterVec

	// BreakerTrips counts runs that tripped the daily loss breaker.
	BreakerTrips prometheus.Counter

	// Halted is 1 while the last run saw the breaker engaged.
	Halted prometheus.Gauge

	RunDuration *prometheus.HistogramVec

	// LastRun is the unix time of the last finished run per job.
	LastRun *prometheus.GaugeVec
}

// New registers the collectors on a private registry. Pass nil to get a
// fresh one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "runs_total",
				Help:      "Total number of finished runs",
			},
			[]string{"job", "status", "reason"},
		),
		OutcomesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "outcomes_total",
				Help:      "Total number of per-symbol outcomes",
			},
			[]string{"job", "status"}, // submitted, error, hold, skipped_*
		),
		SubmittedNotional: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "submitted_notional_usd_total",
				Help:      "Dollar value of submitted orders at reference price",
			},
			[]string{"side"},
		),
		BreakerTrips: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "risk",
				Name:      "breaker_trips_total",
				Help:      "Total number of daily loss breaker trips",
			},
		),
		Halted: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "risk",
				Name:      "halted",
				Help:      "1 if the last run was halted by the circuit breaker",
			},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "run_duration_seconds",
				Help:      "Wall time of a run",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"job"},
		),
		LastRun: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last finished run",
			},
			[]string{"job"},
		),
	}
}

// Registry is what the /metrics handler gathers from.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(r engine.Result) {
	job := string(r.Job)
	m.RunsTotal.WithLabelValues(job, r.Status, reasonLabel(r)).Inc()

	for _, o := range r.Details {
		m.OutcomesTotal.WithLabelValues(job, o.Status).Inc()
		if o.Status == engine.OutcomeSubmitted {
			m.SubmittedNotional.WithLabelValues(o.Side).Add(float64(o.Qty) * o.Price)
		}
	}

	switch {
	case r.State == engine.SkippedHalted && r.Reason == risk.HaltMaxDailyLoss:
		m.BreakerTrips.Inc()
		m.Halted.Set(1)
	case r.State == engine.SkippedHalted:
		m.Halted.Set(1)
	case r.State == engine.Done:
		m.Halted.Set(0)
	}

	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		m.RunDuration.WithLabelValues(job).Observe(r.Duration().Seconds())
	}
	if !r.FinishedAt.IsZero() {
		m.LastRun.WithLabelValues(job).Set(float64(r.FinishedAt.Unix()))
	}
}

// Failed runs carry free-form error text; keep label cardinality bounded.
func reasonLabel(r engine.Result) string {
	if r.State == engine.Failed {
		return string(engine.Failed)
	}
	return r.Reason
}
