package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// ErasureMetrics implements ports.ErasureMetrics with Prometheus collectors.
type ErasureMetrics struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	steps       *prometheus.CounterVec
	truncations *prometheus.CounterVec
	followUps   *prometheus.CounterVec
}

// NewErasureMetrics registers the collectors with reg (prometheus.DefaultRegisterer in production).
func NewErasureMetrics(reg prometheus.Registerer) *ErasureMetrics {
	f := promauto.With(reg)
	return &ErasureMetrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "erasure_runs_total",
			Help: "Erasure runs by outcome",
		}, []string{"success"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "erasure_run_duration_seconds",
			Help:    "Erasure run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "erasure_steps_total",
			Help: "Erasure step outcomes",
		}, []string{"step", "outcome"}),
		truncations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "erasure_batch_truncations_total",
			Help: "Steps that matched more documents than the batch budget",
		}, []string{"step"}),
		followUps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "erasure_followups_total",
			Help: "Follow-up passes by result",
		}, []string{"result"}),
	}
}

func (m *ErasureMetrics) ObserveStep(r domain.StepResult) {
	outcome := "ok"
	if r.Failed {
		outcome = "failed"
	}
	m.steps.WithLabelValues(r.Step, outcome).Inc()
	if r.Truncated {
		m.truncations.WithLabelValues(r.Step).Inc()
	}
}

func (m *ErasureMetrics) ObserveRun(report domain.Report, elapsed time.Duration) {
	m.runs.WithLabelValues(strconv.FormatBool(report.Success)).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// ObserveFollowUp counts users re-run by one follow-up pass.
func (m *ErasureMetrics) ObserveFollowUp(rerun, stillIncomplete int) {
	m.followUps.WithLabelValues("rerun").Add(float64(rerun))
	m.followUps.WithLabelValues("still_incomplete").Add(float64(stillIncomplete))
}

var _ ports.ErasureMetrics = (*ErasureMetrics)(nil)
