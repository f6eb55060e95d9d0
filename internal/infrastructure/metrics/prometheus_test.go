package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

func TestErasureMetrics(t *testing.T) {
	m := NewErasureMetrics(prometheus.NewRegistry())

	m.ObserveStep(domain.StepResult{Step: "receipts", Processed: 450, Truncated: true})
	m.ObserveStep(domain.StepResult{Step: "notifications", Failed: true})
	m.ObserveStep(domain.StepResult{Step: "notifications"})
	m.ObserveRun(domain.Report{Success: false}, 2*time.Second)
	m.ObserveFollowUp(3, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("receipts", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("notifications", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("notifications", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.truncations.WithLabelValues("receipts")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.truncations.WithLabelValues("notifications")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.followUps.WithLabelValues("rerun")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.runDuration))
}
