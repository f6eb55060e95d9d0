package ports

import (
	"time"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// ErasureMetrics observes step and run outcomes.
type ErasureMetrics interface {
	ObserveStep(result domain.StepResult)
	ObserveRun(report domain.Report, elapsed time.Duration)
}

// NopMetrics discards observations.
type NopMetrics struct{}

func (NopMetrics) ObserveStep(domain.StepResult) {}
func (NopMetrics) ObserveRun(domain.Report, time.Duration) {}
