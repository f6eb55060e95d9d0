package domain

import "time"

// StepResult is the outcome of one collection-scoped step.
type StepResult struct {
	Step       string `json:"step"`
	Collection string `json:"collection"`
	Matched    int    `json:"matched"`
	Processed  int    `json:"processed"`
	// Truncated is set when more documents matched than the batch budget allows.
	// It is a known limitation, not a failure.
	Truncated bool `json:"truncated,omitempty"`
	Failed    bool `json:"failed"`
}

// Merge folds another result for the same step (e.g. both referral directions).
func (r StepResult) Merge(o StepResult) StepResult {
	r.Matched += o.Matched
	r.Processed += o.Processed
	r.Truncated = r.Truncated || o.Truncated
	r.Failed = r.Failed || o.Failed
	return r
}

// RunState is the orchestration lifecycle.
type RunState string

const (
	RunIdle           RunState = "idle"
	RunRunning        RunState = "running"
	RunCompleted      RunState = "completed"
	RunPartialFailure RunState = "partial_failure"
)

// Report is the aggregate outcome of one erasure run.
type Report struct {
	RunID        string       `json:"run_id"`
	UserID       UserID       `json:"user_id"`
	RequestID    string       `json:"request_id,omitempty"`
	State        RunState     `json:"state"`
	Success      bool         `json:"success"`
	Steps        []StepResult `json:"steps"`
	UserDeleted  bool         `json:"user_deleted"`
	PhotoRef     string       `json:"profile_photo_ref,omitempty"`
	PhotoDeleted bool         `json:"photo_deleted"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// Truncated reports whether any step hit the batch budget.
func (r Report) Truncated() bool {
	for _, s := range r.Steps {
		if s.Truncated {
			return true
		}
	}
	return false
}

// FailedSteps lists the names of failed steps.
func (r Report) FailedSteps() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Failed {
			out = append(out, s.Step)
		}
	}
	return out
}

// Incomplete is true when a follow-up pass is warranted.
func (r Report) Incomplete() bool { return !r.Success || r.Truncated() }

// Step returns the result for name, if present.
func (r Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// RunRef points at a user whose latest recorded run needs a follow-up.
type RunRef struct {
	RunID        string
	UserID       UserID
	RequestID    string
	PhotoRef     string
	PhotoDeleted bool
	Success      bool
	Truncated    bool
	FinishedAt   time.Time
}
