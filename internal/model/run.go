package model

import "time"

// RunStatus represents the lifecycle state of an audit run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// AuditRun records one audit of an uploaded document.
type AuditRun struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Status        RunStatus `json:"status"`
	QuestionCount int       `json:"question_count"`
	Verdicts      []Verdict `json:"verdicts,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summary tallies the run's verdicts.
func (r *AuditRun) Summary() VerdictSummary {
	return Summarize(r.Verdicts)
}
