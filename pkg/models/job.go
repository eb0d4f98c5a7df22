package models

import "time"

// Normalized job states. Every provider's job model maps onto this lifecycle:
// pending -> running -> one of completed | failed | cancelled.
const (
	JobStatePending   = "pending"
	JobStateRunning   = "running"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
	JobStateCancelled = "cancelled"
)

// IsTerminalState reports whether no further provider-side transition can
// occur from the given state.
func IsTerminalState(state string) bool {
	switch state {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// TerminalResult is the final outcome of a job. Present if and only if the
// job state is terminal.
type TerminalResult struct {
	State      string    `json:"state"`
	Message    string    `json:"message,omitempty"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Job tracks one async provider job. The manager returns the provider-assigned
// job id on submission; the client polls until the state is terminal. A job
// belongs to exactly one connector for its whole lifetime.
type Job struct {
	ID             string          `json:"id"`
	Connector      string          `json:"connector"`
	State          string          `json:"state"`
	TerminalResult *TerminalResult `json:"terminal_result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastPolledAt   time.Time       `json:"last_polled_at,omitempty"`
}

// IsTerminal reports whether the job has reached a terminal state.
func (j *Job) IsTerminal() bool {
	return IsTerminalState(j.State)
}
