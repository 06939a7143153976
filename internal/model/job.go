package model

import "time"

// JobStatus is the lifecycle state of a queued mix job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents a background mix job in the system
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`
	Result      []byte     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// MixJobPayload contains everything a worker needs to run one pipeline
// execution: the run workspace with the three saved uploads and the resolved
// knob set.
type MixJobPayload struct {
	WorkDir string       `json:"workDir"`
	Assets  []AudioAsset `json:"assets"`
	Request MixRequest   `json:"request"`
}
