package model

import "time"

// JobStatus is the lifecycle state of a generation job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Job is the record polled by clients while a video is generated
type Job struct {
	ID          string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Step        string     `json:"step"`
	Output      *string    `json:"output,omitempty"`
	Error       *string    `json:"error,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy so callers never share pointers with the registry.
func (j Job) Clone() Job {
	out := j
	if j.Output != nil {
		v := *j.Output
		out.Output = &v
	}
	if j.Error != nil {
		v := *j.Error
		out.Error = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		out.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		out.CompletedAt = &v
	}
	return out
}
