package jobs

import "time"

// Type identifies the kind of work a job performs.
type Type string

const (
	TypeSESSend   Type = "ses_send"
	TypeMsg91Send Type = "msg91_send"
	TypeReport    Type = "report"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobError is one recorded failure within a job run.
type JobError struct {
	Ref     string `json:"ref,omitempty"`   // recipient email or batch reference
	Stage   string `json:"stage,omitempty"` // read_csv, send, scan, write_report
	Message string `json:"message"`
}

// Job is the tracked state of one background unit of work.
// A job is mutated only by its owning worker; everyone else reads snapshots.
type Job struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	Description string     `json:"description"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Successes   int        `json:"successes"`
	Failures    int        `json:"failures"`
	Errors      []JobError `json:"errors"`
	OutputPath  string     `json:"output_path,omitempty"`
	Created     time.Time  `json:"created"`
	Finished    *time.Time `json:"finished,omitempty"`
}

// clone returns a deep copy safe to hand to pollers.
func (j *Job) clone() *Job {
	c := *j
	if j.Errors != nil {
		c.Errors = make([]JobError, len(j.Errors))
		copy(c.Errors, j.Errors)
	}
	if j.Finished != nil {
		t := *j.Finished
		c.Finished = &t
	}
	return &c
}

// Counts aggregates registry contents by status.
type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
