package entity

import (
	"encoding/json"
	"errors"
	"time"
)

type JobKind string

const (
	KindCorrelationMatrix JobKind = "correlation_matrix"
	KindMatrixProfile     JobKind = "matrix_profile"
	KindEventMatch        JobKind = "event_match"
	KindCooccurrence      JobKind = "cooccurrence"
	KindRelatedSensors    JobKind = "related_sensors_unified"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCanceled  JobStatus = "canceled"
)

func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

type JobProgress struct {
	Phase     string `json:"phase"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

type JobEvent struct {
	Ts       time.Time   `json:"ts"`
	JobID    string      `json:"job_id"`
	Status   JobStatus   `json:"status"`
	Progress JobProgress `json:"progress"`
	Message  string      `json:"message,omitempty"`
}

// AnalysisJob is created once by the engine, mutated only through
// whole-record replacement, and immutable once terminal.
type AnalysisJob struct {
	ID         string          `json:"id"`
	Kind       JobKind         `json:"job_type"`
	Params     json.RawMessage `json:"params"`
	JobKey     string          `json:"job_key,omitempty"`
	Status     JobStatus       `json:"status"`
	Progress   JobProgress     `json:"progress"`
	Result     json.RawMessage `json:"result,omitempty"`
	ResultKey  string          `json:"result_key,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

func (j *AnalysisJob) Clone() *AnalysisJob {
	c := *j
	if j.Warnings != nil {
		c.Warnings = append([]string(nil), j.Warnings...)
	}
	return &c
}

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotCompleted = errors.New("job result not available")
	ErrJobTerminal     = errors.New("job already terminal")
	ErrQueueFull       = errors.New("job queue full")
	ErrUnknownJobKind  = errors.New("unknown job type")
)
