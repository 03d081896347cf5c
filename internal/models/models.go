// Package models defines the core domain types for DoIt.
package models

import (
	"encoding/json"
	"time"
)

// JobType selects the pipeline a job runs through.
type JobType string

const (
	JobTypeAnalysis JobType = "analysis"
	JobTypeBookmark JobType = "bookmark"
	JobTypeReview   JobType = "review"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeAnalysis, JobTypeBookmark, JobTypeReview:
		return true
	}
	return false
}

// JobTypes lists every job type in a stable order.
var JobTypes = []JobType{JobTypeAnalysis, JobTypeBookmark, JobTypeReview}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusCreated  JobStatus = "created"
	JobStatusQueued   JobStatus = "queued"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Terminal reports whether no further transition is expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// JobPayload carries the type-specific inputs of a job.
type JobPayload struct {
	EvidenceLocation string      `json:"evidence_location,omitempty"`
	UserID           string      `json:"user_id,omitempty"`
	UserGoals        Goals       `json:"user_goals,omitempty"`
	ReviewData       *ReviewData `json:"review_data,omitempty"`
}

// Job is a unit of pipeline work. Jobs are created externally and mutated only
// by the dispatcher and the worker.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Payload     JobPayload      `json:"payload"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	RawResponse string          `json:"raw_response,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// WorkRequest is the body of a queue item: the worker's invocation arguments.
type WorkRequest struct {
	JobID            string `json:"job_id"`
	EvidenceLocation string `json:"evidence_location,omitempty"`
}

// QueueItem is one at-least-once delivery of a work request.
type QueueItem struct {
	ID             string          `json:"id"`
	JobID          string          `json:"job_id"`
	JobType        JobType         `json:"job_type"`
	Body           json.RawMessage `json:"body"`
	Attempts       int             `json:"attempts"`
	LeaseHolder    string          `json:"lease_holder,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AuditRecord represents an audit entry for a state-mutating action.
type AuditRecord struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	JobID      string    `json:"job_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
