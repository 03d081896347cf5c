package tui

import (
	"encoding/json"
	"time"
)

// JobItem is a summary of a job for the list view
type JobItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobDetail is the full job information
type JobDetail struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Result      json.RawMessage `json:"result"`
	Error       string          `json:"error"`
	RawResponse string          `json:"raw_response"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at"`
}

// AuditEntry is one audit record of a job
type AuditEntry struct {
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkersStats mirrors GET /workers
type WorkersStats struct {
	Running       bool           `json:"running"`
	HolderID      string         `json:"holder_id"`
	ActiveWorkers int            `json:"active_workers"`
	GlobalMax     int            `json:"global_max"`
	TypeCounts    map[string]int `json:"job_type_counts"`
	Processed     int            `json:"processed"`
	Failed        int            `json:"failed"`
	Dropped       int            `json:"dropped"`
}
