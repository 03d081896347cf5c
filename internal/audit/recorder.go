// Package audit records every state-mutating pipeline action for later review.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/store"
)

// Outcomes recorded on audit entries.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Actions recorded by the pipeline.
const (
	ActionDispatch       = "job.dispatch"
	ActionOutcome        = "job.outcome"
	ActionEvidenceDelete = "evidence.delete"
	ActionQueueDrop      = "queue.drop"
)

// Recorder writes audit records for state-mutating actions.
type Recorder struct {
	store *store.Store
}

// NewRecorder creates a new audit recorder.
func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{store: s}
}

// Record writes an audit entry. The inputs are hashed, not stored.
func (r *Recorder) Record(action string, inputs any, outcome, jobID, details string) (*models.AuditRecord, error) {
	return r.store.WriteAudit(action, HashInputs(inputs), outcome, jobID, details)
}

// HashInputs returns the hex sha256 of the JSON encoding of inputs.
func HashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
