package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fentz26/doit/internal/models"
	"github.com/google/uuid"
)

// --- Audit Operations ---

// WriteAudit writes an audit record.
func (s *Store) WriteAudit(action, inputsHash, outcome, jobID, details string) (*models.AuditRecord, error) {
	rec := &models.AuditRecord{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		JobID:      jobID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO audit (id, action, inputs_hash, outcome, job_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Action, rec.InputsHash, rec.Outcome, rec.JobID, rec.Details, rec.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit: %w", err)
	}
	return rec, nil
}

// ListAudit returns the audit records of a job in the order they were written.
func (s *Store) ListAudit(jobID string) ([]models.AuditRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, job_id, details, timestamp FROM audit WHERE job_id = ? ORDER BY timestamp, rowid`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var records []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var job, details sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Action, &rec.InputsHash, &rec.Outcome, &job, &details, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		rec.JobID = job.String
		rec.Details = details.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
