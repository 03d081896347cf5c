// Package store provides SQLite-backed persistence for DoIt: jobs, user
// profiles, the work queue and the audit trail.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/doit/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrJobNotFound indicates no job exists with the given ID.
var ErrJobNotFound = errors.New("job not found")

// ErrNotCreated indicates the job has already left the created state.
var ErrNotCreated = errors.New("job is not in created state")

// Store provides access to the DoIt SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'created',
		payload TEXT NOT NULL,
		result TEXT,
		error TEXT,
		raw_response TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		goals TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS queue_items (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		body TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		lease_holder TEXT,
		lease_expires_at INTEGER,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		job_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_type ON jobs(type);
	CREATE INDEX IF NOT EXISTS idx_queue_items_lease ON queue_items(lease_expires_at);
	CREATE INDEX IF NOT EXISTS idx_audit_job_id ON audit(job_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Job Operations ---

const jobColumns = `id, type, status, payload, result, error, raw_response, created_at, updated_at, completed_at`

// CreateJob inserts a new job in the created state.
func (s *Store) CreateJob(jobType models.JobType, payload models.JobPayload) (*models.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    models.JobStatusCreated,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.Exec(
		`INSERT INTO jobs (id, type, status, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, job.Status, string(payloadJSON), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var payload string
	var result, errMsg, raw sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(&job.ID, &job.Type, &job.Status, &payload, &result, &errMsg, &raw,
		&job.CreatedAt, &job.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of job %s: %w", job.ID, err)
	}
	if result.Valid && result.String != "" {
		job.Result = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if raw.Valid {
		job.RawResponse = raw.String
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

// GetJob retrieves a job by ID. It returns nil, nil when the job does not exist.
func (s *Store) GetJob(id string) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs, newest first, optionally filtered by type and status.
func (s *Store) ListJobs(jobType, status string) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any

	if jobType != "" {
		query += ` AND type = ?`
		args = append(args, jobType)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkQueued moves a job from created to queued. A job that already left the
// created state is not touched and ErrNotCreated is returned, so a worker's
// terminal write is never overwritten by a late dispatch.
func (s *Store) MarkQueued(id string) error {
	result, err := s.db.Exec(
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.JobStatusQueued, time.Now().UTC(), id, models.JobStatusCreated,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotCreated
	}
	return nil
}

// JobOutcome is the terminal write of a worker.
type JobOutcome struct {
	Status      models.JobStatus
	Result      json.RawMessage
	Error       string
	RawResponse string
}

// WriteOutcome records a worker's terminal status, result and error.
// Writing the same outcome twice leaves the job unchanged apart from timestamps.
func (s *Store) WriteOutcome(id string, outcome JobOutcome) error {
	now := time.Now().UTC()
	var result, errMsg, raw any
	if len(outcome.Result) > 0 {
		result = string(outcome.Result)
	}
	if outcome.Error != "" {
		errMsg = outcome.Error
	}
	if outcome.RawResponse != "" {
		raw = outcome.RawResponse
	}

	res, err := s.db.Exec(
		`UPDATE jobs SET status = ?, result = ?, error = ?, raw_response = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		outcome.Status, result, errMsg, raw, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("write job outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// --- Profile Operations ---

// PutProfile stores the goals of a user, replacing any previous profile.
func (s *Store) PutProfile(userID string, goals models.Goals) error {
	data, err := json.Marshal(goals)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO profiles (user_id, goals, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET goals = excluded.goals, updated_at = excluded.updated_at`,
		userID, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// GetProfile returns the goals of a user, or nil when no profile exists.
func (s *Store) GetProfile(userID string) (models.Goals, error) {
	var data string
	err := s.db.QueryRow(`SELECT goals FROM profiles WHERE user_id = ?`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	var goals models.Goals
	if err := json.Unmarshal([]byte(data), &goals); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return goals, nil
}
