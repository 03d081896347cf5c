package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/doit/internal/models"
	"github.com/oklog/ulid/v2"
)

// ErrLeaseLost indicates the queue item is no longer leased by the caller.
var ErrLeaseLost = errors.New("queue item lease lost")

// --- Queue Operations ---
//
// Items are delivered at least once: a claim leases the item for a TTL, an ack
// deletes it, and an item whose lease expires without an ack becomes claimable
// again. ULIDs keep claim order equal to enqueue order.

const queueColumns = `id, job_id, job_type, body, attempts, lease_holder, lease_expires_at, created_at`

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var body string
	var holder sql.NullString
	var expires sql.NullInt64

	if err := row.Scan(&item.ID, &item.JobID, &item.JobType, &body, &item.Attempts, &holder, &expires, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.Body = []byte(body)
	if holder.Valid {
		item.LeaseHolder = holder.String
	}
	if expires.Valid {
		t := time.UnixMilli(expires.Int64).UTC()
		item.LeaseExpiresAt = &t
	}
	return &item, nil
}

// Enqueue appends a work item for a job.
func (s *Store) Enqueue(jobID string, jobType models.JobType, body []byte) (*models.QueueItem, error) {
	item := &models.QueueItem{
		ID:        ulid.Make().String(),
		JobID:     jobID,
		JobType:   jobType,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO queue_items (id, job_id, job_type, body, attempts, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		item.ID, item.JobID, item.JobType, string(body), item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue item: %w", err)
	}
	return item, nil
}

// ClaimNextItem atomically leases the oldest item that has no active lease.
// Items of the job types in skip are left alone. It returns nil, nil when
// nothing is claimable.
func (s *Store) ClaimNextItem(holderID string, ttlSec int, skip []models.JobType) (*models.QueueItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	query := `SELECT ` + queueColumns + ` FROM queue_items
		WHERE (lease_expires_at IS NULL OR lease_expires_at <= ?)`
	args := []any{nowMs}
	if len(skip) > 0 {
		placeholders := make([]string, len(skip))
		for i, t := range skip {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += ` AND job_type NOT IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY id LIMIT 1`

	item, err := scanQueueItem(tx.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query queue item: %w", err)
	}

	expires := now.Add(time.Duration(ttlSec) * time.Second)
	result, err := tx.Exec(
		`UPDATE queue_items SET lease_holder = ?, lease_expires_at = ?, attempts = attempts + 1
		 WHERE id = ? AND (lease_expires_at IS NULL OR lease_expires_at <= ?)`,
		holderID, expires.UnixMilli(), item.ID, nowMs,
	)
	if err != nil {
		return nil, fmt.Errorf("lease queue item: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	item.Attempts++
	item.LeaseHolder = holderID
	item.LeaseExpiresAt = &expires
	return item, nil
}

// RenewItemLease extends the lease of an item held by holderID (heartbeat).
func (s *Store) RenewItemLease(id, holderID string, ttlSec int) error {
	result, err := s.db.Exec(
		`UPDATE queue_items SET lease_expires_at = ? WHERE id = ? AND lease_holder = ?`,
		time.Now().UTC().Add(time.Duration(ttlSec)*time.Second).UnixMilli(), id, holderID,
	)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// AckItem removes a delivered item. Acking an unknown item is not an error.
func (s *Store) AckItem(id string) error {
	_, err := s.db.Exec(`DELETE FROM queue_items WHERE id = ?`, id)
	return err
}

// DropExhausted removes items delivered maxAttempts times whose last lease
// expired without an ack, and returns them.
func (s *Store) DropExhausted(maxAttempts int) ([]models.QueueItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	nowMs := time.Now().UTC().UnixMilli()
	rows, err := tx.Query(
		`SELECT `+queueColumns+` FROM queue_items WHERE attempts >= ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?`,
		maxAttempts, nowMs,
	)
	if err != nil {
		return nil, fmt.Errorf("query exhausted items: %w", err)
	}

	var dropped []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		dropped = append(dropped, *item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, item := range dropped {
		if _, err := tx.Exec(`DELETE FROM queue_items WHERE id = ?`, item.ID); err != nil {
			return nil, fmt.Errorf("delete exhausted item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return dropped, nil
}

// QueueDepth returns the number of undelivered or in-flight items.
func (s *Store) QueueDepth() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queue_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue items: %w", err)
	}
	return n, nil
}

// ListQueueItems returns the items of a job, oldest first.
func (s *Store) ListQueueItems(jobID string) ([]models.QueueItem, error) {
	rows, err := s.db.Query(`SELECT `+queueColumns+` FROM queue_items WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query queue items: %w", err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
