package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/doit/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestJobCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	payload := models.JobPayload{
		EvidenceLocation: "uploads/u1/s1/",
		UserID:           "u1",
		UserGoals:        models.Goals{"interests": []any{"writing"}},
	}
	job, err := s.CreateJob(models.JobTypeAnalysis, payload)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.Status != models.JobStatusCreated {
		t.Errorf("Expected status created, got %s", job.Status)
	}

	got, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Payload.EvidenceLocation != "uploads/u1/s1/" {
		t.Errorf("Expected evidence location to round-trip, got %q", got.Payload.EvidenceLocation)
	}
	if got.Payload.UserID != "u1" {
		t.Errorf("Expected user u1, got %q", got.Payload.UserID)
	}
	if got.CompletedAt != nil {
		t.Error("New job should not have completed_at")
	}

	missing, err := s.GetJob("does-not-exist")
	if err != nil {
		t.Fatalf("GetJob on missing id failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing job")
	}

	if _, err := s.CreateJob(models.JobTypeReview, models.JobPayload{ReviewData: &models.ReviewData{}}); err != nil {
		t.Fatalf("CreateJob review failed: %v", err)
	}

	jobs, err := s.ListJobs("", "")
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}

	jobs, err = s.ListJobs(string(models.JobTypeAnalysis), "created")
	if err != nil {
		t.Fatalf("ListJobs with filter failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected 1 created analysis job, got %d", len(jobs))
	}

	jobs, err = s.ListJobs("", "complete")
	if err != nil {
		t.Fatalf("ListJobs with filter failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("Expected 0 complete jobs, got %d", len(jobs))
	}
}

func TestMarkQueued(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	job, err := s.CreateJob(models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: "a/"})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if err := s.MarkQueued(job.ID); err != nil {
		t.Fatalf("MarkQueued failed: %v", err)
	}
	got, _ := s.GetJob(job.ID)
	if got.Status != models.JobStatusQueued {
		t.Errorf("Expected queued, got %s", got.Status)
	}

	// Second call must not touch a job that already left created.
	if err := s.MarkQueued(job.ID); err != ErrNotCreated {
		t.Errorf("Expected ErrNotCreated, got %v", err)
	}
}

func TestMarkQueued_DoesNotOverwriteTerminal(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	job, _ := s.CreateJob(models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: "a/"})

	// Worker finished before dispatch got to write queued.
	if err := s.WriteOutcome(job.ID, JobOutcome{Status: models.JobStatusComplete, Result: json.RawMessage(`{"ok":true}`)}); err != nil {
		t.Fatalf("WriteOutcome failed: %v", err)
	}
	if err := s.MarkQueued(job.ID); err != ErrNotCreated {
		t.Errorf("Expected ErrNotCreated, got %v", err)
	}
	got, _ := s.GetJob(job.ID)
	if got.Status != models.JobStatusComplete {
		t.Errorf("Expected complete to survive, got %s", got.Status)
	}
}

func TestWriteOutcome(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	job, _ := s.CreateJob(models.JobTypeBookmark, models.JobPayload{EvidenceLocation: "b/"})

	err := s.WriteOutcome(job.ID, JobOutcome{
		Status:      models.JobStatusFailed,
		Error:       "failed to parse oracle response",
		RawResponse: "not json",
	})
	if err != nil {
		t.Fatalf("WriteOutcome failed: %v", err)
	}

	got, _ := s.GetJob(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}
	if got.Error != "failed to parse oracle response" {
		t.Errorf("Unexpected error: %q", got.Error)
	}
	if got.RawResponse != "not json" {
		t.Errorf("Unexpected raw response: %q", got.RawResponse)
	}
	if got.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	// A later success clears the error.
	result := json.RawMessage(`{"resolved_url":"https://x.com/a"}`)
	for i := 0; i < 2; i++ {
		if err := s.WriteOutcome(job.ID, JobOutcome{Status: models.JobStatusComplete, Result: result}); err != nil {
			t.Fatalf("WriteOutcome #%d failed: %v", i+1, err)
		}
	}
	got, _ = s.GetJob(job.ID)
	if got.Status != models.JobStatusComplete {
		t.Errorf("Expected complete, got %s", got.Status)
	}
	if got.Error != "" || got.RawResponse != "" {
		t.Errorf("Expected error fields cleared, got %q / %q", got.Error, got.RawResponse)
	}
	if string(got.Result) != string(result) {
		t.Errorf("Unexpected result: %s", got.Result)
	}

	if err := s.WriteOutcome("missing", JobOutcome{Status: models.JobStatusFailed}); err != ErrJobNotFound {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestProfiles(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	goals, err := s.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if goals != nil {
		t.Error("Expected nil profile for unknown user")
	}

	if err := s.PutProfile("u1", models.Goals{"content_zone_outs": []string{"rage_bait"}}); err != nil {
		t.Fatalf("PutProfile failed: %v", err)
	}
	if err := s.PutProfile("u1", models.Goals{"content_zone_outs": []string{"rage_bait", "celebrity_gossip"}}); err != nil {
		t.Fatalf("PutProfile update failed: %v", err)
	}

	goals, err = s.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	list := goals.StringList("content_zone_outs")
	if len(list) != 2 || list[1] != "celebrity_gossip" {
		t.Errorf("Unexpected zone-outs: %v", list)
	}
}

func TestAudit(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.WriteAudit("job.dispatch", "abc", "success", "job-1", "queued"); err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}
	if _, err := s.WriteAudit("job.complete", "def", "success", "job-1", ""); err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}
	if _, err := s.WriteAudit("job.dispatch", "ghi", "success", "job-2", ""); err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}

	records, err := s.ListAudit("job-1")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Action != "job.dispatch" || records[1].Action != "job.complete" {
		t.Errorf("Unexpected order: %s, %s", records[0].Action, records[1].Action)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
