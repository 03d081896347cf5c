package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fentz26/doit/internal/audit"
	"github.com/fentz26/doit/internal/blobstore"
	perrors "github.com/fentz26/doit/internal/errors"
	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/oracle"
	"github.com/fentz26/doit/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// panickingOracle uploads normally and panics on Generate.
type panickingOracle struct {
	*scriptedOracle
}

func (o panickingOracle) Generate(ctx context.Context, req oracle.Request) (string, error) {
	panic("model client blew up")
}

// undeletableBlobs serves evidence from FS but refuses to delete it.
type undeletableBlobs struct {
	*blobstore.FS
}

func (undeletableBlobs) Delete(ctx context.Context, names []string) error {
	return errors.New("permission denied")
}

func TestWorker_PanicMarksJobFailed(t *testing.T) {
	o := &scriptedOracle{}
	f := newFixture(t, o, Config{}, nil)
	f.worker.oracle = panickingOracle{o}

	prefix := "uploads/u1/panic/"
	f.putCaptures(t, prefix, 2, true)

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix})
	err := f.worker.Handle(context.Background(), *item)
	assert.True(t, perrors.Is(err, perrors.ErrInternal), "got %v", err)

	got := f.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "panic: model client blew up", got.Error)

	// Evidence stays and the uploads are still swept.
	assert.Len(t, f.listed(t, prefix), 4)
	assert.Len(t, o.released, 2)
}

func TestWorker_PanicInSynchronousRun(t *testing.T) {
	o := &scriptedOracle{}
	f := newFixture(t, o, Config{}, nil)
	f.worker.oracle = panickingOracle{o}

	job, _ := f.createQueued(t, models.JobTypeReview, models.JobPayload{ReviewData: reviewData()})
	err := f.worker.Run(context.Background(), models.JobTypeReview, models.WorkRequest{JobID: job.ID})
	assert.Equal(t, 500, perrors.StatusOf(err))
	assert.Equal(t, models.JobStatusFailed, f.job(t, job.ID).Status)
}

func TestWorker_PanicUnderScheduler(t *testing.T) {
	o := &scriptedOracle{}
	f := newFixture(t, o, Config{}, nil)
	f.worker.oracle = panickingOracle{o}

	job, _ := f.createQueued(t, models.JobTypeReview, models.JobPayload{ReviewData: reviewData()})

	cfg := scheduler.DefaultConfig()
	cfg.PollInterval = "10ms"
	sch := scheduler.New(f.store, audit.NewRecorder(f.store), f.worker, cfg, nil)
	sch.Start()
	defer sch.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for f.job(t, job.ID).Status == models.JobStatusQueued && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	got := f.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "panic")
}

func TestWorker_EvidenceDeleteFailureKeepsComplete(t *testing.T) {
	o := &scriptedOracle{responses: []string{singleBatchReport}}
	f := newFixture(t, o, Config{}, nil)
	f.worker.blobs = undeletableBlobs{f.blobs}

	prefix := "uploads/u1/keep/"
	f.putCaptures(t, prefix, 3, true)

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix})
	require.NoError(t, f.worker.Handle(context.Background(), *item))

	got := f.job(t, job.ID)
	assert.Equal(t, models.JobStatusComplete, got.Status)
	assert.Empty(t, got.Error)

	var result map[string]any
	require.NoError(t, json.Unmarshal(got.Result, &result))
	assert.Equal(t, "ok", result["feedback"])

	assert.Len(t, f.listed(t, prefix), 6)

	records, err := f.store.ListAudit(job.ID)
	require.NoError(t, err)
	var deletes []models.AuditRecord
	for _, r := range records {
		if r.Action == audit.ActionEvidenceDelete {
			deletes = append(deletes, r)
		}
	}
	require.Len(t, deletes, 1)
	assert.Equal(t, audit.OutcomeFailure, deletes[0].Outcome)
	assert.Equal(t, "permission denied", deletes[0].Details)
}
