package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/fentz26/doit/internal/audit"
	"github.com/fentz26/doit/internal/blobstore"
	"github.com/fentz26/doit/internal/bookmark"
	perrors "github.com/fentz26/doit/internal/errors"
	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/oracle"
	"github.com/fentz26/doit/internal/store"
	"go.uber.org/zap"
)

// Config holds the worker settings.
type Config struct {
	// BatchSize bounds the captures per analysis call; 0 means the default.
	BatchSize int
	// LocalAggregates recomputes transitions, streaks and the session
	// summary from the activity list after parsing.
	LocalAggregates bool
	// StructuredOutput attaches JSON schemas to oracle requests.
	StructuredOutput bool
}

// Worker executes queued jobs.
type Worker struct {
	store    *store.Store
	blobs    blobstore.Store
	oracle   oracle.Gateway
	searcher bookmark.Searcher
	recorder *audit.Recorder
	cfg      Config
	logger   *zap.Logger
}

// NewWorker creates a worker. searcher may be nil when no video search API
// is configured.
func NewWorker(s *store.Store, blobs blobstore.Store, gw oracle.Gateway, searcher bookmark.Searcher, rec *audit.Recorder, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:    s,
		blobs:    blobs,
		oracle:   gw,
		searcher: searcher,
		recorder: rec,
		cfg:      cfg,
		logger:   logger.Named("worker"),
	}
}

// outcome is what a job run produced, before it is written.
type outcome struct {
	store.JobOutcome
	// evidence lists the blobs to delete once a complete outcome is stored.
	evidence []string
}

func storeOutcome(status models.JobStatus, result json.RawMessage) store.JobOutcome {
	return store.JobOutcome{Status: status, Result: result}
}

func parseFailure(text string) error {
	err := perrors.NewParse("failed to parse oracle response")
	err.Details = map[string]any{"raw_response": text}
	return err
}

// Handle runs the job named by a queue item.
func (w *Worker) Handle(ctx context.Context, item models.QueueItem) error {
	var req models.WorkRequest
	if err := json.Unmarshal(item.Body, &req); err != nil {
		err := perrors.NewInvalidInput(fmt.Sprintf("malformed work request: %v", err))
		w.fail(item.JobID, err, w.logger.With(zap.String("job_id", item.JobID)))
		return err
	}
	return w.Run(ctx, item.JobType, req)
}

// Run executes one job of the given type. Failures, panics included, are
// written to the job before they are returned. A job that is already complete
// is left alone.
func (w *Worker) Run(ctx context.Context, jobType models.JobType, req models.WorkRequest) (err error) {
	if req.JobID == "" {
		return perrors.NewInvalidInput("missing job_id")
	}
	job, err := w.store.GetJob(req.JobID)
	if err != nil {
		return perrors.NewInternal(err)
	}
	if job == nil {
		return perrors.NewNotFound(req.JobID)
	}
	if job.Type != jobType {
		return perrors.NewInvalidInput(fmt.Sprintf("job %s is a %s job, not %s", job.ID, job.Type, jobType))
	}

	logger := w.logger.With(zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	if job.Status == models.JobStatusComplete {
		logger.Info("job already complete, skipping redelivery")
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			perr := perrors.NewInternal(fmt.Errorf("panic: %v", r))
			w.fail(job.ID, perr, logger)
			err = perr
		}
	}()

	start := time.Now()
	logger.Info("job started")

	out, err := w.execute(ctx, job, req, logger)
	if err != nil {
		w.fail(job.ID, err, logger)
		return err
	}

	if err := w.store.WriteOutcome(job.ID, out.JobOutcome); err != nil {
		logger.Error("write job outcome", zap.Error(err))
		return perrors.NewInternal(err)
	}
	result := audit.OutcomeSuccess
	if out.Status != models.JobStatusComplete {
		result = audit.OutcomeFailure
	}
	w.recorder.Record(audit.ActionOutcome, map[string]any{"job_id": job.ID, "status": out.Status}, result, job.ID, out.Error)
	logger.Info("job finished",
		zap.String("status", string(out.Status)),
		zap.Duration("elapsed", time.Since(start)))

	if out.Status == models.JobStatusComplete && len(out.evidence) > 0 {
		w.deleteEvidence(ctx, job.ID, out.evidence, logger)
	}
	return nil
}

func (w *Worker) execute(ctx context.Context, job *models.Job, req models.WorkRequest, logger *zap.Logger) (*outcome, error) {
	switch job.Type {
	case models.JobTypeAnalysis:
		return w.runAnalysis(ctx, job, evidenceLocation(job, req), logger)
	case models.JobTypeBookmark:
		return w.runBookmark(ctx, evidenceLocation(job, req), logger)
	case models.JobTypeReview:
		return w.runReview(ctx, job, logger)
	}
	return nil, perrors.NewInvalidInput(fmt.Sprintf("unknown job type: %q", job.Type))
}

func evidenceLocation(job *models.Job, req models.WorkRequest) string {
	if req.EvidenceLocation != "" {
		return req.EvidenceLocation
	}
	return job.Payload.EvidenceLocation
}

// fail records err on the job. It writes even when the run's context is gone.
func (w *Worker) fail(jobID string, err error, logger *zap.Logger) {
	logger.Error("job failed", zap.Error(err))

	out := store.JobOutcome{
		Status: models.JobStatusFailed,
		Error:  perrors.Describe(err),
	}
	var pErr *perrors.PipelineError
	if stderrors.As(err, &pErr) {
		if raw, ok := pErr.Details["raw_response"].(string); ok {
			out.RawResponse = raw
		}
	}

	if werr := w.store.WriteOutcome(jobID, out); werr != nil {
		logger.Error("write failed status", zap.Error(werr))
		return
	}
	w.recorder.Record(audit.ActionOutcome, map[string]any{"job_id": jobID, "status": out.Status}, audit.OutcomeFailure, jobID, out.Error)
}

// deleteEvidence removes the source blobs of a finished job. Errors are
// logged and never change the job's status.
func (w *Worker) deleteEvidence(ctx context.Context, jobID string, names []string, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := w.blobs.Delete(ctx, names); err != nil {
		logger.Error("evidence delete failed", zap.Int("blobs", len(names)), zap.Error(err))
		w.recorder.Record(audit.ActionEvidenceDelete, names, audit.OutcomeFailure, jobID, err.Error())
		return
	}
	logger.Info("evidence deleted", zap.Int("blobs", len(names)))
	w.recorder.Record(audit.ActionEvidenceDelete, names, audit.OutcomeSuccess, jobID, "")
}

// upload downloads one evidence image and hands it to the oracle session.
func (w *Worker) upload(ctx context.Context, sess *oracle.Session, ref models.BlobRef) (oracle.Handle, error) {
	data, err := w.blobs.Download(ctx, ref.Name)
	if err != nil {
		return oracle.Handle{}, perrors.NewInternal(fmt.Errorf("download %s: %w", ref.Name, err))
	}
	h, err := sess.Upload(ctx, oracle.Image{Name: ref.Name, MIMEType: ref.ContentType, Data: data})
	if err != nil {
		return oracle.Handle{}, perrors.NewOracle("upload "+ref.Name, err)
	}
	return h, nil
}

func (w *Worker) readText(ctx context.Context, ref models.BlobRef) (string, error) {
	data, err := w.blobs.Download(ctx, ref.Name)
	if err != nil {
		return "", perrors.NewInternal(fmt.Errorf("download %s: %w", ref.Name, err))
	}
	return string(data), nil
}

func (w *Worker) schema(build func() map[string]any) map[string]any {
	if !w.cfg.StructuredOutput {
		return nil
	}
	return build()
}
