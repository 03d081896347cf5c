// Package pipeline moves jobs through their lifecycle: the dispatcher queues
// new jobs and the worker runs the oracle pipeline for each queued item.
package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/fentz26/doit/internal/audit"
	perrors "github.com/fentz26/doit/internal/errors"
	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/store"
	"go.uber.org/zap"
)

// Dispatcher queues jobs for the worker.
type Dispatcher struct {
	store    *store.Store
	recorder *audit.Recorder
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(s *store.Store, rec *audit.Recorder, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:    s,
		recorder: rec,
		logger:   logger.Named("dispatch"),
	}
}

// Validate checks that a job carries the inputs its type needs.
func Validate(job *models.Job) error {
	if !job.Type.Valid() {
		return perrors.NewInvalidInput(fmt.Sprintf("unknown job type: %q", job.Type))
	}
	switch job.Type {
	case models.JobTypeAnalysis, models.JobTypeBookmark:
		if job.Payload.EvidenceLocation == "" {
			return perrors.NewInvalidInput("missing evidence_location")
		}
	case models.JobTypeReview:
		if job.Payload.ReviewData.Empty() {
			return perrors.NewInvalidInput("missing review_data")
		}
	}
	return nil
}

// WorkRequestFor builds the work request queued for a job.
func WorkRequestFor(job *models.Job) models.WorkRequest {
	req := models.WorkRequest{JobID: job.ID}
	if job.Type != models.JobTypeReview {
		req.EvidenceLocation = job.Payload.EvidenceLocation
	}
	return req
}

// Dispatch validates a created job, enqueues one work item for it and marks
// it queued. An invalid job is left untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string) (*models.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	job, err := d.store.GetJob(jobID)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}
	if job == nil {
		return nil, perrors.NewNotFound(jobID)
	}
	if job.Status != models.JobStatusCreated {
		return nil, perrors.NewConflict(fmt.Sprintf("job %s is %s, only created jobs can be dispatched", job.ID, job.Status))
	}

	if err := Validate(job); err != nil {
		d.logger.Warn("rejected job", zap.String("job_id", job.ID), zap.Error(err))
		d.recorder.Record(audit.ActionDispatch, map[string]string{"job_id": job.ID}, audit.OutcomeFailure, job.ID, perrors.Describe(err))
		return nil, err
	}

	req := WorkRequestFor(job)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, perrors.NewInternal(fmt.Errorf("marshal work request: %w", err))
	}

	item, err := d.store.Enqueue(job.ID, job.Type, body)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}

	switch err := d.store.MarkQueued(job.ID); {
	case stderrors.Is(err, store.ErrNotCreated):
		// The worker already finished the job; its status stands.
		d.logger.Info("job left created before queued write", zap.String("job_id", job.ID))
	case err != nil:
		return nil, perrors.NewInternal(err)
	}

	d.recorder.Record(audit.ActionDispatch, req, audit.OutcomeSuccess, job.ID, "queue item "+item.ID)
	d.logger.Info("job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("item_id", item.ID))
	return item, nil
}
