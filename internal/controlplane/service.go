// Package controlplane provides the HTTP API and service layer for DoIt.
package controlplane

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"github.com/fentz26/doit/internal/blobstore"
	perrors "github.com/fentz26/doit/internal/errors"
	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/pipeline"
	"github.com/fentz26/doit/internal/store"
)

// Version is reported by /health. Release builds set it with -ldflags.
var Version = "0.1.0-dev"

// StatsSource reports worker pool statistics.
type StatsSource interface {
	GetStats() map[string]interface{}
}

// Service provides the control plane business logic.
type Service struct {
	store      *store.Store
	blobs      blobstore.Store
	dispatcher *pipeline.Dispatcher
	worker     *pipeline.Worker
	stats      StatsSource
}

// NewService creates a new control plane service. stats may be nil when no
// scheduler is running.
func NewService(s *store.Store, blobs blobstore.Store, d *pipeline.Dispatcher, w *pipeline.Worker, stats StatsSource) *Service {
	return &Service{
		store:      s,
		blobs:      blobs,
		dispatcher: d,
		worker:     w,
		stats:      stats,
	}
}

// --- Job Operations ---

// CreateJob stores a new job and dispatches it right away. When dispatch
// rejects the job it stays created and is returned together with the error.
func (s *Service) CreateJob(ctx context.Context, jobType models.JobType, payload models.JobPayload) (*models.Job, error) {
	if !jobType.Valid() {
		return nil, perrors.NewInvalidInput(fmt.Sprintf("unknown job type: %q", jobType))
	}

	job, err := s.store.CreateJob(jobType, payload)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}

	if _, err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		return job, err
	}
	return s.GetJob(job.ID)
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(id string) (*models.Job, error) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}
	if job == nil {
		return nil, perrors.NewNotFound(id)
	}
	return job, nil
}

// ListJobs returns jobs filtered by type and status.
func (s *Service) ListJobs(jobType, status string) ([]models.Job, error) {
	return s.store.ListJobs(jobType, status)
}

// DispatchJob queues a created job.
func (s *Service) DispatchJob(ctx context.Context, id string) (*models.QueueItem, error) {
	return s.dispatcher.Dispatch(ctx, id)
}

// JobAudit returns the audit trail of a job.
func (s *Service) JobAudit(id string) ([]models.AuditRecord, error) {
	if _, err := s.GetJob(id); err != nil {
		return nil, err
	}
	return s.store.ListAudit(id)
}

// --- Profile Operations ---

// PutProfile replaces a user's goals.
func (s *Service) PutProfile(userID string, goals models.Goals) error {
	if userID == "" {
		return perrors.NewInvalidInput("missing user id")
	}
	return s.store.PutProfile(userID, goals)
}

// GetProfile returns a user's goals.
func (s *Service) GetProfile(userID string) (models.Goals, error) {
	goals, err := s.store.GetProfile(userID)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}
	if goals == nil {
		err := perrors.NewNotFound(userID)
		err.Message = "profile not found: " + userID
		return nil, err
	}
	return goals, nil
}

// --- Evidence Operations ---

// evidenceExt maps upload content types onto the extensions the evidence
// classifier recognizes.
var evidenceExt = map[string]string{
	"image/webp": ".webp",
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"text/plain": ".txt",
}

// PutEvidence stores one evidence blob and returns its final name. A name
// without an extension takes one from contentType.
func (s *Service) PutEvidence(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if path.Ext(name) == "" && contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			name += evidenceExt[mt]
		}
	}
	if err := s.blobs.Put(ctx, name, r); err != nil {
		return "", perrors.NewInvalidInput(err.Error())
	}
	return name, nil
}

// ListEvidence lists the blobs under prefix.
func (s *Service) ListEvidence(ctx context.Context, prefix string) ([]blobstore.Blob, error) {
	blobs, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if blobs == nil {
		blobs = []blobstore.Blob{}
	}
	return blobs, nil
}

// --- Worker Operations ---

// RunWorker runs one job synchronously, outside the queue.
func (s *Service) RunWorker(ctx context.Context, jobType models.JobType, req models.WorkRequest) error {
	if !jobType.Valid() {
		return perrors.NewInvalidInput(fmt.Sprintf("unknown job type: %q", jobType))
	}
	return s.worker.Run(ctx, jobType, req)
}

// WorkerStats returns scheduler statistics.
func (s *Service) WorkerStats() map[string]interface{} {
	if s.stats == nil {
		return map[string]interface{}{"running": false}
	}
	stats := s.stats.GetStats()
	stats["running"] = true
	return stats
}

// --- Health ---

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK         bool   `json:"ok"`
	DB         string `json:"db"`
	Version    string `json:"version"`
	Time       string `json:"time"`
	QueueDepth int    `json:"queue_depth"`
}

// Health checks the database and reports the queue depth.
func (s *Service) Health(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		resp.OK = false
		resp.DB = "error: " + err.Error()
		return resp
	}

	depth, err := s.store.QueueDepth()
	if err != nil {
		resp.OK = false
		resp.DB = "error: " + err.Error()
		return resp
	}
	resp.QueueDepth = depth
	return resp
}
