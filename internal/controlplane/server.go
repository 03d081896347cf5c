package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	perrors "github.com/fentz26/doit/internal/errors"
	"github.com/fentz26/doit/internal/models"
	"go.uber.org/zap"
)

// maxJSONBody bounds request bodies decoded as JSON.
const maxJSONBody = 8 << 20

// Server provides the HTTP API for DoIt.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
	logger  *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		addr:    addr,
		logger:  logger.Named("http"),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Job endpoints
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)

	// Profiles and evidence
	mux.HandleFunc("/profiles/", s.handleProfile)
	mux.HandleFunc("/evidence", s.handleEvidenceList)
	mux.HandleFunc("/evidence/", s.handleEvidencePut)

	// Workers
	mux.HandleFunc("/workers", s.handleWorkerStats)
	mux.HandleFunc("/workers/", s.handleWorkerRun)

	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
	}

	s.logger.Info("starting DoIt daemon", zap.String("addr", s.addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := s.service.Health(r.Context())
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleJobs handles POST /jobs and GET /jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createJob(w, r)
	case http.MethodGet:
		s.listJobs(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobByID handles /jobs/{id}/*
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "job id required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getJob(w, r, jobID)
	case action == "dispatch" && r.Method == http.MethodPost:
		s.dispatchJob(w, r, jobID)
	case action == "audit" && r.Method == http.MethodGet:
		s.getJobAudit(w, r, jobID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// --- Job Handlers ---

type createJobRequest struct {
	Type    models.JobType    `json:"type"`
	Payload models.JobPayload `json:"payload"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	job, err := s.service.CreateJob(r.Context(), req.Type, req.Payload)
	if err != nil {
		jobID := ""
		if job != nil {
			jobID = job.ID
		}
		writeJobError(w, err, jobID)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := s.service.ListJobs(q.Get("type"), q.Get("status"))
	if err != nil {
		writeError(w, perrors.NewInternal(err))
		return
	}

	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := s.service.GetJob(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) dispatchJob(w http.ResponseWriter, r *http.Request, jobID string) {
	item, err := s.service.DispatchJob(r.Context(), jobID)
	if err != nil {
		writeJobError(w, err, jobID)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

func (s *Server) getJobAudit(w http.ResponseWriter, r *http.Request, jobID string) {
	records, err := s.service.JobAudit(jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	if records == nil {
		records = []models.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// --- Profile Handlers ---

// handleProfile handles PUT and GET /profiles/{user_id}
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/profiles/")
	if userID == "" || strings.Contains(userID, "/") {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var goals models.Goals
		if err := decodeJSON(w, r, &goals); err != nil {
			writeError(w, err)
			return
		}
		if err := s.service.PutProfile(userID, goals); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, goals)
	case http.MethodGet:
		goals, err := s.service.GetProfile(userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, goals)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Evidence Handlers ---

// handleEvidencePut handles PUT /evidence/{name...}
func (s *Server) handleEvidencePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/evidence/")
	stored, err := s.service.PutEvidence(r.Context(), name, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": stored})
}

// handleEvidenceList handles GET /evidence?prefix=
func (s *Server) handleEvidenceList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	blobs, err := s.service.ListEvidence(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, perrors.NewInternal(err))
		return
	}
	writeJSON(w, http.StatusOK, blobs)
}

// --- Worker Handlers ---

// handleWorkerStats handles GET /workers
func (s *Server) handleWorkerStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.WorkerStats())
}

// handleWorkerRun handles POST /workers/{type}. The job runs to completion
// before the response is written.
func (s *Server) handleWorkerRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobType := models.JobType(strings.TrimPrefix(r.URL.Path, "/workers/"))
	var req models.WorkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.service.RunWorker(r.Context(), jobType, req); err != nil {
		s.logger.Warn("worker invocation failed",
			zap.String("job_id", req.JobID),
			zap.String("type", string(jobType)),
			zap.Error(err))
		writeJobError(w, err, req.JobID)
		return
	}

	job, err := s.service.GetJob(req.JobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		return perrors.NewInvalidInput("invalid json: " + err.Error())
	}
	return nil
}
