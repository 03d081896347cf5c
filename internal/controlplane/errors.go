package controlplane

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	perrors "github.com/fentz26/doit/internal/errors"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	JobID   string         `json:"job_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps err onto its HTTP status and writes a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	writeJobError(w, err, "")
}

// writeJobError is writeError for failures that still produced a job.
func writeJobError(w http.ResponseWriter, err error, jobID string) {
	resp := errorResponse{Error: perrors.Describe(err), JobID: jobID}

	var pe *perrors.PipelineError
	if stderrors.As(err, &pe) {
		resp.Code = string(pe.Code)
		resp.Details = pe.Details
	}
	writeJSON(w, perrors.StatusOf(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
