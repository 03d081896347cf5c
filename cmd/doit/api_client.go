package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// apiClient is the shared HTTP client with timeout.
var apiClient = &http.Client{
	Timeout: DefaultClientTimeout,
}

// apiGet performs a GET request to the API with timeout.
func apiGet(path string) ([]byte, error) {
	return apiDo(http.MethodGet, path, "", nil)
}

// apiPost performs a POST request with a JSON body.
func apiPost(path string, data interface{}) ([]byte, error) {
	return apiJSON(http.MethodPost, path, data)
}

// apiPut performs a PUT request with a JSON body.
func apiPut(path string, data interface{}) ([]byte, error) {
	return apiJSON(http.MethodPut, path, data)
}

func apiJSON(method, path string, data interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return apiDo(method, path, "application/json", bytes.NewReader(jsonData))
}

// apiDo sends one request and returns the body of a 2xx response.
func apiDo(method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequest(method, apiAddr+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := apiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// APIError is a decoded error response.
type APIError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"error"`
	JobID  string `json:"job_id"`
}

func (e *APIError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("API error (%d): %s (job %s)", e.Status, e.Msg, e.JobID)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Msg)
}

func apiError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Msg == "" {
		apiErr.Msg = string(bytes.TrimSpace(body))
	}
	return apiErr
}

// CheckHealth checks if the daemon is healthy and returns the health response.
// Unlike other API calls, this returns the parsed HealthResponse even on non-200
// responses, allowing callers to inspect the health payload alongside the error.
func CheckHealth() (*HealthResponse, error) {
	resp, err := apiClient.Get(apiAddr + "/health")
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}

	// Return both payload and error on non-200 status
	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("health check failed (status %d): %s", resp.StatusCode, string(body))
	}

	return &health, nil
}

// HealthResponse matches the server's health response structure.
type HealthResponse struct {
	OK         bool   `json:"ok"`
	DB         string `json:"db"`
	Version    string `json:"version"`
	Time       string `json:"time"`
	QueueDepth int    `json:"queue_depth"`
}
