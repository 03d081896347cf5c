package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the DoIt API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// ListJobs fetches jobs from the API
func (c *Client) ListJobs(status string) ([]JobItem, error) {
	path := "/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var jobs []JobItem
	if err := c.get(path, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob fetches a single job
func (c *Client) GetJob(id string) (*JobDetail, error) {
	var job JobDetail
	if err := c.get("/jobs/"+url.PathEscape(id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobAudit fetches the audit trail of a job
func (c *Client) GetJobAudit(id string) ([]AuditEntry, error) {
	var entries []AuditEntry
	if err := c.get("/jobs/"+url.PathEscape(id)+"/audit", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DispatchJob queues a created job
func (c *Client) DispatchJob(id string) error {
	resp, err := c.httpClient.Post(c.baseURL+"/jobs/"+url.PathEscape(id)+"/dispatch", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// GetWorkers fetches scheduler statistics
func (c *Client) GetWorkers() (*WorkersStats, error) {
	var stats WorkersStats
	if err := c.get("/workers", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// CheckHealth checks if the daemon is healthy
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var health struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, err
	}

	return health.OK, nil
}

func (c *Client) get(path string, v interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// checkStatus turns a non-2xx response into an error carrying the API message.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)

	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
}
