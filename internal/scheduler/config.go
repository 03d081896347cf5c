// Package scheduler consumes the work queue with a bounded pool of workers.
package scheduler

import (
	"time"

	"github.com/fentz26/doit/internal/models"
)

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent workers across all job types.
	GlobalMax int `yaml:"global_max"`
	// ByJobType defines per-job-type concurrency limits.
	ByJobType map[string]int `yaml:"by_job_type"`
	// PollInterval is how often the queue is polled, as a Go duration string.
	PollInterval string `yaml:"poll_interval"`
	// LeaseTTLSec is the lease length of a claimed queue item.
	LeaseTTLSec int `yaml:"lease_ttl_sec"`
	// MaxAttempts is how many deliveries an item gets before it is dropped.
	MaxAttempts int `yaml:"max_attempts"`

	// Timeouts bounds one handler invocation per job type.
	Timeouts map[models.JobType]time.Duration `yaml:"-"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax: 8,
		ByJobType: map[string]int{
			string(models.JobTypeAnalysis): 4,
			string(models.JobTypeBookmark): 4,
			string(models.JobTypeReview):   2,
		},
		PollInterval: "1s",
		LeaseTTLSec:  120,
		MaxAttempts:  3,
	}
}

// GetJobTypeLimit returns the concurrency limit for a job type.
func (c *Config) GetJobTypeLimit(jobType models.JobType) int {
	if limit, ok := c.ByJobType[string(jobType)]; ok {
		return limit
	}
	// Default limit if not specified
	return 1
}

// GetPollInterval returns the poll interval as a duration.
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// GetTimeout returns the handler deadline of a job type.
func (c *Config) GetTimeout(jobType models.JobType) time.Duration {
	if d, ok := c.Timeouts[jobType]; ok && d > 0 {
		return d
	}
	return 540 * time.Second
}
