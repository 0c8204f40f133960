package stresstest

import (
	"fmt"
	"time"
)

const (
	// DefaultMaxConcurrency is the in-flight ceiling when none is configured
	DefaultMaxConcurrency = 10000
	// DefaultReservoirCapacity caps the latency sample kept for percentiles
	DefaultReservoirCapacity = 100000
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Config describes one batch run of a template
type Config struct {
	ProjectName  string
	TemplateName string
	// TotalRequests is the number of times the template is sent
	TotalRequests int
	// Concurrency is the requested in-flight limit. Zero means MaxConcurrency.
	Concurrency int
	// MaxConcurrency is the configured ceiling; Concurrency is clamped to it
	MaxConcurrency    int
	ReservoirCapacity int
	TestDurationSec   int // 0 = until all requests complete
}

// Validate validates the run configuration
func (c *Config) Validate() error {
	if c.TemplateName == "" {
		return fmt.Errorf("template name is required")
	}
	if c.TotalRequests <= 0 {
		return fmt.Errorf("total requests must be greater than 0")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency cannot be negative")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency cannot be negative")
	}
	if c.ReservoirCapacity < 0 {
		return fmt.Errorf("reservoir capacity cannot be negative")
	}
	if c.TestDurationSec < 0 {
		return fmt.Errorf("test duration cannot be negative")
	}
	return nil
}

// EffectiveConcurrency returns the in-flight limit actually used
func (c *Config) EffectiveConcurrency() int {
	ceiling := c.MaxConcurrency
	if ceiling <= 0 {
		ceiling = DefaultMaxConcurrency
	}
	if c.Concurrency <= 0 || c.Concurrency > ceiling {
		return ceiling
	}
	return c.Concurrency
}

// EffectiveReservoir returns the reservoir capacity for the run: the configured
// capacity, never more than the number of requests.
func (c *Config) EffectiveReservoir() int {
	capacity := c.ReservoirCapacity
	if capacity <= 0 {
		capacity = DefaultReservoirCapacity
	}
	if c.TotalRequests > 0 && c.TotalRequests < capacity {
		return c.TotalRequests
	}
	return capacity
}

// GetTestDuration returns the test duration as time.Duration
func (c *Config) GetTestDuration() time.Duration {
	if c.TestDurationSec == 0 {
		return 0 // Unlimited
	}
	return time.Duration(c.TestDurationSec) * time.Second
}

// Run is the persisted summary of a batch run
type Run struct {
	ID                     int64
	ProjectName            string
	TemplateName           string
	StartedAt              time.Time
	CompletedAt            *time.Time
	Status                 string
	Concurrency            int
	TotalRequests          int
	TotalRequestsSent      int
	TotalRequestsCompleted int
	SuccessCount           int
	FailureCount           int
	BytesSent              int64
	BytesReceived          int64
	AvgDurationMs          float64
	MinDurationMs          float64
	MaxDurationMs          float64
	P50DurationMs          float64
	P95DurationMs          float64
	P99DurationMs          float64
	QPS                    float64
}

// Metric is one persisted request outcome of a run
type Metric struct {
	ID           int64
	RunID        int64
	Seq          int
	Timestamp    time.Time
	ElapsedMs    int64
	StatusCode   int // 0 when no response was received
	DurationMs   float64
	RequestSize  int64
	ResponseSize int64
	ErrorMessage string
	Diagnostics  string
}

// IsRunning returns true if the run is currently in progress
func (r *Run) IsRunning() bool {
	return r.Status == StatusRunning
}

// IsCompleted returns true if the run has finished
func (r *Run) IsCompleted() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled || r.Status == StatusFailed
}

// SuccessRate returns the persisted success rate as a percentage
func (r *Run) SuccessRate() float64 {
	if r.TotalRequestsCompleted == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.TotalRequestsCompleted) * 100
}
