package stresstest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studiowebux/restbench/internal/types"
)

const defaultFlushSize = 100

// RunnerOptions configures a batch run
type RunnerOptions struct {
	Config    *Config
	Requester Requester
	Manager   *Manager // optional: persist the run and its metrics
	Metrics   *Metrics // optional: export to Prometheus
	Logger    *slog.Logger
	// FlushSize is the number of metrics buffered before a database write
	FlushSize int
}

// Runner drives one batch run: it dispatches the requests, owns the
// statistics as their only writer, and persists the results.
type Runner struct {
	config    *Config
	requester Requester
	manager   *Manager
	metrics   *Metrics
	logger    *slog.Logger
	flushSize int

	stats *Stats
	run   *Run
	batch *Batch

	testStart       time.Time
	metricsBuf      []*Metric
	stopped         atomic.Bool
	durationReached atomic.Bool
	startOnce       sync.Once
	done            chan struct{}
}

// NewRunner validates the configuration and creates the run record
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("invalid config: missing")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Requester == nil {
		return nil, fmt.Errorf("requester is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FlushSize <= 0 {
		opts.FlushSize = defaultFlushSize
	}

	cfg := opts.Config
	run := &Run{
		ProjectName:   cfg.ProjectName,
		TemplateName:  cfg.TemplateName,
		StartedAt:     time.Now(),
		Status:        StatusRunning,
		Concurrency:   cfg.EffectiveConcurrency(),
		TotalRequests: cfg.TotalRequests,
	}
	if opts.Manager != nil {
		if err := opts.Manager.CreateRun(run); err != nil {
			return nil, fmt.Errorf("failed to create run record: %w", err)
		}
	}

	return &Runner{
		config:     cfg,
		requester:  opts.Requester,
		manager:    opts.Manager,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("template", cfg.TemplateName, "run", run.ID),
		flushSize:  opts.FlushSize,
		stats:      NewStats(cfg.TotalRequests, cfg.EffectiveReservoir()),
		run:        run,
		metricsBuf: make([]*Metric, 0, opts.FlushSize),
		done:       make(chan struct{}),
	}, nil
}

// Start begins dispatching. ctx bounds the whole run including in-flight I/O.
func (r *Runner) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.testStart = time.Now()
		r.stats.Start()
		r.logger.Info("run started",
			"requests", r.config.TotalRequests,
			"concurrency", r.run.Concurrency)

		r.batch = Dispatch(ctx, RequesterFunc(r.execute), r.config.TotalRequests, r.run.Concurrency)
		go r.collectResults()

		if d := r.config.GetTestDuration(); d > 0 {
			go r.durationTimer(d)
		}
	})
}

func (r *Runner) execute(ctx context.Context, seq int) types.Outcome {
	r.stats.Started()
	r.metrics.started(r.config.TemplateName)
	defer r.metrics.finished(r.config.TemplateName)
	return r.requester.Execute(ctx, seq)
}

// durationTimer stops scheduling once the test duration has elapsed
func (r *Runner) durationTimer(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		r.durationReached.Store(true)
		r.batch.Cancel()
	case <-r.done:
	}
}

// Stop stops scheduling new requests. In-flight requests still complete.
func (r *Runner) Stop() {
	r.stopped.Store(true)
	if r.batch != nil {
		r.batch.Cancel()
	}
}

// Wait blocks until the run is finalized and returns its record
func (r *Runner) Wait() *Run {
	<-r.done
	return r.run
}

// Done is closed once every outcome has been recorded and the run finalized
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Stats returns the live statistics
func (r *Runner) Stats() *Stats {
	return r.stats
}

// Run returns the run record. Its figures are final once Done is closed.
func (r *Runner) Run() *Run {
	return r.run
}

// collectResults is the only writer of the statistics
func (r *Runner) collectResults() {
	defer close(r.done)

	for outcome := range r.batch.Results() {
		r.stats.Record(outcome)
		r.metrics.observe(r.config.TemplateName, outcome)

		for _, d := range outcome.Diagnostics {
			r.logger.Debug("request diagnostic", "seq", outcome.Seq, "message", d)
		}
		if outcome.Err != nil {
			r.logger.Debug("request failed", "seq", outcome.Seq, "error", outcome.Err)
		}

		if r.manager != nil {
			r.metricsBuf = append(r.metricsBuf, r.metric(outcome))
			if len(r.metricsBuf) >= r.flushSize {
				r.flushMetrics()
			}
		}
	}

	r.flushMetrics()
	r.stats.Finish()
	r.finalize(r.status())
}

func (r *Runner) metric(outcome types.Outcome) *Metric {
	ts := outcome.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	m := &Metric{
		RunID:       r.run.ID,
		Seq:         outcome.Seq,
		Timestamp:   ts,
		ElapsedMs:   ts.Sub(r.testStart).Milliseconds(),
		Diagnostics: strings.Join(outcome.Diagnostics, "\n"),
	}
	if outcome.Err != nil {
		m.ErrorMessage = outcome.Err.Error()
	}
	if rec := outcome.Record; rec != nil {
		m.StatusCode = rec.Status
		m.DurationMs = rec.DurationMs()
		m.RequestSize = rec.RequestSize
		m.ResponseSize = rec.ResponseSize
	}
	return m
}

// flushMetrics writes buffered metrics to the database
func (r *Runner) flushMetrics() {
	if r.manager == nil || len(r.metricsBuf) == 0 {
		return
	}
	if err := r.manager.SaveMetricsBatch(r.metricsBuf); err != nil {
		r.logger.Warn("failed to save metrics", "count", len(r.metricsBuf), "error", err)
	}
	r.metricsBuf = r.metricsBuf[:0]
}

func (r *Runner) status() string {
	if r.stats.Completed() >= r.config.TotalRequests {
		return StatusCompleted
	}
	// stopping at the configured duration is a normal end
	if r.durationReached.Load() && !r.stopped.Load() {
		return StatusCompleted
	}
	return StatusCancelled
}

// finalize completes the run record with final statistics
func (r *Runner) finalize(status string) {
	snap := r.stats.Snapshot()
	now := time.Now()

	r.run.CompletedAt = &now
	r.run.Status = status
	r.run.TotalRequestsSent = r.batch.Scheduled()
	r.run.TotalRequestsCompleted = snap.Completed
	r.run.SuccessCount = snap.Success
	r.run.FailureCount = snap.Failed
	r.run.BytesSent = snap.BytesSent
	r.run.BytesReceived = snap.BytesReceived
	r.run.AvgDurationMs = snap.AvgMs
	r.run.MinDurationMs = snap.MinMs
	r.run.MaxDurationMs = snap.MaxMs
	r.run.P50DurationMs = snap.P50Ms
	r.run.P95DurationMs = snap.P95Ms
	r.run.P99DurationMs = snap.P99Ms
	r.run.QPS = snap.QPS

	if r.manager != nil {
		if err := r.manager.UpdateRun(r.run); err != nil {
			r.logger.Warn("failed to update run record", "error", err)
		}
	}

	r.logger.Info("run finished",
		"status", status,
		"completed", snap.Completed,
		"success", snap.Success,
		"failed", snap.Failed,
		"qps", fmt.Sprintf("%.1f", snap.QPS),
		"elapsed", snap.Elapsed.Round(time.Millisecond))
}
