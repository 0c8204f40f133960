package stresstest

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/studiowebux/restbench/internal/types"
)

const bytesPerMB = 1000 * 1000

// Direction selects the byte counter used for throughput
type Direction int

const (
	Upload Direction = iota
	Download
)

// Stats aggregates the outcomes of one run. Record is called by a single
// collector goroutine; readers may call any method concurrently.
//
// Latencies are kept in a fixed-capacity reservoir (Algorithm R): the first
// capacity samples are stored as they come, after that each new sample
// replaces a uniformly random slot with probability capacity/seen.
// Percentiles are exact until the reservoir overflows and approximate after.
type Stats struct {
	mu sync.RWMutex

	total   int
	started int
	success int
	failed  int

	bytesSent     int64
	bytesReceived int64

	reservoir []float64
	capacity  int
	seen      int64
	sumMs     float64
	minMs     float64
	maxMs     float64

	startedAt time.Time
	endedAt   time.Time

	rng *rand.Rand
	now func() time.Time
}

// NewStats creates the aggregator for a run of total requests
func NewStats(total, capacity int) *Stats {
	return newStats(total, capacity, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
}

func newStats(total, capacity int, rng *rand.Rand, now func() time.Time) *Stats {
	if capacity <= 0 {
		capacity = DefaultReservoirCapacity
	}
	initial := capacity
	if initial > 1024 {
		initial = 1024
	}
	return &Stats{
		total:     total,
		capacity:  capacity,
		reservoir: make([]float64, 0, initial),
		rng:       rng,
		now:       now,
	}
}

// Start marks the run start time
func (s *Stats) Start() {
	s.mu.Lock()
	s.startedAt = s.now()
	s.mu.Unlock()
}

// Finish marks the run end time. Final rates are measured against it.
func (s *Stats) Finish() {
	s.mu.Lock()
	s.endedAt = s.now()
	s.mu.Unlock()
}

// Started moves one request from pending to in flight
func (s *Stats) Started() {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
}

// Record folds one outcome into the statistics. The request leaves the
// in-flight set and counts as a success or a failure in the same step.
func (s *Stats) Record(outcome types.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started < s.completed()+1 {
		// outcome of a request that was never marked started
		s.started = s.completed() + 1
	}
	if outcome.Failed() {
		s.failed++
	} else {
		s.success++
	}

	if outcome.Err != nil || outcome.Record == nil {
		return
	}
	s.bytesSent += outcome.Record.RequestSize
	s.bytesReceived += outcome.Record.ResponseSize
	s.addSample(outcome.Record.DurationMs())
}

func (s *Stats) completed() int {
	return s.success + s.failed
}

func (s *Stats) addSample(ms float64) {
	s.seen++
	s.sumMs += ms
	if s.seen == 1 || ms < s.minMs {
		s.minMs = ms
	}
	if s.seen == 1 || ms > s.maxMs {
		s.maxMs = ms
	}

	if len(s.reservoir) < s.capacity {
		s.reservoir = append(s.reservoir, ms)
		return
	}
	if j := s.rng.Int63n(s.seen); j < int64(s.capacity) {
		s.reservoir[j] = ms
	}
}

// Total returns the number of requests the run was asked to send
func (s *Stats) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Completed returns the number of recorded outcomes
func (s *Stats) Completed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed()
}

// SuccessCount returns the number of successful outcomes
func (s *Stats) SuccessCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.success
}

// FailureCount returns the number of failed outcomes
func (s *Stats) FailureCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failed
}

// Pending returns the number of requests not started yet
func (s *Stats) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.total - s.started; p > 0 {
		return p
	}
	return 0
}

// InFlight returns the number of started requests without an outcome
func (s *Stats) InFlight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started - s.completed()
}

// SuccessRate returns the success rate as a percentage
func (s *Stats) SuccessRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.successRate()
}

func (s *Stats) successRate() float64 {
	if s.completed() == 0 {
		return 0
	}
	return float64(s.success) / float64(s.completed()) * 100
}

// MinLatency returns the fastest response time in milliseconds
func (s *Stats) MinLatency() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minMs
}

// AvgLatency returns the mean response time in milliseconds over every response
func (s *Stats) AvgLatency() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avgLatency()
}

func (s *Stats) avgLatency() float64 {
	if s.seen == 0 {
		return 0
	}
	return s.sumMs / float64(s.seen)
}

// MaxLatency returns the slowest response time in milliseconds
func (s *Stats) MaxLatency() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxMs
}

// Percentile returns the nearest-rank percentile p (0-100) of the latency
// sample. ok is false when no response has been recorded.
func (s *Stats) Percentile(p float64) (float64, bool) {
	s.mu.RLock()
	sorted := make([]float64, len(s.reservoir))
	copy(sorted, s.reservoir)
	s.mu.RUnlock()

	sort.Float64s(sorted)
	return percentile(sorted, p)
}

// percentile expects sorted input
func percentile(sorted []float64, p float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx], true
}

// QPS returns completed requests per second over the run. Until the run
// finishes it is measured against now.
func (s *Stats) QPS() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate(float64(s.completed()), s.finalElapsed())
}

// RealtimeQPS returns completed requests per second since the run started
func (s *Stats) RealtimeQPS() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate(float64(s.completed()), s.sinceStart())
}

// ThroughputMBps returns megabytes per second in direction over the run
func (s *Stats) ThroughputMBps(dir Direction) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate(s.megabytes(dir), s.finalElapsed())
}

// RealtimeThroughputMBps returns megabytes per second in direction since the run started
func (s *Stats) RealtimeThroughputMBps(dir Direction) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate(s.megabytes(dir), s.sinceStart())
}

// Bytes returns the cumulative byte counter for direction
func (s *Stats) Bytes(dir Direction) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if dir == Upload {
		return s.bytesSent
	}
	return s.bytesReceived
}

func (s *Stats) megabytes(dir Direction) float64 {
	if dir == Upload {
		return float64(s.bytesSent) / bytesPerMB
	}
	return float64(s.bytesReceived) / bytesPerMB
}

func (s *Stats) sinceStart() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return s.now().Sub(s.startedAt)
}

func (s *Stats) finalElapsed() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	if s.endedAt.IsZero() {
		return s.now().Sub(s.startedAt)
	}
	return s.endedAt.Sub(s.startedAt)
}

func (s *Stats) rate(amount float64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return amount / elapsed.Seconds()
}

// Snapshot is a consistent copy of the statistics for display and persistence
type Snapshot struct {
	Total       int
	Pending     int
	InFlight    int
	Completed   int
	Success     int
	Failed      int
	SuccessRate float64

	// Latency fields are zero and HasLatency false until a response is recorded
	HasLatency bool
	MinMs      float64
	AvgMs      float64
	MaxMs      float64
	P50Ms      float64
	P95Ms      float64
	P99Ms      float64

	QPS           float64
	UploadMBps    float64
	DownloadMBps  float64
	BytesSent     int64
	BytesReceived int64
	Elapsed       time.Duration
	Finished      bool
}

// Snapshot returns the current statistics. Rates are realtime while the run
// is going and final once Finish was called.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	sorted := make([]float64, len(s.reservoir))
	copy(sorted, s.reservoir)

	finished := !s.endedAt.IsZero()
	elapsed := s.sinceStart()
	if finished {
		elapsed = s.finalElapsed()
	}
	pending := s.total - s.started
	if pending < 0 {
		pending = 0
	}

	snap := Snapshot{
		Total:         s.total,
		Pending:       pending,
		InFlight:      s.started - s.completed(),
		Completed:     s.completed(),
		Success:       s.success,
		Failed:        s.failed,
		SuccessRate:   s.successRate(),
		HasLatency:    s.seen > 0,
		MinMs:         s.minMs,
		AvgMs:         s.avgLatency(),
		MaxMs:         s.maxMs,
		QPS:           s.rate(float64(s.completed()), elapsed),
		UploadMBps:    s.rate(s.megabytes(Upload), elapsed),
		DownloadMBps:  s.rate(s.megabytes(Download), elapsed),
		BytesSent:     s.bytesSent,
		BytesReceived: s.bytesReceived,
		Elapsed:       elapsed,
		Finished:      finished,
	}
	s.mu.RUnlock()

	sort.Float64s(sorted)
	snap.P50Ms, _ = percentile(sorted, 50)
	snap.P95Ms, _ = percentile(sorted, 95)
	snap.P99Ms, _ = percentile(sorted, 99)
	return snap
}

// Progress returns the completion progress as a fraction between 0 and 1
func (s Snapshot) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}
