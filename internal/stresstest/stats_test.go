package stresstest

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/studiowebux/restbench/internal/types"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func ok(ms int) types.Outcome {
	return types.Outcome{Record: &types.ResponseRecord{
		Status:       200,
		Duration:     time.Duration(ms) * time.Millisecond,
		RequestSize:  1000,
		ResponseSize: 4000,
	}}
}

func TestStats_PercentileNearestRank(t *testing.T) {
	s := NewStats(4, 10)
	for _, ms := range []int{40, 10, 30, 20} {
		s.Record(ok(ms))
	}

	tests := []struct {
		p    float64
		want float64
	}{
		{50, 20},
		{0, 10},
		{25, 10},
		{75, 30},
		{99, 40},
		{100, 40},
		{150, 40},
	}
	for _, tt := range tests {
		got, found := s.Percentile(tt.p)
		if !found || got != tt.want {
			t.Errorf("Percentile(%v) = %v, %v; want %v", tt.p, got, found, tt.want)
		}
	}
}

func TestStats_PercentileEmpty(t *testing.T) {
	s := NewStats(10, 10)
	if _, found := s.Percentile(50); found {
		t.Error("Expected no percentile for an empty reservoir")
	}

	s.Record(types.Outcome{Err: errors.New("refused")})
	if _, found := s.Percentile(50); found {
		t.Error("Expected errors not to contribute latency samples")
	}
	if snap := s.Snapshot(); snap.HasLatency {
		t.Error("Expected snapshot without latency")
	}
}

func TestStats_SuccessRate(t *testing.T) {
	s := NewStats(10, 10)
	for i := 0; i < 7; i++ {
		s.Record(ok(5))
	}
	s.Record(types.Outcome{Err: errors.New("timeout")})
	s.Record(types.Outcome{Record: &types.ResponseRecord{Status: 500}})
	s.Record(types.Outcome{Record: &types.ResponseRecord{Status: 404}})

	if rate := s.SuccessRate(); rate != 70 {
		t.Errorf("Expected success rate 70, got: %v", rate)
	}
	if s.FailureCount() != 3 || s.Completed() != 10 {
		t.Errorf("Expected 3 failures of 10, got: %d of %d", s.FailureCount(), s.Completed())
	}
}

func TestStats_Latency(t *testing.T) {
	s := NewStats(3, 10)
	if s.AvgLatency() != 0 {
		t.Error("Expected zero average before any sample")
	}
	for _, ms := range []int{30, 10, 20} {
		s.Record(ok(ms))
	}
	if s.MinLatency() != 10 || s.MaxLatency() != 30 || s.AvgLatency() != 20 {
		t.Errorf("Expected min/avg/max 10/20/30, got: %v/%v/%v", s.MinLatency(), s.AvgLatency(), s.MaxLatency())
	}
}

func TestStats_PendingAndInFlight(t *testing.T) {
	s := NewStats(5, 10)
	s.Started()
	s.Started()
	s.Started()
	if s.Pending() != 2 || s.InFlight() != 3 {
		t.Errorf("Expected pending=2 in-flight=3, got: %d/%d", s.Pending(), s.InFlight())
	}

	s.Record(ok(1))
	if s.InFlight() != 2 || s.Completed() != 1 {
		t.Errorf("Expected in-flight=2 completed=1, got: %d/%d", s.InFlight(), s.Completed())
	}

	// an outcome without Started must not drive in-flight negative
	fresh := NewStats(1, 1)
	fresh.Record(ok(1))
	if fresh.InFlight() != 0 || fresh.Pending() != 0 {
		t.Errorf("Expected no in-flight or pending, got: %d/%d", fresh.InFlight(), fresh.Pending())
	}
}

func TestStats_ReservoirBounded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	s := newStats(10000, 100, rand.New(rand.NewSource(1)), clock.now)
	for i := 1; i <= 10000; i++ {
		s.Record(ok(i % 1000))
	}

	s.mu.RLock()
	size := len(s.reservoir)
	s.mu.RUnlock()
	if size != 100 {
		t.Errorf("Expected reservoir capped at 100, got: %d", size)
	}
	if s.Completed() != 10000 {
		t.Errorf("Expected all outcomes counted, got: %d", s.Completed())
	}
	// min and max are exact regardless of eviction
	if s.MinLatency() != 0 || s.MaxLatency() != 999 {
		t.Errorf("Expected exact min/max 0/999, got: %v/%v", s.MinLatency(), s.MaxLatency())
	}
	p50, _ := s.Percentile(50)
	if p50 < 200 || p50 > 800 {
		t.Errorf("Expected a representative median, got: %v", p50)
	}
}

func TestStats_Rates(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newStats(10, 10, rand.New(rand.NewSource(1)), clock.now)
	s.Start()

	for i := 0; i < 10; i++ {
		s.Record(ok(5))
	}
	clock.t = clock.t.Add(2 * time.Second)

	if qps := s.RealtimeQPS(); qps != 5 {
		t.Errorf("Expected realtime QPS 5, got: %v", qps)
	}
	// 10 * 4000 bytes over 2s
	if mbps := s.RealtimeThroughputMBps(Download); mbps != 0.02 {
		t.Errorf("Expected realtime download 0.02 MB/s, got: %v", mbps)
	}

	s.Finish()
	clock.t = clock.t.Add(8 * time.Second)

	if qps := s.QPS(); qps != 5 {
		t.Errorf("Expected final QPS measured to the end, got: %v", qps)
	}
	if qps := s.RealtimeQPS(); qps != 1 {
		t.Errorf("Expected realtime QPS against now, got: %v", qps)
	}
	if mbps := s.ThroughputMBps(Upload); mbps != 0.005 {
		t.Errorf("Expected upload 0.005 MB/s, got: %v", mbps)
	}
	if s.Bytes(Upload) != 10000 || s.Bytes(Download) != 40000 {
		t.Errorf("Expected byte totals 10000/40000, got: %d/%d", s.Bytes(Upload), s.Bytes(Download))
	}

	snap := s.Snapshot()
	if !snap.Finished || snap.Elapsed != 2*time.Second || snap.QPS != 5 {
		t.Errorf("Expected final snapshot, got: %+v", snap)
	}
	if snap.Progress() != 1 {
		t.Errorf("Expected progress 1, got: %v", snap.Progress())
	}
}

func TestStats_RatesBeforeStart(t *testing.T) {
	s := NewStats(1, 1)
	if s.QPS() != 0 || s.RealtimeThroughputMBps(Upload) != 0 {
		t.Error("Expected zero rates before the run starts")
	}
}
