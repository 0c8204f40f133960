package stresstest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studiowebux/restbench/internal/types"
)

// mockRequester succeeds after a fixed delay and tracks concurrency
type mockRequester struct {
	delay    time.Duration
	failSeq  int
	inFlight atomic.Int64
	peak     atomic.Int64
	started  atomic.Int64
}

func (m *mockRequester) Execute(ctx context.Context, seq int) types.Outcome {
	m.started.Add(1)
	n := m.inFlight.Add(1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(m.delay)
	m.inFlight.Add(-1)

	if seq == m.failSeq {
		return types.Outcome{Seq: seq, Timestamp: time.Now(), Err: errors.New("connection refused")}
	}
	return types.Outcome{
		Seq:       seq,
		Timestamp: time.Now(),
		Record:    &types.ResponseRecord{Status: 200, Duration: m.delay, RequestSize: 10, ResponseSize: 100},
	}
}

func drain(b *Batch) []types.Outcome {
	var out []types.Outcome
	for o := range b.Results() {
		out = append(out, o)
	}
	return out
}

func TestDispatch_RespectsConcurrencyCeiling(t *testing.T) {
	m := &mockRequester{delay: 5 * time.Millisecond}
	b := Dispatch(context.Background(), m, 50, 5)
	outcomes := drain(b)

	if len(outcomes) != 50 {
		t.Fatalf("Expected 50 outcomes, got: %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Failed() {
			t.Errorf("Expected success, got: %+v", o)
		}
	}
	if peak := m.peak.Load(); peak > 5 {
		t.Errorf("Expected at most 5 in flight, got: %d", peak)
	}
	if b.MaxInFlight() > 5 {
		t.Errorf("Expected batch peak at most 5, got: %d", b.MaxInFlight())
	}
	if b.InFlight() != 0 || b.Scheduled() != 50 {
		t.Errorf("Expected drained batch, got in-flight=%d scheduled=%d", b.InFlight(), b.Scheduled())
	}

	seen := make(map[int]bool)
	for _, o := range outcomes {
		seen[o.Seq] = true
	}
	if len(seen) != 50 {
		t.Errorf("Expected 50 distinct sequence numbers, got: %d", len(seen))
	}
}

func TestDispatch_FailuresDoNotStopTheBatch(t *testing.T) {
	m := &mockRequester{failSeq: 500}
	stats := NewStats(1000, 100)
	for o := range Dispatch(context.Background(), m, 1000, 20).Results() {
		stats.Record(o)
	}

	if stats.SuccessCount() != 999 || stats.FailureCount() != 1 {
		t.Errorf("Expected 999/1, got: %d/%d", stats.SuccessCount(), stats.FailureCount())
	}
}

func TestDispatch_CancelStopsScheduling(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int64
	var once sync.Once
	tenStarted := make(chan struct{})

	r := RequesterFunc(func(ctx context.Context, seq int) types.Outcome {
		if started.Add(1) == 10 {
			once.Do(func() { close(tenStarted) })
		}
		<-release
		return types.Outcome{Seq: seq, Record: &types.ResponseRecord{Status: 204}}
	})

	b := Dispatch(context.Background(), r, 100, 10)
	<-tenStarted
	inFlightAtCancel := b.InFlight()
	b.Cancel()
	close(release)

	outcomes := drain(b)
	if len(outcomes) > 10+inFlightAtCancel {
		t.Errorf("Expected at most %d completions, got: %d", 10+inFlightAtCancel, len(outcomes))
	}
	if len(outcomes) != b.Scheduled() {
		t.Errorf("Expected every started request to deliver, got %d of %d", len(outcomes), b.Scheduled())
	}
	for _, o := range outcomes {
		if o.Failed() {
			t.Errorf("Expected in-flight requests to complete normally, got: %+v", o)
		}
	}
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Error("Expected batch to be done")
	}
}

func TestDispatch_CancelDoesNotAbortInFlight(t *testing.T) {
	r := RequesterFunc(func(ctx context.Context, seq int) types.Outcome {
		time.Sleep(20 * time.Millisecond)
		if ctx.Err() != nil {
			return types.Outcome{Seq: seq, Err: ctx.Err()}
		}
		return types.Outcome{Seq: seq, Record: &types.ResponseRecord{Status: 200}}
	})

	b := Dispatch(context.Background(), r, 3, 3)
	time.Sleep(5 * time.Millisecond)
	b.Cancel()

	for _, o := range drain(b) {
		if o.Err != nil {
			t.Errorf("Expected request context to survive Cancel, got: %v", o.Err)
		}
	}
}

func TestDispatch_SingleRequest(t *testing.T) {
	outcomes := drain(Dispatch(context.Background(), &mockRequester{}, 1, 0))
	if len(outcomes) != 1 || outcomes[0].Seq != 1 {
		t.Errorf("Expected exactly one outcome with seq 1, got: %+v", outcomes)
	}
}

func TestDispatch_ZeroCount(t *testing.T) {
	b := Dispatch(context.Background(), &mockRequester{}, 0, 5)
	if outcomes := drain(b); len(outcomes) != 0 {
		t.Errorf("Expected no outcomes, got: %d", len(outcomes))
	}
}

func TestDispatch_FillsMissingSeq(t *testing.T) {
	r := RequesterFunc(func(ctx context.Context, seq int) types.Outcome {
		return types.Outcome{Err: errors.New("boom")}
	})
	for _, o := range drain(Dispatch(context.Background(), r, 3, 1)) {
		if o.Seq < 1 || o.Seq > 3 {
			t.Errorf("Expected seq to be filled in, got: %d", o.Seq)
		}
	}
}
