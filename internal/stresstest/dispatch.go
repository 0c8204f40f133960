package stresstest

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/studiowebux/restbench/internal/types"
)

// Requester performs request number seq and reports every failure in the outcome
type Requester interface {
	Execute(ctx context.Context, seq int) types.Outcome
}

// RequesterFunc adapts a function to Requester
type RequesterFunc func(ctx context.Context, seq int) types.Outcome

// Execute calls f
func (f RequesterFunc) Execute(ctx context.Context, seq int) types.Outcome {
	return f(ctx, seq)
}

// Batch is one dispatched run. Results are delivered in completion order.
type Batch struct {
	results chan types.Outcome
	cancel  context.CancelFunc
	done    chan struct{}

	scheduled   atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// Dispatch sends count requests through r with at most maxConcurrency in flight.
// A non-positive maxConcurrency uses DefaultMaxConcurrency.
//
// ctx is handed to every request; cancelling it aborts in-flight I/O as well as
// scheduling. Batch.Cancel only stops scheduling: requests already started run
// to completion and their outcomes are still delivered.
func Dispatch(ctx context.Context, r Requester, count, maxConcurrency int) *Batch {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if count < 0 {
		count = 0
	}
	buffer := maxConcurrency
	if count < buffer {
		buffer = count
	}

	schedCtx, cancel := context.WithCancel(ctx)
	b := &Batch{
		results: make(chan types.Outcome, buffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go b.schedule(ctx, schedCtx, r, count, maxConcurrency)
	return b
}

func (b *Batch) schedule(ctx, schedCtx context.Context, r Requester, count, limit int) {
	defer close(b.done)
	defer b.cancel()

	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup

	for seq := 1; seq <= count; seq++ {
		if err := sem.Acquire(schedCtx, 1); err != nil {
			break
		}
		// Acquire may succeed on an already cancelled context
		if schedCtx.Err() != nil {
			sem.Release(1)
			break
		}

		b.scheduled.Add(1)
		b.trackStart()
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			defer sem.Release(1)

			outcome := r.Execute(ctx, seq)
			if outcome.Seq == 0 {
				outcome.Seq = seq
			}
			b.inFlight.Add(-1)
			b.results <- outcome
		}(seq)
	}

	wg.Wait()
	close(b.results)
}

func (b *Batch) trackStart() {
	n := b.inFlight.Add(1)
	for {
		peak := b.maxInFlight.Load()
		if n <= peak || b.maxInFlight.CompareAndSwap(peak, n) {
			return
		}
	}
}

// Results returns the outcome channel. It is closed once scheduling has
// stopped and every started request has delivered its outcome.
func (b *Batch) Results() <-chan types.Outcome {
	return b.results
}

// Cancel stops scheduling new requests
func (b *Batch) Cancel() {
	b.cancel()
}

// Done is closed when the batch has fully drained
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Scheduled returns how many requests have been started
func (b *Batch) Scheduled() int {
	return int(b.scheduled.Load())
}

// InFlight returns how many started requests have not returned yet
func (b *Batch) InFlight() int {
	return int(b.inFlight.Load())
}

// MaxInFlight returns the highest concurrent in-flight count observed
func (b *Batch) MaxInFlight() int {
	return int(b.maxInFlight.Load())
}
