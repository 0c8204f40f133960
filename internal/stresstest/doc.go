/*
Package stresstest replays one request template many times concurrently and
measures the results.

# Dispatch

Dispatch starts count requests through a Requester, never more than the
concurrency ceiling at once (a weighted semaphore). As soon as a request
returns, the next one is started. Outcomes arrive on Batch.Results in
completion order and the channel closes once everything has drained.
Batch.Cancel stops scheduling only; requests already in flight finish and
their outcomes are still delivered.

# Statistics

Stats counts pending, in-flight, successful and failed requests plus the
bytes sent and received. An outcome fails when it carries an error or a
non-2xx status. Response latencies go into a fixed-capacity reservoir, so
percentiles (nearest rank) stay cheap for arbitrarily large runs and are
approximate once the reservoir overflows. Rates are computed against the
run end, or against now for the realtime variants.

# Runs

Runner ties it together: it dispatches, records every outcome from a single
collector goroutine, exports Prometheus metrics, and stores the run and its
per-request metrics in SQLite through Manager.

	runner, err := stresstest.NewRunner(stresstest.RunnerOptions{
		Config:    &stresstest.Config{TemplateName: "login", TotalRequests: 1000, Concurrency: 50},
		Requester: pipeline,
		Manager:   manager,
	})
	if err != nil {
		return err
	}
	runner.Start(ctx)
	run := runner.Wait()
	fmt.Printf("%d ok, %d failed, p95 %.1fms\n", run.SuccessCount, run.FailureCount, run.P95DurationMs)
*/
package stresstest
