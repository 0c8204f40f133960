package stresstest

import (
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(":memory:")
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_RunLifecycle(t *testing.T) {
	m := newTestManager(t)

	run := &Run{
		ProjectName:   "shop",
		TemplateName:  "checkout",
		StartedAt:     time.Now().Add(-time.Minute),
		Status:        StatusRunning,
		Concurrency:   10,
		TotalRequests: 100,
	}
	if err := m.CreateRun(run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("Expected run ID to be set")
	}

	got, err := m.GetRun(run.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if got.CompletedAt != nil || !got.IsRunning() {
		t.Errorf("Expected a running run, got: %+v", got)
	}

	now := time.Now()
	run.CompletedAt = &now
	run.Status = StatusCompleted
	run.TotalRequestsSent = 100
	run.TotalRequestsCompleted = 100
	run.SuccessCount = 97
	run.FailureCount = 3
	run.P95DurationMs = 12.5
	run.QPS = 250
	if err := m.UpdateRun(run); err != nil {
		t.Fatalf("Failed to update run: %v", err)
	}

	got, err = m.GetRun(run.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if !got.IsCompleted() || got.CompletedAt == nil {
		t.Errorf("Expected completed run, got: %+v", got)
	}
	if got.SuccessCount != 97 || got.FailureCount != 3 || got.P95DurationMs != 12.5 || got.QPS != 250 {
		t.Errorf("Expected stored figures, got: %+v", got)
	}
	if got.SuccessRate() != 97 {
		t.Errorf("Expected success rate 97, got: %v", got.SuccessRate())
	}
}

func TestManager_ListRuns(t *testing.T) {
	m := newTestManager(t)
	base := time.Now()
	for i, project := range []string{"a", "b", "a"} {
		run := &Run{ProjectName: project, TemplateName: "t", StartedAt: base.Add(time.Duration(i) * time.Second), Status: StatusCompleted}
		if err := m.CreateRun(run); err != nil {
			t.Fatalf("Failed to create run: %v", err)
		}
	}

	all, err := m.ListRuns("", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("Expected 3 runs, got: %d (%v)", len(all), err)
	}
	if !all[0].StartedAt.After(all[1].StartedAt) {
		t.Error("Expected newest run first")
	}

	filtered, err := m.ListRuns("a", 0)
	if err != nil || len(filtered) != 2 {
		t.Errorf("Expected 2 runs for project a, got: %d (%v)", len(filtered), err)
	}

	limited, err := m.ListRuns("", 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("Expected limit to apply, got: %d (%v)", len(limited), err)
	}
}

func TestManager_Metrics(t *testing.T) {
	m := newTestManager(t)
	run := &Run{TemplateName: "t", StartedAt: time.Now(), Status: StatusRunning}
	if err := m.CreateRun(run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}

	metrics := []*Metric{
		{RunID: run.ID, Seq: 2, Timestamp: time.Now(), ElapsedMs: 20, StatusCode: 200, DurationMs: 4.5},
		{RunID: run.ID, Seq: 1, Timestamp: time.Now(), ElapsedMs: 10, ErrorMessage: "connect error: refused"},
	}
	if err := m.SaveMetricsBatch(metrics); err != nil {
		t.Fatalf("Failed to save metrics: %v", err)
	}
	if err := m.SaveMetricsBatch(nil); err != nil {
		t.Errorf("Expected empty batch to be a no-op, got: %v", err)
	}

	got, err := m.GetMetrics(run.ID)
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 1 || got[1].DurationMs != 4.5 {
		t.Errorf("Expected metrics ordered by elapsed time, got: %+v %+v", got[0], got[1])
	}
	if got[0].ErrorMessage == "" || got[0].StatusCode != 0 {
		t.Errorf("Expected the failed metric, got: %+v", got[0])
	}

	if err := m.DeleteRun(run.ID); err != nil {
		t.Fatalf("Failed to delete run: %v", err)
	}
	got, err = m.GetMetrics(run.ID)
	if err != nil || len(got) != 0 {
		t.Errorf("Expected metrics to be deleted with the run, got: %d (%v)", len(got), err)
	}
}
