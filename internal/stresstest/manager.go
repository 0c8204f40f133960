package stresstest

import (
	"database/sql"
	"fmt"

	"github.com/studiowebux/restbench/internal/migrations"
)

// Manager handles run and metric persistence
type Manager struct {
	db *sql.DB
}

// NewManager opens the run database at dbPath
func NewManager(dbPath string) (*Manager, error) {
	db, err := migrations.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Manager{db: db}, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

// CreateRun creates a new run record
func (m *Manager) CreateRun(run *Run) error {
	result, err := m.db.Exec(`
		INSERT INTO bench_runs
		(project_name, template_name, started_at, status, concurrency, total_requests)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ProjectName, run.TemplateName, run.StartedAt, run.Status, run.Concurrency, run.TotalRequests)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// UpdateRun stores the final figures of a run
func (m *Manager) UpdateRun(run *Run) error {
	_, err := m.db.Exec(`
		UPDATE bench_runs
		SET completed_at = ?, status = ?, total_requests_sent = ?, total_requests_completed = ?,
		    success_count = ?, failure_count = ?, bytes_sent = ?, bytes_received = ?,
		    avg_duration_ms = ?, min_duration_ms = ?, max_duration_ms = ?,
		    p50_duration_ms = ?, p95_duration_ms = ?, p99_duration_ms = ?, qps = ?
		WHERE id = ?
	`, run.CompletedAt, run.Status, run.TotalRequestsSent, run.TotalRequestsCompleted,
		run.SuccessCount, run.FailureCount, run.BytesSent, run.BytesReceived,
		run.AvgDurationMs, run.MinDurationMs, run.MaxDurationMs,
		run.P50DurationMs, run.P95DurationMs, run.P99DurationMs, run.QPS, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

const runColumns = `
	id, COALESCE(project_name, ''), template_name, started_at, completed_at, status,
	concurrency, total_requests, total_requests_sent, total_requests_completed,
	success_count, failure_count, bytes_sent, bytes_received,
	avg_duration_ms, min_duration_ms, max_duration_ms,
	p50_duration_ms, p95_duration_ms, p99_duration_ms, qps`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.ProjectName, &run.TemplateName, &run.StartedAt, &completedAt, &run.Status,
		&run.Concurrency, &run.TotalRequests, &run.TotalRequestsSent, &run.TotalRequestsCompleted,
		&run.SuccessCount, &run.FailureCount, &run.BytesSent, &run.BytesReceived,
		&run.AvgDurationMs, &run.MinDurationMs, &run.MaxDurationMs,
		&run.P50DurationMs, &run.P95DurationMs, &run.P99DurationMs, &run.QPS)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(id int64) (*Run, error) {
	return scanRun(m.db.QueryRow("SELECT "+runColumns+" FROM bench_runs WHERE id = ?", id))
}

// ListRuns returns runs newest first. An empty project lists every project.
func (m *Manager) ListRuns(projectName string, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM bench_runs WHERE (? = '' OR project_name = ?) ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query, projectName, projectName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run and all its metrics
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM bench_metrics WHERE run_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM bench_runs WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveMetricsBatch saves multiple metrics in a single transaction
func (m *Manager) SaveMetricsBatch(metrics []*Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO bench_metrics
		(run_id, seq, timestamp, elapsed_ms, status_code, duration_ms, request_size, response_size, error_message, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, metric := range metrics {
		_, err := stmt.Exec(metric.RunID, metric.Seq, metric.Timestamp, metric.ElapsedMs, metric.StatusCode,
			metric.DurationMs, metric.RequestSize, metric.ResponseSize, metric.ErrorMessage, metric.Diagnostics)
		if err != nil {
			return fmt.Errorf("failed to insert metric: %w", err)
		}
	}

	return tx.Commit()
}

// GetMetrics retrieves all metrics for a run in elapsed order
func (m *Manager) GetMetrics(runID int64) ([]*Metric, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, seq, timestamp, elapsed_ms, status_code, duration_ms, request_size, response_size,
		       COALESCE(error_message, ''), COALESCE(diagnostics, '')
		FROM bench_metrics
		WHERE run_id = ?
		ORDER BY elapsed_ms, seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		metric := &Metric{}
		err := rows.Scan(&metric.ID, &metric.RunID, &metric.Seq, &metric.Timestamp, &metric.ElapsedMs,
			&metric.StatusCode, &metric.DurationMs, &metric.RequestSize, &metric.ResponseSize,
			&metric.ErrorMessage, &metric.Diagnostics)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}
