package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studiowebux/restbench/internal/compiler"
	"github.com/studiowebux/restbench/internal/migrations"
	"github.com/studiowebux/restbench/internal/types"
)

// Entry is one sent request and its response
type Entry struct {
	ID                 int64
	Timestamp          time.Time
	ProjectName        string
	TemplateName       string
	Method             string
	URL                string
	Headers            []types.Pair
	Body               string
	ResponseStatus     int
	ResponseStatusText string
	ResponseHeaders    []types.Pair
	ResponseBody       string
	DurationMs         float64
	RequestSize        int64
	ResponseSize       int64
	Error              string
}

// Manager stores single-request history in SQLite
type Manager struct {
	db *sql.DB
}

// NewManager opens the history database at dbPath
func NewManager(dbPath string) (*Manager, error) {
	db, err := migrations.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Manager{db: db}, nil
}

// Save records a compiled request and the outcome of sending it
func (m *Manager) Save(projectName, templateName string, req *compiler.CompiledRequest, outcome types.Outcome) error {
	headersJSON, err := json.Marshal(req.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	entry := Entry{RequestSize: req.Size()}
	if rec := outcome.Record; rec != nil {
		entry.ResponseStatus = rec.Status
		entry.ResponseStatusText = rec.StatusText
		entry.ResponseHeaders = rec.Headers
		entry.ResponseBody = string(rec.Body)
		entry.DurationMs = rec.DurationMs()
		entry.ResponseSize = rec.ResponseSize
	}
	if outcome.Err != nil {
		entry.Error = outcome.Err.Error()
	}
	responseHeadersJSON, err := json.Marshal(entry.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("failed to marshal response headers: %w", err)
	}

	ts := outcome.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = m.db.Exec(`
		INSERT INTO history (
			timestamp, project_name, template_name, method, url, headers, body,
			response_status, response_status_text, response_headers, response_body,
			duration_ms, request_size, response_size, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ts,
		projectName,
		templateName,
		req.Method,
		req.URL,
		string(headersJSON),
		string(req.Body),
		entry.ResponseStatus,
		entry.ResponseStatusText,
		string(responseHeadersJSON),
		entry.ResponseBody,
		entry.DurationMs,
		entry.RequestSize,
		entry.ResponseSize,
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}
	return nil
}

const entryColumns = `
	id, timestamp, COALESCE(project_name, ''), template_name, method, url, headers, COALESCE(body, ''),
	response_status, response_status_text, response_headers, response_body,
	duration_ms, COALESCE(request_size, 0), COALESCE(response_size, 0), COALESCE(error, '')`

// Load returns entries newest first. An empty project loads every project.
func (m *Manager) Load(projectName string, limit int) ([]Entry, error) {
	query := "SELECT " + entryColumns + " FROM history WHERE (? = '' OR project_name = ?) ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query, projectName, projectName)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// LoadForTemplate returns the entries of one template, newest first
func (m *Manager) LoadForTemplate(projectName, templateName string) ([]Entry, error) {
	rows, err := m.db.Query("SELECT "+entryColumns+` FROM history
		WHERE (? = '' OR project_name = ?) AND template_name = ?
		ORDER BY timestamp DESC, id DESC`, projectName, projectName, templateName)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for template: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var headersJSON, responseHeadersJSON string
		err := rows.Scan(
			&e.ID, &e.Timestamp, &e.ProjectName, &e.TemplateName, &e.Method, &e.URL, &headersJSON, &e.Body,
			&e.ResponseStatus, &e.ResponseStatusText, &responseHeadersJSON, &e.ResponseBody,
			&e.DurationMs, &e.RequestSize, &e.ResponseSize, &e.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		// unreadable header columns degrade to empty lists
		_ = json.Unmarshal([]byte(headersJSON), &e.Headers)
		_ = json.Unmarshal([]byte(responseHeadersJSON), &e.ResponseHeaders)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear deletes all history entries
func (m *Manager) Clear() error {
	if _, err := m.db.Exec("DELETE FROM history"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Delete deletes one entry
func (m *Manager) Delete(id int64) error {
	if _, err := m.db.Exec("DELETE FROM history WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	return nil
}

// GetCount returns the total number of history entries
func (m *Manager) GetCount() (int, error) {
	var count int
	if err := m.db.QueryRow("SELECT COUNT(*) FROM history").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get history count: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
