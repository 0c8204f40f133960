// Package session persists variables captured while sending requests, so a
// value extracted by one command (a login token) is available to the next.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/studiowebux/restbench/internal/config"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/script"
	"github.com/studiowebux/restbench/internal/types"
)

// Session is the saved state of one project
type Session struct {
	Project   string            `json:"project"`
	Variables map[string]string `json:"variables"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Manager reads and writes session files in one directory
type Manager struct {
	dir string
}

// NewManager creates a manager rooted at dir
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

func (m *Manager) path(project string) string {
	return filepath.Join(m.dir, project+".json")
}

// Load returns the session of project. A missing file yields an empty session.
func (m *Manager) Load(project string) (*Session, error) {
	s := &Session{Project: project, Variables: make(map[string]string)}

	data, err := os.ReadFile(m.path(project))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if s.Variables == nil {
		s.Variables = make(map[string]string)
	}
	return s, nil
}

// Save writes s to disk
func (m *Manager) Save(s *Session) error {
	s.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.MkdirAll(m.dir, config.DirPermissions); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(m.path(s.Project), data, config.FilePermissions); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Clear removes the session of project
func (m *Manager) Clear(project string) error {
	err := os.Remove(m.path(project))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Overlay layers the session variables over the project's table
func (s *Session) Overlay(vars []types.Variable) []types.Variable {
	return parser.Overlay(vars, s.Variables)
}

// Capture records every value in store that differs from the project's
// original table. It returns the number of captured variables.
func (s *Session) Capture(original []types.Variable, store *parser.Store) int {
	captured := script.Changed(parser.ToMap(original), store.Map())
	for k, v := range captured {
		s.Variables[k] = v
	}
	return len(captured)
}
