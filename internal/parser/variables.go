package parser

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/studiowebux/restbench/internal/types"
)

// Variable placeholder pattern: {{varName}}. Braces are excluded from the name
// so "{{{var}}}" matches the inner token only.
var varPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Resolve replaces {{ name }} tokens with the value of the first enabled
// variable whose key matches. Unknown tokens are left verbatim and resolved
// values are not expanded again.
func Resolve(input string, vars []types.Variable) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	return varPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := Lookup(vars, name); ok {
			return value
		}
		return match
	})
}

// Lookup returns the value of the first enabled variable with the given key
func Lookup(vars []types.Variable, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	for _, v := range vars {
		if v.Enabled && v.Key == key {
			return v.Value, true
		}
	}
	return "", false
}

// ExtractVariableNames extracts all unique variable names from a string
// Returns variable names without the {{ }} brackets
func ExtractVariableNames(input string) []string {
	matches := varPattern.FindAllStringSubmatch(input, -1)
	seen := make(map[string]bool)
	var names []string
	for _, match := range matches {
		if len(match) > 1 {
			name := strings.TrimSpace(match[1])
			if name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// ExtractTemplateVariables extracts all unique variable names referenced by a
// template: URL, query, headers, form fields and raw body
func ExtractTemplateVariables(tmpl *types.RequestTemplate) []string {
	seen := make(map[string]bool)
	var names []string

	addNames := func(input string) {
		for _, name := range ExtractVariableNames(input) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	addPairs := func(pairs []types.Pair) {
		for _, p := range pairs {
			if p.Active() {
				addNames(p.Value)
			}
		}
	}

	addNames(tmpl.URL)
	addPairs(tmpl.Query)
	addPairs(tmpl.Headers)
	addPairs(tmpl.BodyForm)
	addPairs(tmpl.BodyFormData)
	addNames(tmpl.BodyRaw)

	return names
}

// Unresolved returns the placeholder names in tmpl that have no enabled variable
func Unresolved(tmpl *types.RequestTemplate, vars []types.Variable) []string {
	var missing []string
	for _, name := range ExtractTemplateVariables(tmpl) {
		if _, ok := Lookup(vars, name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Overlay returns a table where updates take precedence over base. Updates are
// placed first so the first-match rule picks them.
func Overlay(base []types.Variable, updates map[string]string) []types.Variable {
	if len(updates) == 0 {
		return base
	}
	out := make([]types.Variable, 0, len(base)+len(updates))
	for _, key := range sortedKeys(updates) {
		out = append(out, types.Variable{Key: key, Value: updates[key], Enabled: true})
	}
	return append(out, base...)
}

// ParseAssignments parses key=value pairs as given on the command line
func ParseAssignments(assignments []string) (map[string]string, error) {
	vars := make(map[string]string, len(assignments))
	for _, a := range assignments {
		parts := strings.SplitN(a, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid variable assignment %q (expected key=value)", a)
		}
		vars[strings.TrimSpace(parts[0])] = parts[1]
	}
	return vars, nil
}

// LoadEnvFile loads variables from a .env file
func LoadEnvFile(path string) (map[string]string, error) {
	envVars := make(map[string]string)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue // Skip malformed lines
		}

		key := strings.TrimSpace(strings.TrimPrefix(parts[0], "export "))
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		envVars[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading env file: %w", err)
	}

	return envVars, nil
}

// Store is the project variable table shared by concurrent requests.
// Reads take a snapshot; writes are serialized so updates from different
// responses are merged one at a time.
type Store struct {
	mu   sync.RWMutex
	vars []types.Variable
}

// NewStore creates a store holding a copy of vars
func NewStore(vars []types.Variable) *Store {
	s := &Store{vars: make([]types.Variable, len(vars))}
	copy(s.vars, vars)
	return s
}

// Snapshot returns a copy of the current table
func (s *Store) Snapshot() []types.Variable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Variable, len(s.vars))
	copy(out, s.vars)
	return out
}

// Get returns the value of the first enabled variable named key
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Lookup(s.vars, key)
}

// Set updates the first variable named key, enabling it, or appends a new one
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value)
}

// Merge applies all updates under a single lock and returns how many
// variables actually changed
func (s *Store) Merge(updates map[string]string) int {
	if len(updates) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, key := range sortedKeys(updates) {
		if s.setLocked(key, updates[key]) {
			changed++
		}
	}
	return changed
}

func (s *Store) setLocked(key, value string) bool {
	for i := range s.vars {
		if s.vars[i].Key == key {
			if s.vars[i].Value == value && s.vars[i].Enabled {
				return false
			}
			s.vars[i].Value = value
			s.vars[i].Enabled = true
			return true
		}
	}
	s.vars = append(s.vars, types.Variable{Key: key, Value: value, Enabled: true})
	return true
}

// Map returns the enabled variables as a map, first match winning
func (s *Store) Map() map[string]string {
	return ToMap(s.Snapshot())
}

// ToMap converts a table into a map using the first-match rule
func ToMap(vars []types.Variable) map[string]string {
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		if !v.Enabled || v.Key == "" {
			continue
		}
		if _, exists := out[v.Key]; !exists {
			out[v.Key] = v.Value
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
