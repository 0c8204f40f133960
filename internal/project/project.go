package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/restbench/internal/config"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/types"
)

// Extensions are the project file extensions, in lookup order
var Extensions = []string{".json", ".jsonc", ".yaml", ".yml"}

// ErrTemplateNotFound is returned when no template matches a query
var ErrTemplateNotFound = errors.New("template not found")

// Load reads a project file. JSON files may contain comments and trailing commas.
func Load(path string) (*types.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}

	var p types.Project
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &p); err != nil {
			return nil, fmt.Errorf("failed to parse JSON project %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse YAML project %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported project file extension: %s", filepath.Ext(path))
	}

	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := Validate(&p); err != nil {
		return nil, fmt.Errorf("invalid project %s: %w", path, err)
	}
	return &p, nil
}

// Save writes a project in the format given by the path extension
func Save(path string, p *types.Project) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data, err = json.MarshalIndent(p, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(p)
	default:
		return fmt.Errorf("unsupported project file extension: %s", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), config.DirPermissions); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := os.WriteFile(path, data, config.FilePermissions); err != nil {
		return fmt.Errorf("failed to write project: %w", err)
	}
	return nil
}

// Find resolves a project argument: an existing file path, or a name looked
// up in dir with each of Extensions.
func Find(nameOrPath, dir string) (string, error) {
	if info, err := os.Stat(nameOrPath); err == nil && !info.IsDir() {
		return nameOrPath, nil
	}
	for _, ext := range Extensions {
		candidate := filepath.Join(dir, nameOrPath+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("project %q not found (looked in %s)", nameOrPath, dir)
}

// Validate checks template names and methods
func Validate(p *types.Project) error {
	for gi, g := range p.Groups {
		for ti := range g.Templates {
			t := &p.Groups[gi].Templates[ti]
			if t.Name == "" {
				return fmt.Errorf("group %q: template %d has no name", g.Name, ti+1)
			}
			if t.Method == "" {
				t.Method = types.MethodGet
				continue
			}
			m, err := types.ParseMethod(string(t.Method))
			if err != nil {
				return fmt.Errorf("template %q: %w", t.Name, err)
			}
			t.Method = m
		}
	}
	return nil
}

// Entry is a template with the group it belongs to
type Entry struct {
	Group    string
	Template *types.RequestTemplate
}

// Path returns "group/name", or just the name for ungrouped templates
func (e Entry) Path() string {
	if e.Group == "" {
		return e.Template.Name
	}
	return e.Group + "/" + e.Template.Name
}

// Templates lists every template in declaration order
func Templates(p *types.Project) []Entry {
	var out []Entry
	for gi := range p.Groups {
		g := &p.Groups[gi]
		for ti := range g.Templates {
			out = append(out, Entry{Group: g.Name, Template: &g.Templates[ti]})
		}
	}
	return out
}

type entryList []Entry

func (l entryList) String(i int) string { return l[i].Path() }
func (l entryList) Len() int            { return len(l) }

// FindTemplate returns the template matching query. An exact name or
// group/name wins (case-insensitive); otherwise the best fuzzy match is used.
func FindTemplate(p *types.Project, query string) (*types.RequestTemplate, error) {
	entries := entryList(Templates(p))
	for _, e := range entries {
		if strings.EqualFold(e.Template.Name, query) || strings.EqualFold(e.Path(), query) {
			return e.Template, nil
		}
	}

	matches := fuzzy.FindFrom(query, entries)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, query)
	}
	return entries[matches[0].Index].Template, nil
}

// Report lists the placeholders of each template that the given variables
// do not resolve, keyed by template path. Templates without gaps are omitted.
func Report(p *types.Project, vars []types.Variable) map[string][]string {
	out := make(map[string][]string)
	for _, e := range Templates(p) {
		if missing := parser.Unresolved(e.Template, vars); len(missing) > 0 {
			out[e.Path()] = missing
		}
	}
	return out
}
