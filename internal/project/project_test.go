package project

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/studiowebux/restbench/internal/types"
)

const jsoncProject = `{
  // shared by every template
  "variables": [
    {"key": "baseUrl", "value": "http://localhost:8080", "enabled": true},
  ],
  "groups": [
    {
      "name": "auth",
      "templates": [
        {"name": "login", "method": "post", "url": "{{baseUrl}}/login", "bodyRaw": "{\"user\":\"{{user}}\"}"},
        {"name": "logout", "url": "{{baseUrl}}/logout"},
      ],
    },
    {
      "name": "users",
      "templates": [
        {"name": "list users", "method": "GET", "url": "{{baseUrl}}/users", "headers": [{"key": "Authorization", "value": "Bearer {{token}}"}]},
      ],
    },
  ],
}`

const yamlProject = `name: demo
variables:
  - key: baseUrl
    value: http://localhost:8080
    enabled: true
groups:
  - name: ws
    templates:
      - name: chat
        method: WS
        url: ws://localhost:8080/chat
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_JSONC(t *testing.T) {
	p, err := Load(writeFile(t, "api.jsonc", jsoncProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name != "api" {
		t.Errorf("Name = %q, want name from file", p.Name)
	}
	if len(p.Variables) != 1 || p.Variables[0].Key != "baseUrl" {
		t.Errorf("Variables = %+v", p.Variables)
	}
	entries := Templates(p)
	if len(entries) != 3 {
		t.Fatalf("Templates() = %d entries, want 3", len(entries))
	}
	if entries[0].Template.Method != types.MethodPost {
		t.Errorf("login method = %q, want POST", entries[0].Template.Method)
	}
	if entries[1].Template.Method != types.MethodGet {
		t.Errorf("logout method = %q, want default GET", entries[1].Template.Method)
	}
	if got := entries[2].Path(); got != "users/list users" {
		t.Errorf("Path() = %q", got)
	}
}

func TestLoad_YAML(t *testing.T) {
	p, err := Load(writeFile(t, "demo.yaml", yamlProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name != "demo" {
		t.Errorf("Name = %q", p.Name)
	}
	tmpl, err := FindTemplate(p, "chat")
	if err != nil {
		t.Fatalf("FindTemplate() error = %v", err)
	}
	if !tmpl.Method.IsWebSocket() {
		t.Errorf("Method = %q, want WS", tmpl.Method)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown extension", "api.txt", "{}"},
		{"bad json", "api.json", "{"},
		{"bad yaml", "api.yaml", "groups: [\n"},
		{"bad method", "api.json", `{"groups":[{"name":"g","templates":[{"name":"x","method":"FETCH"}]}]}`},
		{"unnamed template", "api.json", `{"groups":[{"name":"g","templates":[{"url":"http://x"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.file, tt.content)); err == nil {
				t.Error("Load() expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load() on missing file expected error")
	}
}

func TestSave_RoundTripsByExtension(t *testing.T) {
	src, err := Load(writeFile(t, "api.jsonc", jsoncProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	dir := t.TempDir()
	for _, name := range []string{"out.json", "nested/out.yaml"} {
		path := filepath.Join(dir, name)
		if err := Save(path, src); err != nil {
			t.Fatalf("Save(%s) error = %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
		if !reflect.DeepEqual(got, src) {
			t.Errorf("%s: reloaded project differs\n got: %+v\nwant: %+v", name, got, src)
		}
	}

	if err := Save(filepath.Join(dir, "out.toml"), src); err == nil {
		t.Error("Save() with unknown extension expected error")
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.yml")
	if err := os.WriteFile(path, []byte(yamlProject), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := Find("shop", dir)
	if err != nil || got != path {
		t.Errorf("Find(name) = %q, %v; want %q", got, err, path)
	}
	got, err = Find(path, "/nonexistent")
	if err != nil || got != path {
		t.Errorf("Find(path) = %q, %v", got, err)
	}
	if _, err := Find("nope", dir); err == nil {
		t.Error("Find() expected error for unknown project")
	}
}

func TestFindTemplate(t *testing.T) {
	p, err := Load(writeFile(t, "api.json", jsoncProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		query string
		want  string
	}{
		{"login", "login"},
		{"LOGOUT", "logout"},
		{"users/list users", "list users"},
		{"lstusr", "list users"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			tmpl, err := FindTemplate(p, tt.query)
			if err != nil {
				t.Fatalf("FindTemplate() error = %v", err)
			}
			if tmpl.Name != tt.want {
				t.Errorf("FindTemplate(%q) = %q, want %q", tt.query, tmpl.Name, tt.want)
			}
		})
	}

	if _, err := FindTemplate(p, "zzzz"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("FindTemplate() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestReport(t *testing.T) {
	p, err := Load(writeFile(t, "api.json", jsoncProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got := Report(p, p.Variables)
	want := map[string][]string{
		"auth/login":       {"user"},
		"users/list users": {"token"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Report() = %v, want %v", got, want)
	}
}
