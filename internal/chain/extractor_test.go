package chain

import (
	"testing"

	"github.com/studiowebux/restbench/internal/types"
)

func TestExtractVariables(t *testing.T) {
	tmpl := &types.RequestTemplate{
		Extract: map[string]string{
			"token":  "auth.token",
			"userId": "user.id",
			"admin":  "user.admin",
			"tags":   "user.tags",
			"ratio":  "stats.ratio",
		},
	}
	body := []byte(`{"auth":{"token":"abc"},"user":{"id":42,"admin":true,"tags":["a","b"]},"stats":{"ratio":0.5}}`)

	vars, err := ExtractVariables(tmpl, body)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := map[string]string{
		"token":  "abc",
		"userId": "42",
		"admin":  "true",
		"tags":   `["a","b"]`,
		"ratio":  "0.5",
	}
	for k, v := range want {
		if vars[k] != v {
			t.Errorf("Expected %s=%q, got: %q", k, v, vars[k])
		}
	}
}

func TestExtractVariables_PartialFailure(t *testing.T) {
	tmpl := &types.RequestTemplate{
		Extract: map[string]string{"ok": "id", "missing": "nope"},
	}

	vars, err := ExtractVariables(tmpl, []byte(`{"id":"7"}`))
	if err == nil {
		t.Error("Expected error for null result")
	}
	if vars["ok"] != "7" {
		t.Errorf("Expected successful rule to be kept, got: %v", vars)
	}
}

func TestExtractVariables_NotJSON(t *testing.T) {
	tmpl := &types.RequestTemplate{Extract: map[string]string{"x": "a"}}
	if _, err := ExtractVariables(tmpl, []byte("<html>")); err == nil {
		t.Error("Expected error for non-JSON body")
	}

	vars, err := ExtractVariables(&types.RequestTemplate{}, []byte("<html>"))
	if vars != nil || err != nil {
		t.Errorf("Expected nothing without rules, got: %v, %v", vars, err)
	}
}

func TestSearch_StringInput(t *testing.T) {
	got, err := Search("items[1].name", `{"items":[{"name":"a"},{"name":"b"}]}`)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got != "b" {
		t.Errorf("Expected b, got: %v", got)
	}

	if _, err := Search("a", "not json"); err == nil {
		t.Error("Expected error for invalid JSON input")
	}
}
