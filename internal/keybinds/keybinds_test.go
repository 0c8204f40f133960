package keybinds

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefault_Match(t *testing.T) {
	r := Default()

	tests := []struct {
		context Context
		key     string
		want    Action
		found   bool
	}{
		{ContextBench, "s", ActionStop, true},
		{ContextBench, "q", ActionQuit, true},
		{ContextBench, "ctrl+c", ActionQuit, true}, // global fallback
		{ContextWebSocket, "enter", ActionSend, true},
		{ContextWebSocket, "q", "", false}, // typed into the input
		{ContextWebSocket, "ctrl+d", ActionClose, true},
	}
	for _, tt := range tests {
		got, ok := r.Match(tt.context, tt.key)
		if got != tt.want || ok != tt.found {
			t.Errorf("Match(%s, %q) = %q, %v; want %q, %v", tt.context, tt.key, got, ok, tt.want, tt.found)
		}
	}
}

func TestKeysAndHelp(t *testing.T) {
	r := Default()

	if got := r.Keys(ContextBench, ActionQuit); !reflect.DeepEqual(got, []string{"esc", "q"}) {
		t.Errorf("Keys() = %v", got)
	}
	if got := r.Keys(ContextWebSocket, ActionStop); got != nil {
		t.Errorf("Keys() for unbound action = %v, want nil", got)
	}

	got := r.Help(ContextWebSocket, ActionSend, ActionStop, ActionScrollUp)
	want := "enter: send  ctrl+u/pgup: scroll up"
	if got != want {
		t.Errorf("Help() = %q, want %q", got, want)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keybinds.json")
	content := `{
  // stop with x as well
  "bench": {"x": "stop"},
  "websocket": {"ctrl+s": "send",},
}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	r := Default()
	if err := r.LoadOverrides(path); err != nil {
		t.Fatalf("LoadOverrides() error = %v", err)
	}
	if a, ok := r.Match(ContextBench, "x"); !ok || a != ActionStop {
		t.Errorf("Match(x) = %q, %v", a, ok)
	}
	if a, ok := r.Match(ContextWebSocket, "ctrl+s"); !ok || a != ActionSend {
		t.Errorf("Match(ctrl+s) = %q, %v", a, ok)
	}
	if a, _ := r.Match(ContextWebSocket, "enter"); a != ActionSend {
		t.Errorf("defaults should survive overrides, got %q", a)
	}

	if err := r.LoadOverrides(filepath.Join(dir, "missing.json")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}

func TestLoadOverrides_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown action":  `{"bench": {"x": "explode"}}`,
		"unknown context": `{"editor": {"x": "quit"}}`,
		"bad json":        `{"bench":`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "keybinds.json")
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				t.Fatal(err)
			}
			if err := Default().LoadOverrides(path); err == nil {
				t.Error("LoadOverrides() expected error")
			}
		})
	}
}
