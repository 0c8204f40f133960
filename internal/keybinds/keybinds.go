// Package keybinds maps key strings to actions for the terminal views.
//
// Bindings are looked up in the view's context first, then in the global
// context. Users can override them with a keybinds.json file (comments
// allowed) keyed by context, then key:
//
//	{
//	  "bench": {"x": "stop"},
//	  "websocket": {"ctrl+s": "send"}
//	}
package keybinds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// Action is what a key triggers
type Action string

// Context is the view a binding is active in
type Context string

const (
	ContextGlobal    Context = "global"
	ContextBench     Context = "bench"
	ContextWebSocket Context = "websocket"
)

const (
	ActionQuit       Action = "quit"
	ActionStop       Action = "stop"  // stop scheduling new requests
	ActionSend       Action = "send"  // send the input as one frame
	ActionClose      Action = "close" // close the WebSocket connection
	ActionScrollUp   Action = "scroll_up"
	ActionScrollDown Action = "scroll_down"
	ActionTop        Action = "top"
	ActionBottom     Action = "bottom"
)

var knownActions = map[Action]bool{
	ActionQuit: true, ActionStop: true, ActionSend: true, ActionClose: true,
	ActionScrollUp: true, ActionScrollDown: true, ActionTop: true, ActionBottom: true,
}

var knownContexts = map[Context]bool{
	ContextGlobal: true, ContextBench: true, ContextWebSocket: true,
}

// Registry holds context -> key -> action
type Registry struct {
	bindings map[Context]map[string]Action
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[Context]map[string]Action)}
}

// Default returns the built-in bindings
func Default() *Registry {
	r := NewRegistry()
	r.RegisterMultiple(ContextGlobal, []string{"ctrl+c"}, ActionQuit)

	r.RegisterMultiple(ContextBench, []string{"q", "esc"}, ActionQuit)
	r.RegisterMultiple(ContextBench, []string{"s"}, ActionStop)

	r.RegisterMultiple(ContextWebSocket, []string{"esc"}, ActionQuit)
	r.RegisterMultiple(ContextWebSocket, []string{"enter"}, ActionSend)
	r.RegisterMultiple(ContextWebSocket, []string{"ctrl+d"}, ActionClose)
	r.RegisterMultiple(ContextWebSocket, []string{"pgup", "ctrl+u"}, ActionScrollUp)
	r.RegisterMultiple(ContextWebSocket, []string{"pgdown", "ctrl+f"}, ActionScrollDown)
	r.RegisterMultiple(ContextWebSocket, []string{"home"}, ActionTop)
	r.RegisterMultiple(ContextWebSocket, []string{"end"}, ActionBottom)
	return r
}

// Register binds key to action in context, replacing any previous binding
func (r *Registry) Register(context Context, key string, action Action) {
	if r.bindings[context] == nil {
		r.bindings[context] = make(map[string]Action)
	}
	r.bindings[context][key] = action
}

// RegisterMultiple binds several keys to the same action
func (r *Registry) RegisterMultiple(context Context, keys []string, action Action) {
	for _, key := range keys {
		r.Register(context, key, action)
	}
}

// Match returns the action for key in context, falling back to global
func (r *Registry) Match(context Context, key string) (Action, bool) {
	if action, ok := r.bindings[context][key]; ok {
		return action, true
	}
	action, ok := r.bindings[ContextGlobal][key]
	return action, ok
}

// Keys returns the sorted keys bound to action in context, or in global
// when the context has none
func (r *Registry) Keys(context Context, action Action) []string {
	keys := keysFor(r.bindings[context], action)
	if len(keys) == 0 {
		keys = keysFor(r.bindings[ContextGlobal], action)
	}
	sort.Strings(keys)
	return keys
}

func keysFor(bindings map[string]Action, action Action) []string {
	var keys []string
	for key, act := range bindings {
		if act == action {
			keys = append(keys, key)
		}
	}
	return keys
}

// Help renders "key: action" hints for the given actions
func (r *Registry) Help(context Context, actions ...Action) string {
	parts := make([]string, 0, len(actions))
	for _, action := range actions {
		keys := r.Keys(context, action)
		if len(keys) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(keys, "/"), strings.ReplaceAll(string(action), "_", " ")))
	}
	return strings.Join(parts, "  ")
}

// LoadOverrides applies user bindings from path on top of r. A missing file
// is not an error.
func (r *Registry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read keybinds: %w", err)
	}

	var overrides map[Context]map[string]Action
	if err := json.Unmarshal(jsonc.ToJSON(data), &overrides); err != nil {
		return fmt.Errorf("failed to parse keybinds %s: %w", path, err)
	}

	for context, bindings := range overrides {
		if !knownContexts[context] {
			return fmt.Errorf("unknown keybind context %q", context)
		}
		for key, action := range bindings {
			if !knownActions[action] {
				return fmt.Errorf("unknown action %q for key %q in %s", action, key, context)
			}
			r.Register(context, key, action)
		}
	}
	return nil
}
