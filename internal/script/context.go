package script

import (
	"context"
	"fmt"
	"sort"

	"github.com/studiowebux/restbench/internal/types"
)

// Phase identifies which hook a script runs in
type Phase int

const (
	PhasePre Phase = iota
	PhasePost
)

func (p Phase) String() string {
	if p == PhasePost {
		return "post-response"
	}
	return "pre-request"
}

// Request is the script view of a request: {url, method, headers, params, body}
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Params  map[string]string
	Body    string
}

// Response is the read-only script view of a response
type Response struct {
	Status     int
	Headers    map[string]string
	Body       string
	DurationMs int64
}

// Context is what a script evaluates against. Response is nil in the pre phase.
type Context struct {
	Phase    Phase
	Request  Request
	Response *Response
	Vars     map[string]string
}

// Result is the context after evaluation plus everything the script reported
type Result struct {
	Context     Context
	Console     []string
	TestPassed  bool
	TestMessage string
}

// Engine evaluates a script against a context. Implementations must be safe
// for concurrent use; each call is isolated from the others.
type Engine interface {
	Eval(ctx context.Context, src string, in Context) (*Result, error)
}

// Error is a script failure. It is never fatal for the request it belongs to.
type Error struct {
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s script: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RequestFromTemplate builds the pre-substitution view of a template.
// Only active pairs are exposed; the first pair wins for duplicate keys.
func RequestFromTemplate(tmpl *types.RequestTemplate) Request {
	return Request{
		URL:     tmpl.URL,
		Method:  string(tmpl.Method),
		Headers: PairsToMap(tmpl.Headers),
		Params:  PairsToMap(tmpl.Query),
		Body:    tmpl.BodyRaw,
	}
}

// PairsToMap converts the active pairs into a map, first pair winning
func PairsToMap(pairs []types.Pair) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if !p.Active() {
			continue
		}
		if _, exists := out[p.Key]; !exists {
			out[p.Key] = p.Value
		}
	}
	return out
}

// ApplyPairs writes an edited map back onto ordered pairs. Existing active
// pairs are updated in place, pairs whose key was removed are disabled and
// new keys are appended in sorted order.
func ApplyPairs(pairs []types.Pair, edited map[string]string) []types.Pair {
	out := make([]types.Pair, 0, len(pairs)+len(edited))
	seen := make(map[string]bool, len(pairs))

	for _, p := range pairs {
		if !p.Active() {
			out = append(out, p)
			continue
		}
		value, ok := edited[p.Key]
		switch {
		case !ok:
			p.Disabled = true
		case !seen[p.Key]:
			p.Value = value
		}
		seen[p.Key] = true
		out = append(out, p)
	}

	var added []string
	for key := range edited {
		if !seen[key] && key != "" {
			added = append(added, key)
		}
	}
	sort.Strings(added)
	for _, key := range added {
		out = append(out, types.Pair{Key: key, Value: edited[key]})
	}
	return out
}

// Changed returns the entries of after that are new or differ from before
func Changed(before, after map[string]string) map[string]string {
	diff := make(map[string]string)
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			diff[k] = v
		}
	}
	return diff
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
