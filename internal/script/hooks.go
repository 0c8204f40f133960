package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/types"
)

// Hooks runs a template's pre-request and post-response scripts. Failures are
// converted to diagnostics; the caller always gets a usable template.
type Hooks struct {
	engine Engine
	logger *slog.Logger
}

// NewHooks creates a hook pipeline around engine
func NewHooks(engine Engine, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{engine: engine, logger: logger}
}

// PreOutcome is the result of the pre-request hook
type PreOutcome struct {
	// Template to compile. It is the input template when nothing ran or the script failed.
	Template *types.RequestTemplate
	// Vars holds the variables the script added or changed
	Vars        map[string]string
	Diagnostics []string
}

// PreRequest runs the pre-request script against the unresolved template.
// Edits are applied to a copy; tmpl itself is never modified.
func (h *Hooks) PreRequest(ctx context.Context, tmpl *types.RequestTemplate, vars []types.Variable) PreOutcome {
	out := PreOutcome{Template: tmpl}
	if h == nil || h.engine == nil || !tmpl.Scripts.Enabled || strings.TrimSpace(tmpl.Scripts.Pre) == "" {
		return out
	}

	before := parser.ToMap(vars)
	res, err := h.engine.Eval(ctx, tmpl.Scripts.Pre, Context{
		Phase:   PhasePre,
		Request: RequestFromTemplate(tmpl),
		Vars:    copyMap(before),
	})
	if err != nil {
		h.logger.Warn("pre-request script failed", "template", tmpl.Name, "error", err)
		out.Diagnostics = append(out.Diagnostics, err.Error())
		return out
	}
	out.Diagnostics = append(out.Diagnostics, consoleDiagnostics(res.Console)...)

	edited := tmpl.Clone()
	req := res.Context.Request
	edited.URL = req.URL
	edited.BodyRaw = req.Body
	edited.Headers = ApplyPairs(tmpl.Headers, req.Headers)
	edited.Query = ApplyPairs(tmpl.Query, req.Params)
	if req.Method != string(tmpl.Method) {
		method, err := types.ParseMethod(req.Method)
		if err != nil {
			out.Diagnostics = append(out.Diagnostics, (&Error{Phase: PhasePre, Err: err}).Error())
		} else {
			edited.Method = method
		}
	}

	out.Template = edited
	out.Vars = Changed(before, res.Context.Vars)
	return out
}

// PostResponse runs the post-response script. It returns the variables the
// script added or changed and any diagnostics; nothing else is affected.
func (h *Hooks) PostResponse(ctx context.Context, tmpl *types.RequestTemplate, req Request, record *types.ResponseRecord, vars []types.Variable) (map[string]string, []string) {
	if h == nil || h.engine == nil || !tmpl.Scripts.Enabled || strings.TrimSpace(tmpl.Scripts.Post) == "" || record == nil {
		return nil, nil
	}

	before := parser.ToMap(vars)
	res, err := h.engine.Eval(ctx, tmpl.Scripts.Post, Context{
		Phase:    PhasePost,
		Request:  req,
		Response: ResponseFromRecord(record),
		Vars:     copyMap(before),
	})
	if err != nil {
		h.logger.Warn("post-response script failed", "template", tmpl.Name, "error", err)
		return nil, []string{err.Error()}
	}

	diags := consoleDiagnostics(res.Console)
	switch {
	case !res.TestPassed && res.TestMessage != "":
		diags = append(diags, fmt.Sprintf("test failed: %s", res.TestMessage))
	case !res.TestPassed:
		diags = append(diags, "test failed")
	case res.TestMessage != "":
		diags = append(diags, fmt.Sprintf("test passed: %s", res.TestMessage))
	}

	return Changed(before, res.Context.Vars), diags
}

// ResponseFromRecord builds the read-only response view. Header names are lower-cased.
func ResponseFromRecord(record *types.ResponseRecord) *Response {
	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		key := strings.ToLower(h.Key)
		if _, exists := headers[key]; !exists {
			headers[key] = h.Value
		}
	}
	return &Response{
		Status:     record.Status,
		Headers:    headers,
		Body:       string(record.Body),
		DurationMs: record.Duration.Milliseconds(),
	}
}

func consoleDiagnostics(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = "console: " + line
	}
	return out
}
