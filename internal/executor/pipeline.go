package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studiowebux/restbench/internal/chain"
	"github.com/studiowebux/restbench/internal/compiler"
	"github.com/studiowebux/restbench/internal/oauth"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/script"
	"github.com/studiowebux/restbench/internal/types"
)

// Pipeline runs one template end to end:
// pre-script -> compile -> oauth -> send -> post-script + extraction -> variable merge.
// A pipeline is safe for concurrent use; every Execute call is independent
// apart from the shared variable store.
type Pipeline struct {
	Template  *types.RequestTemplate
	Store     *parser.Store
	Compiler  *compiler.Compiler
	Transport Transport
	Hooks     *script.Hooks   // optional
	OAuth     *oauth.Provider // optional
	Logger    *slog.Logger
}

// Execute performs request number seq. Every failure is reported in the
// returned outcome; it never panics or blocks other requests.
func (p *Pipeline) Execute(ctx context.Context, seq int) types.Outcome {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	outcome := types.Outcome{Seq: seq}
	vars := p.Store.Snapshot()

	pre := p.Hooks.PreRequest(ctx, p.Template, vars)
	outcome.Diagnostics = append(outcome.Diagnostics, pre.Diagnostics...)
	if len(pre.Vars) > 0 {
		p.Store.Merge(pre.Vars)
		vars = parser.Overlay(vars, pre.Vars)
	}
	tmpl := pre.Template

	req, err := p.Compiler.Compile(ctx, tmpl, vars)
	if err != nil {
		return p.fail(outcome, err)
	}

	if tmpl.OAuth != nil && p.OAuth != nil {
		req, err = p.OAuth.Authorize(req, tmpl.OAuth, vars)
		if err != nil {
			return p.fail(outcome, err)
		}
	}

	record, err := p.Transport.Do(ctx, req)
	if err != nil {
		return p.fail(outcome, err)
	}

	updates, diags := p.Hooks.PostResponse(ctx, tmpl, RequestView(req), record, vars)
	outcome.Diagnostics = append(outcome.Diagnostics, diags...)

	extracted, err := chain.ExtractVariables(tmpl, record.Body)
	if err != nil {
		outcome.Diagnostics = append(outcome.Diagnostics, fmt.Sprintf("extract: %v", err))
	}
	if len(extracted) > 0 {
		if updates == nil {
			updates = make(map[string]string, len(extracted))
		}
		for k, v := range extracted {
			updates[k] = v
		}
	}

	if len(updates) > 0 {
		if changed := p.Store.Merge(updates); changed > 0 {
			logger.Debug("variables updated", "template", tmpl.Name, "seq", seq, "changed", changed)
		}
	}

	record.Variables = updates
	record.Diagnostics = outcome.Diagnostics
	outcome.Record = record
	outcome.Timestamp = time.Now()
	return outcome
}

func (p *Pipeline) fail(outcome types.Outcome, err error) types.Outcome {
	outcome.Err = err
	outcome.Timestamp = time.Now()
	return outcome
}

// RequestView exposes a compiled request to post-response scripts
func RequestView(req *compiler.CompiledRequest) script.Request {
	return script.Request{
		URL:     req.URL,
		Method:  req.Method,
		Headers: script.PairsToMap(req.Headers),
		Params:  script.PairsToMap(req.Query),
		Body:    string(req.Body),
	}
}
