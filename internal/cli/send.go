package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/studiowebux/restbench/internal/compiler"
	"github.com/studiowebux/restbench/internal/config"
	"github.com/studiowebux/restbench/internal/executor"
	"github.com/studiowebux/restbench/internal/filter"
	"github.com/studiowebux/restbench/internal/history"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/types"
)

// SendOptions contains options for sending one request
type SendOptions struct {
	Template  string
	Output    string // text, body, json or yaml; empty picks text on a terminal
	Full      bool   // show headers and captured variables
	Filter    string // JMESPath filter applied to the body
	Query     string // JMESPath query or $(command)
	SavePath  string // write the output to a file instead of stdout
	Copy      bool   // copy the body to the clipboard
	NoHistory bool
}

// ErrRequestFailed is returned when the response was not 2xx or the request
// could not be sent
var ErrRequestFailed = errors.New("request failed")

// capturingTransport remembers the last compiled request for history
type capturingTransport struct {
	executor.Transport
	mu   sync.Mutex
	last *compiler.CompiledRequest
}

func (t *capturingTransport) Do(ctx context.Context, req *compiler.CompiledRequest) (*types.ResponseRecord, error) {
	t.mu.Lock()
	t.last = req
	t.mu.Unlock()
	return t.Transport.Do(ctx, req)
}

func (t *capturingTransport) request() *compiler.CompiledRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Send executes one template, prints the response and records it
func Send(ctx context.Context, app *App, opts SendOptions) error {
	tmpl, err := app.chooseTemplate(opts.Template, isHTTP)
	if err != nil {
		return err
	}
	if tmpl.Method.IsWebSocket() {
		return fmt.Errorf("template %q is a WebSocket template (use the ws command)", tmpl.Name)
	}

	if err := app.resolveMissing(tmpl); err != nil {
		return err
	}

	store := parser.NewStore(app.Vars)
	pipeline, err := app.NewPipeline(tmpl, store)
	if err != nil {
		return err
	}
	transport := &capturingTransport{Transport: pipeline.Transport}
	pipeline.Transport = transport

	outcome := pipeline.Execute(ctx, 1)
	for _, d := range outcome.Diagnostics {
		app.Logger.Debug("diagnostic", "template", tmpl.Name, "message", d)
	}

	if !opts.NoHistory {
		app.saveHistory(tmpl, transport.request(), outcome)
	}
	app.SaveSession(store)

	if outcome.Err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, outcome.Err)
	}

	record := outcome.Record
	body := string(record.Body)
	if opts.Filter != "" || opts.Query != "" {
		filtered, err := filter.Apply(ctx, body, opts.Filter, opts.Query)
		if err != nil {
			fmt.Fprintf(app.Stderr, "Warning: filter/query error: %v\n", err)
		} else {
			body = filtered
		}
	}

	format := opts.Output
	toTerminal := opts.SavePath == "" && isTerminal(app.Stdout)
	if format == "" {
		format = FormatBody
		if toTerminal {
			format = FormatText
		}
	}
	output, err := formatOutput(record, body, format, opts.Full, toTerminal)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	if opts.SavePath != "" {
		if err := os.WriteFile(opts.SavePath, []byte(output), config.FilePermissions); err != nil {
			return fmt.Errorf("failed to save response: %w", err)
		}
		fmt.Fprintf(app.Stderr, "Response saved to %s\n", opts.SavePath)
	} else {
		fmt.Fprint(app.Stdout, output)
	}

	if opts.Copy {
		if err := clipboard.WriteAll(body); err != nil {
			fmt.Fprintf(app.Stderr, "Warning: failed to copy to clipboard: %v\n", err)
		} else {
			fmt.Fprintln(app.Stderr, "Body copied to clipboard")
		}
	}

	if !record.IsSuccess() {
		return fmt.Errorf("%w: %d %s", ErrRequestFailed, record.Status, record.StatusText)
	}
	return nil
}

// resolveMissing prompts for placeholders no variable covers. Templates with
// a pre-request script are left alone since the script may set them.
func (a *App) resolveMissing(tmpl *types.RequestTemplate) error {
	missing := parser.Unresolved(tmpl, a.Vars)
	if len(missing) == 0 || (tmpl.Scripts.Enabled && strings.TrimSpace(tmpl.Scripts.Pre) != "") {
		return nil
	}
	if !isTerminal(a.Stdin) {
		fmt.Fprintf(a.Stderr, "Warning: unresolved variables: %s\n", strings.Join(missing, ", "))
		return nil
	}

	values := make(map[string]string, len(missing))
	for _, name := range missing {
		value, err := promptForVariable(a.Stdin, a.Stderr, name)
		if err != nil {
			return fmt.Errorf("failed to read input for '%s': %w", name, err)
		}
		values[name] = value
	}
	a.Vars = parser.Overlay(a.Vars, values)
	return nil
}

func (a *App) saveHistory(tmpl *types.RequestTemplate, req *compiler.CompiledRequest, outcome types.Outcome) {
	if req == nil {
		a.Logger.Debug("request was not sent, skipping history", "template", tmpl.Name)
		return
	}
	mgr, err := history.NewManager(a.Settings.DatabasePath)
	if err != nil {
		a.Logger.Warn("failed to open history", "error", err)
		return
	}
	defer mgr.Close()

	if err := mgr.Save(a.Project.Name, tmpl.Name, req, outcome); err != nil {
		a.Logger.Warn("failed to save history", "error", err)
	}
}

func isHTTP(t *types.RequestTemplate) bool { return !t.Method.IsWebSocket() }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
