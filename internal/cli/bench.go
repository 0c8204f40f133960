package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/stresstest"
	"github.com/studiowebux/restbench/internal/tui"
)

const progressInterval = time.Second

// BenchOptions configures a batch run
type BenchOptions struct {
	Template    string
	Requests    int
	Concurrency int // 0 uses the configured maximum
	DurationSec int
	NoTUI       bool
	MetricsAddr string // overrides the configured address when set
}

// Bench sends a template many times concurrently and reports statistics.
// Cancelling ctx stops scheduling; requests already sent are awaited.
func Bench(ctx context.Context, app *App, opts BenchOptions) (*stresstest.Run, error) {
	tmpl, err := app.chooseTemplate(opts.Template, isHTTP)
	if err != nil {
		return nil, err
	}
	if tmpl.Method.IsWebSocket() {
		return nil, fmt.Errorf("template %q is a WebSocket template and cannot be benchmarked", tmpl.Name)
	}

	store := parser.NewStore(app.Vars)
	pipeline, err := app.NewPipeline(tmpl, store)
	if err != nil {
		return nil, err
	}

	mgr, err := stresstest.NewManager(app.Settings.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer mgr.Close()

	metrics := stresstest.NewMetrics(nil)
	addr := opts.MetricsAddr
	if addr == "" {
		addr = app.Settings.MetricsAddr
	}
	if addr != "" {
		stop, err := app.serveMetrics(addr, metrics)
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	runner, err := stresstest.NewRunner(stresstest.RunnerOptions{
		Config: &stresstest.Config{
			ProjectName:       app.Project.Name,
			TemplateName:      tmpl.Name,
			TotalRequests:     opts.Requests,
			Concurrency:       opts.Concurrency,
			MaxConcurrency:    app.Settings.MaxConcurrency,
			ReservoirCapacity: app.Settings.ReservoirCapacity,
			TestDurationSec:   opts.DurationSec,
		},
		Requester: pipeline,
		Manager:   mgr,
		Metrics:   metrics,
		Logger:    app.Logger,
	})
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s %s", tmpl.Method, tmpl.Name)
	// In-flight requests finish on their own; only scheduling follows ctx.
	runner.Start(context.Background())

	if !opts.NoTUI && isTerminal(app.Stdout) {
		model := tui.NewBenchModel(runner, title, app.Settings.UIRefresh, app.Keys)
		program := tea.NewProgram(model, tea.WithContext(ctx))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			app.Logger.Warn("bench view failed", "error", err)
		}
		runner.Stop()
	} else {
		app.followProgress(ctx, runner)
	}

	run := runner.Wait()
	app.SaveSession(store)

	fmt.Fprintln(app.Stdout, tui.RenderSummary(title, runner.Stats().Snapshot()))
	fmt.Fprintf(app.Stdout, "Run #%d %s\n", run.ID, run.Status)
	return run, nil
}

// followProgress logs progress until the run ends, stopping it when ctx is cancelled
func (a *App) followProgress(ctx context.Context, runner *stresstest.Runner) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	cancelled := ctx.Done()
	for {
		select {
		case <-runner.Done():
			return
		case <-cancelled:
			a.Logger.Info("stopping run, waiting for in-flight requests")
			runner.Stop()
			cancelled = nil
		case <-ticker.C:
			snap := runner.Stats().Snapshot()
			a.Logger.Info("progress",
				"completed", snap.Completed,
				"total", snap.Total,
				"in_flight", snap.InFlight,
				"failed", snap.Failed,
				"qps", fmt.Sprintf("%.1f", snap.QPS))
		}
	}
}

// serveMetrics exposes the Prometheus endpoint until the returned func is called
func (a *App) serveMetrics(addr string, metrics *stresstest.Metrics) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics server failed", "error", err)
		}
	}()
	a.Logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
