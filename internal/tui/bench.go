package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/studiowebux/restbench/internal/keybinds"
	"github.com/studiowebux/restbench/internal/stresstest"
)

const (
	defaultRefresh  = 100 * time.Millisecond
	benchMaxWidth   = 90
	benchBarWidth   = 40
	benchWidthInset = 10
)

// BenchSource is a running batch. *stresstest.Runner satisfies it.
type BenchSource interface {
	Stats() *stresstest.Stats
	Stop()
	Done() <-chan struct{}
}

type benchTickMsg time.Time

type benchDoneMsg struct{}

// BenchModel renders live statistics of a batch run
type BenchModel struct {
	source  BenchSource
	title   string
	refresh time.Duration
	keys    *keybinds.Registry

	bar      progress.Model
	snap     stresstest.Snapshot
	width    int
	stopping bool
	done     bool
}

// NewBenchModel creates the view. A nil registry uses the default bindings.
func NewBenchModel(source BenchSource, title string, refresh time.Duration, keys *keybinds.Registry) *BenchModel {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	if keys == nil {
		keys = keybinds.Default()
	}
	return &BenchModel{
		source:  source,
		title:   title,
		refresh: refresh,
		keys:    keys,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(benchBarWidth)),
		snap:    source.Stats().Snapshot(),
	}
}

func (m *BenchModel) Init() tea.Cmd {
	return tea.Batch(m.tick(), waitDone(m.source.Done()))
}

func (m *BenchModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return benchTickMsg(t)
	})
}

func waitDone(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return benchDoneMsg{}
	}
}

func (m *BenchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		action, ok := m.keys.Match(keybinds.ContextBench, msg.String())
		if !ok {
			return m, nil
		}
		switch action {
		case keybinds.ActionStop:
			m.stop()
		case keybinds.ActionQuit:
			m.stop()
			return m, tea.Quit
		}

	case benchTickMsg:
		if m.done {
			return m, nil
		}
		m.snap = m.source.Stats().Snapshot()
		return m, m.tick()

	case benchDoneMsg:
		m.done = true
		m.snap = m.source.Stats().Snapshot()
		return m, tea.Quit
	}
	return m, nil
}

func (m *BenchModel) stop() {
	if m.stopping || m.done {
		return
	}
	m.stopping = true
	m.source.Stop()
}

// Snapshot returns the last statistics the view rendered
func (m *BenchModel) Snapshot() stresstest.Snapshot {
	return m.snap
}

func (m *BenchModel) View() string {
	title := m.title + " - Running"
	switch {
	case m.done:
		title = m.title + " - Finished"
	case m.stopping:
		title = m.title + " - Stopping"
	}

	var content strings.Builder
	content.WriteString(styleTitle.Render(title) + "\n\n")
	content.WriteString(fmt.Sprintf("%d/%d requests (%.1f%%)\n", m.snap.Completed, m.snap.Total, m.snap.Progress()*100))
	content.WriteString(m.bar.ViewAs(m.snap.Progress()) + "\n")
	content.WriteString(fmt.Sprintf("Elapsed: %s   In flight: %d   Pending: %d\n", formatDuration(m.snap.Elapsed), m.snap.InFlight, m.snap.Pending))
	if m.stopping && !m.done {
		content.WriteString(styleWarning.Render(fmt.Sprintf("Waiting for %d in-flight requests...", m.snap.InFlight)) + "\n")
	}
	content.WriteString("\n")
	content.WriteString(renderStats(m.snap))

	footer := m.keys.Help(keybinds.ContextBench, keybinds.ActionStop, keybinds.ActionQuit)
	if m.done {
		footer = "done"
	}
	content.WriteString("\n" + styleSubtle.Render(footer))

	width := benchMaxWidth
	if m.width > 0 && m.width-benchWidthInset < width {
		width = m.width - benchWidthInset
	}
	return styleBox.Width(width).Render(content.String())
}

// RenderSummary renders a snapshot without the live progress bar
func RenderSummary(title string, snap stresstest.Snapshot) string {
	var content strings.Builder
	content.WriteString(styleTitle.Render(title) + "\n\n")
	content.WriteString(fmt.Sprintf("%d/%d requests in %s\n\n", snap.Completed, snap.Total, formatDuration(snap.Elapsed)))
	content.WriteString(renderStats(snap))
	return content.String()
}

func renderStats(snap stresstest.Snapshot) string {
	latency := func(ms float64) string {
		if !snap.HasLatency {
			return "-"
		}
		return fmt.Sprintf("%.1fms", ms)
	}

	rate := styleSuccess
	if snap.Failed > 0 {
		rate = styleWarning
	}
	if snap.Completed > 0 && snap.Success == 0 {
		rate = styleError
	}

	left := []string{
		fmt.Sprintf("Success:  %d", snap.Success),
		fmt.Sprintf("Failed:   %d", snap.Failed),
		"Rate:     " + rate.Render(fmt.Sprintf("%.1f%%", snap.SuccessRate)),
		"Min:      " + latency(snap.MinMs),
		"Avg:      " + latency(snap.AvgMs),
		"Max:      " + latency(snap.MaxMs),
	}
	right := []string{
		"P50:      " + latency(snap.P50Ms),
		"P95:      " + latency(snap.P95Ms),
		"P99:      " + latency(snap.P99Ms),
		fmt.Sprintf("QPS:      %.2f", snap.QPS),
		fmt.Sprintf("Upload:   %.3f MB/s", snap.UploadMBps),
		fmt.Sprintf("Download: %.3f MB/s", snap.DownloadMBps),
	}

	column := lipgloss.NewStyle().Width(28)
	return styleHeading.Render("Statistics") + "\n" + lipgloss.JoinHorizontal(lipgloss.Top,
		column.Render(strings.Join(left, "\n")),
		strings.Join(right, "\n"),
	) + "\n"
}
