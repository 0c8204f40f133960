package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/studiowebux/restbench/internal/history"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/project"
	"github.com/studiowebux/restbench/internal/stresstest"
)

const timeLayout = "2006-01-02 15:04:05"

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// RunsOptions selects stored runs
type RunsOptions struct {
	Project string // empty lists every project
	Limit   int
	Delete  int64 // delete this run instead of listing
}

// Runs lists or deletes stored batch runs
func Runs(opts Options, ro RunsOptions) error {
	app, err := setupEnvironment(opts)
	if err != nil {
		return err
	}
	mgr, err := stresstest.NewManager(app.Settings.DatabasePath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if ro.Delete > 0 {
		if err := mgr.DeleteRun(ro.Delete); err != nil {
			return err
		}
		fmt.Fprintf(app.Stdout, "Deleted run #%d\n", ro.Delete)
		return nil
	}

	runs, err := mgr.ListRuns(ro.Project, ro.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(app.Stdout, "No runs recorded")
		return nil
	}

	t := newTable("ID", "Started", "Project", "Template", "Status", "Requests", "Success", "P50", "P95", "P99", "QPS")
	for _, r := range runs {
		t.Row(
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Format(timeLayout),
			r.ProjectName,
			r.TemplateName,
			r.Status,
			fmt.Sprintf("%d/%d", r.TotalRequestsCompleted, r.TotalRequests),
			fmt.Sprintf("%.1f%%", r.SuccessRate()),
			fmt.Sprintf("%.1fms", r.P50DurationMs),
			fmt.Sprintf("%.1fms", r.P95DurationMs),
			fmt.Sprintf("%.1fms", r.P99DurationMs),
			fmt.Sprintf("%.1f", r.QPS),
		)
	}
	fmt.Fprintln(app.Stdout, t.Render())
	return nil
}

// HistoryOptions selects history entries
type HistoryOptions struct {
	Project  string
	Template string
	Limit    int
	Clear    bool
}

// History lists or clears sent requests
func History(opts Options, ho HistoryOptions) error {
	app, err := setupEnvironment(opts)
	if err != nil {
		return err
	}
	mgr, err := history.NewManager(app.Settings.DatabasePath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if ho.Clear {
		if err := mgr.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(app.Stdout, "History cleared")
		return nil
	}

	var entries []history.Entry
	if ho.Template != "" {
		entries, err = mgr.LoadForTemplate(ho.Project, ho.Template)
		if ho.Limit > 0 && len(entries) > ho.Limit {
			entries = entries[:ho.Limit]
		}
	} else {
		entries, err = mgr.Load(ho.Project, ho.Limit)
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(app.Stdout, "No history")
		return nil
	}

	t := newTable("ID", "Time", "Project", "Template", "Request", "Status", "Duration")
	for _, e := range entries {
		status := strconv.Itoa(e.ResponseStatus)
		if e.Error != "" {
			status = "error: " + e.Error
		}
		t.Row(
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Format(timeLayout),
			e.ProjectName,
			e.TemplateName,
			e.Method+" "+e.URL,
			status,
			fmt.Sprintf("%.1fms", e.DurationMs),
		)
	}
	fmt.Fprintln(app.Stdout, t.Render())
	return nil
}

// VarsOptions controls the vars command
type VarsOptions struct {
	Clear bool // forget the captured session variables
}

// Vars shows the effective variables of a project and the placeholders each
// template still lacks
func Vars(opts Options, vo VarsOptions) error {
	app, err := Setup(opts)
	if err != nil {
		return err
	}

	if vo.Clear {
		if err := app.Sessions.Clear(app.Project.Name); err != nil {
			return err
		}
		fmt.Fprintf(app.Stdout, "Session variables of %s cleared\n", app.Project.Name)
		return nil
	}

	t := newTable("Variable", "Value", "Source")
	projectVars := parser.ToMap(app.Project.Variables)
	effective := parser.ToMap(app.Vars)
	for _, key := range sortedKeys(effective) {
		source := "cli/env"
		if v, ok := app.Session.Variables[key]; ok && v == effective[key] {
			source = "session"
		} else if v, ok := projectVars[key]; ok && v == effective[key] {
			source = "project"
		}
		t.Row(key, effective[key], source)
	}
	fmt.Fprintln(app.Stdout, t.Render())

	report := project.Report(app.Project, app.Vars)
	if len(report) == 0 {
		fmt.Fprintln(app.Stdout, "All placeholders resolve")
		return nil
	}
	fmt.Fprintln(app.Stdout, "Unresolved placeholders:")
	for _, path := range sortedReportKeys(report) {
		fmt.Fprintf(app.Stdout, "  %s: %s\n", path, strings.Join(report[path], ", "))
	}
	return nil
}

func sortedReportKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Templates lists the templates of a project
func Templates(opts Options) error {
	app, err := Setup(opts)
	if err != nil {
		return err
	}

	t := newTable("Template", "Method", "URL", "Scripts", "Extract")
	for _, e := range project.Templates(app.Project) {
		scripts := ""
		if e.Template.Scripts.Enabled {
			var parts []string
			if strings.TrimSpace(e.Template.Scripts.Pre) != "" {
				parts = append(parts, "pre")
			}
			if strings.TrimSpace(e.Template.Scripts.Post) != "" {
				parts = append(parts, "post")
			}
			scripts = strings.Join(parts, ",")
		}
		t.Row(e.Path(), string(e.Template.Method), e.Template.URL, scripts, strconv.Itoa(len(e.Template.Extract)))
	}
	fmt.Fprintf(app.Stdout, "%s (%s)\n", app.Project.Name, app.ProjectPath)
	fmt.Fprintln(app.Stdout, t.Render())
	return nil
}
