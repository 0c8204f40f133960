package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/studiowebux/restbench/internal/project"
	"github.com/studiowebux/restbench/internal/types"
)

var (
	titleStyle        = lipgloss.NewStyle().MarginLeft(2).Bold(true)
	itemStyle         = lipgloss.NewStyle().PaddingLeft(4)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("170"))
	helpStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1).MarginLeft(2)
)

// promptForVariable asks for one value on w and reads a line from r
func promptForVariable(r io.Reader, w io.Writer, name string) (string, error) {
	fmt.Fprintf(w, "Enter value for '%s': ", name)
	value, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || value == "") {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

type item struct {
	entry project.Entry
}

func (i item) FilterValue() string { return i.entry.Path() }

func (i item) Title() string {
	return fmt.Sprintf("%-7s %s", i.entry.Template.Method, i.entry.Path())
}

func (i item) Description() string { return i.entry.Template.URL }

type selectorModel struct {
	list     list.Model
	choice   *types.RequestTemplate
	quitting bool
}

func (m selectorModel) Init() tea.Cmd {
	return nil
}

func (m selectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			if i, ok := m.list.SelectedItem().(item); ok {
				m.choice = i.entry.Template
			}
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m selectorModel) View() string {
	if m.quitting {
		return ""
	}
	help := helpStyle.Render("↑/↓: navigate • /: filter • enter: select • q/ctrl+c: cancel")
	return fmt.Sprintf("%s\n\n%s", m.list.View(), help)
}

// itemDelegate renders one template per line
type itemDelegate struct{}

func (d itemDelegate) Height() int                             { return 1 }
func (d itemDelegate) Spacing() int                            { return 0 }
func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(item)
	if !ok {
		return
	}

	str := i.Title()
	fn := itemStyle.Render
	if index == m.Index() {
		fn = func(s ...string) string {
			return selectedItemStyle.Render("> " + strings.Join(s, " "))
		}
	}
	fmt.Fprint(w, fn(str))
}

// pickTemplate shows an interactive list of the project's templates
func pickTemplate(p *types.Project, filter func(*types.RequestTemplate) bool) (*types.RequestTemplate, error) {
	var items []list.Item
	for _, e := range project.Templates(p) {
		if filter == nil || filter(e.Template) {
			items = append(items, item{entry: e})
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("project %q has no matching templates", p.Name)
	}

	const defaultWidth = 80
	const listHeight = 14

	l := list.New(items, itemDelegate{}, defaultWidth, listHeight)
	l.Title = fmt.Sprintf("Select a template from %s", p.Name)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	final, err := tea.NewProgram(selectorModel{list: l}).Run()
	if err != nil {
		return nil, fmt.Errorf("error running selector: %w", err)
	}
	choice := final.(selectorModel).choice
	if choice == nil {
		return nil, fmt.Errorf("selection cancelled")
	}
	return choice, nil
}

// chooseTemplate resolves query, or asks interactively when it is empty
func (a *App) chooseTemplate(query string, filter func(*types.RequestTemplate) bool) (*types.RequestTemplate, error) {
	if query != "" {
		return a.Template(query)
	}
	if !isTerminal(a.Stdin) {
		return nil, fmt.Errorf("no template given")
	}
	return pickTemplate(a.Project, filter)
}
