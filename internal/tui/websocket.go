package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/restbench/internal/keybinds"
	"github.com/studiowebux/restbench/internal/types"
)

const (
	wsDefaultWidth  = 80
	wsDefaultHeight = 20
	wsChromeLines   = 4 // header, input, footer, spacing
)

// WebSocketSession is the session the view drives. *executor.Session satisfies it.
type WebSocketSession interface {
	Send(tmpl *types.RequestTemplate)
	Close()
	State() types.WsState
	LastError() error
	Log() []types.WsMessage
	Updates() <-chan struct{}
}

type wsUpdateMsg struct{}

// WebSocketModel is an interactive WebSocket console
type WebSocketModel struct {
	session  WebSocketSession
	template *types.RequestTemplate
	keys     *keybinds.Registry

	input textinput.Model
	view  viewport.Model
	log   []types.WsMessage
}

// NewWebSocketModel creates the view. The template's body prefills the input.
func NewWebSocketModel(session WebSocketSession, tmpl *types.RequestTemplate, keys *keybinds.Registry) *WebSocketModel {
	if keys == nil {
		keys = keybinds.Default()
	}
	input := textinput.New()
	input.Placeholder = "message ({{vars}} are resolved)"
	input.SetValue(tmpl.BodyRaw)
	input.Focus()

	return &WebSocketModel{
		session:  session,
		template: tmpl,
		keys:     keys,
		input:    input,
		view:     viewport.New(wsDefaultWidth, wsDefaultHeight),
	}
}

func (m *WebSocketModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitUpdate(m.session.Updates()))
}

func waitUpdate(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return wsUpdateMsg{}
	}
}

func (m *WebSocketModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = msg.Height - wsChromeLines
		m.input.Width = msg.Width - 4
		m.refresh()
		return m, nil

	case wsUpdateMsg:
		m.log = m.session.Log()
		m.refresh()
		return m, waitUpdate(m.session.Updates())

	case tea.KeyMsg:
		if action, ok := m.keys.Match(keybinds.ContextWebSocket, msg.String()); ok {
			switch action {
			case keybinds.ActionQuit:
				return m, tea.Quit
			case keybinds.ActionSend:
				m.send()
				return m, nil
			case keybinds.ActionClose:
				m.session.Close()
				return m, nil
			case keybinds.ActionScrollUp:
				m.view.HalfViewUp()
				return m, nil
			case keybinds.ActionScrollDown:
				m.view.HalfViewDown()
				return m, nil
			case keybinds.ActionTop:
				m.view.GotoTop()
				return m, nil
			case keybinds.ActionBottom:
				m.view.GotoBottom()
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send transmits the input through a copy of the template so {{vars}} and
// the session's handshake settings apply
func (m *WebSocketModel) send() {
	tmpl := m.template.Clone()
	tmpl.BodyRaw = m.input.Value()
	m.session.Send(tmpl)
	m.input.Reset()
}

func (m *WebSocketModel) refresh() {
	lines := make([]string, len(m.log))
	for i, entry := range m.log {
		lines[i] = FormatMessage(entry)
	}
	m.view.SetContent(strings.Join(lines, "\n"))
	m.view.GotoBottom()
}

func (m *WebSocketModel) View() string {
	header := fmt.Sprintf("%s %s  [%s]", styleTitle.Render("WS"), m.template.URL, stateLabel(m.session.State()))
	if err := m.session.LastError(); err != nil && m.session.State() == types.WsClosed {
		header += "  " + styleError.Render(err.Error())
	}
	footer := m.keys.Help(keybinds.ContextWebSocket, keybinds.ActionSend, keybinds.ActionClose, keybinds.ActionScrollUp, keybinds.ActionScrollDown, keybinds.ActionQuit)
	return strings.Join([]string{header, m.view.View(), m.input.View(), styleSubtle.Render(footer)}, "\n")
}

func stateLabel(state types.WsState) string {
	switch state {
	case types.WsOpen:
		return styleSuccess.Render(state.String())
	case types.WsConnecting:
		return styleWarning.Render(state.String())
	case types.WsClosed:
		return styleError.Render(state.String())
	default:
		return styleSubtle.Render(state.String())
	}
}

// FormatMessage renders one log entry as "15:04:05.000 -> content"
func FormatMessage(msg types.WsMessage) string {
	ts := msg.Timestamp.Format("15:04:05.000")
	switch msg.Direction {
	case types.WsSent:
		return fmt.Sprintf("%s %s %s", ts, styleSuccess.Render("->"), msg.Content)
	case types.WsReceived:
		return fmt.Sprintf("%s %s %s", ts, styleTitle.Render("<-"), msg.Content)
	case types.WsError:
		return fmt.Sprintf("%s %s %s", ts, styleError.Render("!!"), msg.Content)
	default:
		return fmt.Sprintf("%s %s %s", ts, styleSubtle.Render("--"), styleSubtle.Render(msg.Content))
	}
}
