package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/restbench/internal/compiler"
	"github.com/studiowebux/restbench/internal/executor"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/tui"
	"github.com/studiowebux/restbench/internal/types"
)

// CloseCommand closes the connection when read as a line in script mode
const CloseCommand = ":close"

// wsSettle is how long script mode waits for trailing frames after input ends
const wsSettle = 500 * time.Millisecond

// WSOptions configures a WebSocket session
type WSOptions struct {
	Template string
	NoTUI    bool
}

func isWebSocket(t *types.RequestTemplate) bool { return t.Method.IsWebSocket() }

// WS opens an interactive session for a WS template. Without a terminal each
// stdin line is sent as one frame (":close" closes) and the log is printed.
func WS(ctx context.Context, app *App, opts WSOptions) error {
	tmpl, err := app.chooseTemplate(opts.Template, isWebSocket)
	if err != nil {
		return err
	}
	if !tmpl.Method.IsWebSocket() {
		return fmt.Errorf("template %q is not a WebSocket template", tmpl.Name)
	}

	store := parser.NewStore(app.Vars)
	sess := executor.NewSession(executor.SessionOptions{
		Compiler: compiler.New(nil),
		Store:    store,
		Logger:   app.Logger,
	})
	defer sess.Shutdown()

	if !opts.NoTUI && isTerminal(app.Stdin) && isTerminal(app.Stdout) {
		model := tui.NewWebSocketModel(sess, tmpl, app.Keys)
		_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		app.SaveSession(store)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("websocket view failed: %w", err)
		}
		return nil
	}

	err = app.scriptWS(ctx, sess, tmpl)
	app.SaveSession(store)
	return err
}

func (a *App) scriptWS(ctx context.Context, sess *executor.Session, tmpl *types.RequestTemplate) error {
	printed := 0
	flush := func() {
		entries := sess.LogSince(printed)
		printed += len(entries)
		for _, entry := range entries {
			fmt.Fprintln(a.Stdout, tui.FormatMessage(entry))
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case <-sess.Updates():
			flush()
		case line, ok := <-lines:
			if !ok {
				a.settle(ctx, sess, flush)
				return nil
			}
			if strings.TrimSpace(line) == CloseCommand {
				sess.Close()
				continue
			}
			frame := tmpl.Clone()
			frame.BodyRaw = line
			sess.Send(frame)
		}
	}
}

// settle keeps printing until the session has been quiet for wsSettle
func (a *App) settle(ctx context.Context, sess *executor.Session, flush func()) {
	timer := time.NewTimer(wsSettle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-sess.Updates():
			flush()
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(wsSettle)
		case <-timer.C:
			flush()
			return
		}
	}
}
