package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/studiowebux/restbench/internal/compiler"
	"github.com/studiowebux/restbench/internal/config"
	"github.com/studiowebux/restbench/internal/executor"
	"github.com/studiowebux/restbench/internal/keybinds"
	"github.com/studiowebux/restbench/internal/oauth"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/project"
	"github.com/studiowebux/restbench/internal/script"
	"github.com/studiowebux/restbench/internal/session"
	"github.com/studiowebux/restbench/internal/types"
)

// Options are the flags shared by every command
type Options struct {
	Home       string   // configuration directory; empty means ~/.restbench
	ConfigFile string   // settings file; empty means <home>/config.yaml
	Project    string   // project name or path
	ExtraVars  []string // key=value pairs from -e
	EnvFile    string   // path to a .env file
	LogLevel   string   // overrides the configured level when set

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// App is the loaded environment a command runs in
type App struct {
	Settings    *config.Settings
	Logger      *slog.Logger
	Project     *types.Project
	ProjectPath string
	// Vars is the project table overlaid with session, env file and -e values
	Vars     []types.Variable
	Sessions *session.Manager
	Session  *session.Session
	Keys     *keybinds.Registry

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Setup initializes configuration and loads the project
func Setup(opts Options) (*App, error) {
	app, err := setupEnvironment(opts)
	if err != nil {
		return nil, err
	}
	if opts.Project == "" {
		return nil, fmt.Errorf("no project given (use --project)")
	}
	if err := app.loadProject(opts); err != nil {
		return nil, err
	}
	return app, nil
}

// setupEnvironment loads settings without a project, for commands that only
// read the database
func setupEnvironment(opts Options) (*App, error) {
	var err error
	if opts.Home != "" {
		err = config.InitializeAt(opts.Home)
	} else {
		err = config.Initialize()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}

	settings, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
		if err := settings.Validate(); err != nil {
			return nil, err
		}
	}

	app := &App{
		Settings: settings,
		Sessions: session.NewManager(config.SessionsDir),
		Keys:     keybinds.Default(),
		Stdin:    opts.Stdin,
		Stdout:   opts.Stdout,
		Stderr:   opts.Stderr,
	}
	if app.Stdin == nil {
		app.Stdin = os.Stdin
	}
	if app.Stdout == nil {
		app.Stdout = os.Stdout
	}
	if app.Stderr == nil {
		app.Stderr = os.Stderr
	}
	app.Logger = settings.NewLogger(app.Stderr)

	if err := app.Keys.LoadOverrides(config.KeybindsFile); err != nil {
		app.Logger.Warn("ignoring keybind overrides", "error", err)
		app.Keys = keybinds.Default()
	}
	return app, nil
}

func (a *App) loadProject(opts Options) error {
	path, err := project.Find(opts.Project, config.ProjectsDir)
	if err != nil {
		return err
	}
	p, err := project.Load(path)
	if err != nil {
		return err
	}
	a.Project = p
	a.ProjectPath = path

	a.Session, err = a.Sessions.Load(p.Name)
	if err != nil {
		return err
	}
	vars := a.Session.Overlay(p.Variables)

	if opts.EnvFile != "" {
		fileVars, err := parser.LoadEnvFile(opts.EnvFile)
		if err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		vars = parser.Overlay(vars, fileVars)
	}

	cliVars, err := parser.ParseAssignments(opts.ExtraVars)
	if err != nil {
		return err
	}
	a.Vars = parser.Overlay(vars, cliVars)

	a.Logger.Debug("project loaded", "project", p.Name, "path", path, "templates", len(project.Templates(p)))
	return nil
}

// Template finds a template of the loaded project
func (a *App) Template(query string) (*types.RequestTemplate, error) {
	return project.FindTemplate(a.Project, query)
}

// NewPipeline wires compiler, transport, script hooks and OAuth for tmpl
func (a *App) NewPipeline(tmpl *types.RequestTemplate, store *parser.Store) (*executor.Pipeline, error) {
	transport, err := executor.NewHTTPTransport(executor.TransportOptions{
		Timeout: a.Settings.RequestTimeout,
		TLS:     a.tlsConfig(tmpl),
	})
	if err != nil {
		return nil, err
	}
	client := transport.Client()

	engine := script.NewJSEngine(script.Options{
		FixturesDir: a.Settings.FixturesDir,
		Timeout:     a.Settings.ScriptTimeout,
		HTTPClient:  client,
		Logger:      a.Logger,
	})

	return &executor.Pipeline{
		Template:  tmpl,
		Store:     store,
		Compiler:  compiler.New(client),
		Transport: transport,
		Hooks:     script.NewHooks(engine, a.Logger),
		OAuth:     oauth.NewProvider(client),
		Logger:    a.Logger,
	}, nil
}

// tlsConfig returns the template's TLS settings with the global insecure flag applied
func (a *App) tlsConfig(tmpl *types.RequestTemplate) *types.TLSConfig {
	if !a.Settings.InsecureSkipVerify {
		return tmpl.TLS
	}
	cfg := types.TLSConfig{}
	if tmpl.TLS != nil {
		cfg = *tmpl.TLS
	}
	cfg.InsecureSkipVerify = true
	return &cfg
}

// SaveSession persists the variables store gained during the command
func (a *App) SaveSession(store *parser.Store) {
	if n := a.Session.Capture(a.Vars, store); n == 0 {
		return
	}
	if err := a.Sessions.Save(a.Session); err != nil {
		a.Logger.Warn("failed to save session", "error", err)
	}
}

func isTerminal(w interface{}) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
