package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/studiowebux/restbench/internal/cli"
)

var (
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "restbench",
	Short: "restbench - HTTP/WebSocket API testing and load generation",
	Long: `restbench sends the request templates of a project, chains values between
them with scripts and extraction rules, and load-tests a template with many
concurrent requests.

Projects are JSON (comments allowed) or YAML files, looked up by name in
~/.restbench/projects or given as a path.

Examples:
  restbench send -p shop login               # Send a template
  restbench send -p shop me -e userId=42     # Override a variable
  restbench send -p shop users -q '[].name'  # JMESPath query on the body
  restbench bench -p shop ping -n 10000 -c 200
  restbench ws -p shop chat                  # Interactive WebSocket console
  restbench runs --limit 10                  # Stored bench runs`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var sendCmd = &cobra.Command{
	Use:   "send [template]",
	Short: "Send one request and print the response",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.Setup(globalOptions())
		if err != nil {
			return err
		}
		return cli.Send(cmd.Context(), app, cli.SendOptions{
			Template:  firstArg(args),
			Output:    flagOutput,
			Full:      flagFull,
			Filter:    flagFilter,
			Query:     flagQuery,
			SavePath:  flagSave,
			Copy:      flagCopy,
			NoHistory: flagNoHistory,
		})
	},
}

var benchCmd = &cobra.Command{
	Use:   "bench [template]",
	Short: "Send a template many times concurrently and report statistics",
	Long: `Send a template many times with bounded concurrency.

Progress, latency percentiles and throughput are shown live. Press s to stop
scheduling new requests; requests already in flight are awaited. Runs and
per-request metrics are stored in the database (see the runs command).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.Setup(globalOptions())
		if err != nil {
			return err
		}
		_, err = cli.Bench(cmd.Context(), app, cli.BenchOptions{
			Template:    firstArg(args),
			Requests:    flagRequests,
			Concurrency: flagConcurrency,
			DurationSec: flagDuration,
			NoTUI:       flagNoTUI,
			MetricsAddr: flagMetricsAddr,
		})
		return err
	},
}

var wsCmd = &cobra.Command{
	Use:   "ws [template]",
	Short: "Open a WebSocket session",
	Long: `Open the WebSocket session of a WS template.

On a terminal an interactive console is shown. Otherwise every stdin line is
sent as one frame, ":close" closes the connection, and the message log is
printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.Setup(globalOptions())
		if err != nil {
			return err
		}
		return cli.WS(cmd.Context(), app, cli.WSOptions{Template: firstArg(args), NoTUI: flagNoTUI})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored bench runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Runs(globalOptions(), cli.RunsOptions{Project: flagProject, Limit: flagLimit, Delete: flagDelete})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [template]",
	Short: "List sent requests",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.History(globalOptions(), cli.HistoryOptions{
			Project:  flagProject,
			Template: firstArg(args),
			Limit:    flagLimit,
			Clear:    flagClear,
		})
	},
}

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Show effective variables and unresolved placeholders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Vars(globalOptions(), cli.VarsOptions{Clear: flagClear})
	},
}

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"ls"},
	Short:   "List the templates of a project",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Templates(globalOptions())
	},
}

// Global flags
var (
	flagHome      string
	flagConfig    string
	flagProject   string
	flagExtraVars []string
	flagEnvFile   string
	flagLogLevel  string
)

// Flags for send
var (
	flagOutput    string
	flagFull      bool
	flagFilter    string
	flagQuery     string
	flagSave      string
	flagCopy      bool
	flagNoHistory bool
)

// Flags for bench and ws
var (
	flagRequests    int
	flagConcurrency int
	flagDuration    int
	flagNoTUI       bool
	flagMetricsAddr string
)

// Flags for runs, history and vars
var (
	flagLimit  int
	flagDelete int64
	flagClear  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "Configuration directory (default ~/.restbench)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Settings file (default <home>/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "Project name or path")
	rootCmd.PersistentFlags().StringArrayVarP(&flagExtraVars, "extra-vars", "e", []string{}, "Set variable (key=value), can be repeated")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Load variables from a .env file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug/info/warn/error)")

	sendCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output format (text/body/json/yaml)")
	sendCmd.Flags().BoolVarP(&flagFull, "full", "f", false, "Show headers and captured variables")
	sendCmd.Flags().StringVar(&flagFilter, "filter", "", "JMESPath filter applied to the response body")
	sendCmd.Flags().StringVarP(&flagQuery, "query", "q", "", "JMESPath query or $(command) applied after the filter")
	sendCmd.Flags().StringVarP(&flagSave, "save", "s", "", "Save output to file")
	sendCmd.Flags().BoolVar(&flagCopy, "copy", false, "Copy the response body to the clipboard")
	sendCmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Do not record the request in history")

	benchCmd.Flags().IntVarP(&flagRequests, "requests", "n", 100, "Total number of requests")
	benchCmd.Flags().IntVarP(&flagConcurrency, "concurrency", "c", 10, "Maximum requests in flight (0 = configured maximum)")
	benchCmd.Flags().IntVarP(&flagDuration, "duration", "d", 0, "Stop scheduling after this many seconds (0 = no limit)")
	benchCmd.Flags().BoolVar(&flagNoTUI, "no-tui", false, "Log progress instead of showing the live view")
	benchCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	wsCmd.Flags().BoolVar(&flagNoTUI, "no-tui", false, "Read frames from stdin instead of showing the console")

	runsCmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of runs")
	runsCmd.Flags().Int64Var(&flagDelete, "delete", 0, "Delete the run with this ID")

	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of entries")
	historyCmd.Flags().BoolVar(&flagClear, "clear", false, "Delete all history")

	varsCmd.Flags().BoolVar(&flagClear, "clear", false, "Forget variables captured in the session")

	rootCmd.AddCommand(sendCmd, benchCmd, wsCmd, runsCmd, historyCmd, varsCmd, templatesCmd)
}

func globalOptions() cli.Options {
	return cli.Options{
		Home:       flagHome,
		ConfigFile: flagConfig,
		Project:    flagProject,
		ExtraVars:  flagExtraVars,
		EnvFile:    flagEnvFile,
		LogLevel:   flagLogLevel,
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
