// Package cli implements the autodev command line on top of the api
// package: one cobra command per backend resource, plus the drop-folder
// watcher, dashboard summaries and configuration helpers.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/autodev/api"
	"github.com/randalmurphal/autodev/apiclient"
	"github.com/randalmurphal/autodev/notify"
	"github.com/randalmurphal/autodev/poll"
	"github.com/randalmurphal/autodev/settings"
	"github.com/randalmurphal/autodev/workspace"
)

// Version is set at build time.
var Version = "dev"

type globalFlags struct {
	configPath  string
	apiURL      string
	project     string
	logLevel    string
	metricsAddr string
	output      string
	quiet       bool
}

// App carries the state shared by every command. Fields are populated by
// setup before a command runs.
type App struct {
	out    io.Writer
	errOut io.Writer
	flags  globalFlags
	now    func() time.Time

	cfg      settings.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	client   *apiclient.Client
	api      *api.API
	store    workspace.Store
	ws       *workspace.Workspace
	project  string
	toast    *notify.Toaster
	overlay  *notify.Overlay

	// clientOpts are appended when the client is built. Tests only.
	clientOpts []apiclient.Option
}

// NewApp returns an App writing results to out and diagnostics to errOut.
func NewApp(out, errOut io.Writer) *App {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &App{out: out, errOut: errOut, now: time.Now}
}

// Execute runs the root command with os.Args.
func Execute(ctx context.Context) int {
	app := NewApp(os.Stdout, os.Stderr)
	defer app.Close()
	if err := app.RootCommand().ExecuteContext(ctx); err != nil {
		app.reportError(err)
		return 1
	}
	return 0
}

// reportError shows API failures with their localized message and
// everything else verbatim.
func (a *App) reportError(err error) {
	var apiErr *apiclient.Error
	if a.toast != nil && errors.As(err, &apiErr) {
		a.toast.ErrorFrom("エラー", err)
		a.logger.Debug("command failed", slog.Any("error", err))
		return
	}
	fmt.Fprintln(a.errOut, "Error:", err)
}

// RootCommand builds the command tree.
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "autodev",
		Short:         "Command line client for the Auto-Dev Department backend",
		Long:          `autodev turns conversation logs into issues, requirements and AI-generated code through the Auto-Dev Department REST API.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.Close()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "Config file (.yaml, .yml or .toml)")
	pf.StringVar(&a.flags.apiURL, "api-url", "", "Backend base URL")
	pf.StringVarP(&a.flags.project, "project", "p", "", "Project ID (defaults to the selected project)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&a.flags.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address during long-running commands")
	pf.StringVarP(&a.flags.output, "output", "o", "table", "Output format: table, json, yaml")
	pf.BoolVarP(&a.flags.quiet, "quiet", "q", false, "Suppress success messages")

	root.AddCommand(
		a.projectsCommand(),
		a.sourcesCommand(),
		a.issuesCommand(),
		a.requirementsCommand(),
		a.developmentsCommand(),
		a.syncCommand(),
		a.statsCommand(),
		a.dashboardCommand(),
		a.configCommand(),
	)
	return root
}

// setup loads configuration and builds the client. Precedence, lowest
// first: defaults, config file, .env and environment, flags.
func (a *App) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := settings.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	cfg, err = a.applyOverrides(cfg)
	if err != nil {
		return err
	}
	if _, err := formatOf(a.flags.output); err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := settings.ParseLevel(cfg.LogLevel)
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))

	a.toast = notify.NewToaster(a.errOut)
	a.toast.SetQuiet(a.flags.quiet)
	a.overlay = notify.NewOverlay(a.errOut)

	// Commands that never talk to the backend stop here.
	if cmd.Annotations[annotationOffline] == "true" {
		return nil
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := apiclient.NewMetrics(a.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	opts := []apiclient.Option{
		apiclient.WithLogger(a.logger),
		apiclient.WithRetryPolicy(cfg.RetryPolicy()),
		apiclient.WithMetrics(metrics),
		apiclient.WithUserAgent("autodev-cli/" + Version),
	}
	a.client, err = apiclient.New(cfg.APIURL, append(opts, a.clientOpts...)...)
	if err != nil {
		return err
	}
	a.api = api.New(a.client)

	store, err := workspace.OpenBoltStore(cfg.StatePath(), a.logger)
	if err != nil {
		if !errors.Is(err, workspace.ErrStoreLocked) {
			return fmt.Errorf("open workspace state: %w", err)
		}
		a.logger.Warn("workspace state is locked, selection will not persist",
			slog.String("path", cfg.StatePath()))
		a.store = workspace.NewMemoryStore()
	} else {
		a.store = store
	}
	a.ws = workspace.New(a.api.Projects, a.store, workspace.WithLogger(a.logger))
	return nil
}

// Close releases the workspace store.
func (a *App) Close() error {
	if a.overlay != nil {
		a.overlay.Stop()
	}
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// projectID resolves the project for a command once per invocation: the
// --project flag, then the workspace selection (the saved project if it
// still exists, else the first project). When the project list cannot be
// loaded it falls back to the saved ID, then api.DefaultProjectID.
func (a *App) projectID(ctx context.Context) string {
	if a.flags.project != "" {
		return a.flags.project
	}
	if a.project == "" {
		a.project = a.resolveProject(ctx)
	}
	return a.project
}

func (a *App) resolveProject(ctx context.Context) string {
	if a.ws == nil {
		return api.DefaultProjectID
	}
	err := a.ws.Refresh(ctx)
	if err == nil {
		return a.ws.CurrentID()
	}
	a.logger.Warn("using saved project selection", slog.Any("error", err))
	if a.store != nil {
		id, err := a.store.LoadSelection()
		if err != nil {
			a.logger.Warn("load project selection", slog.Any("error", err))
		} else if id != "" {
			return id
		}
	}
	return api.DefaultProjectID
}

// applyOverrides layers the environment and flags over a loaded config.
func (a *App) applyOverrides(cfg settings.Config) (settings.Config, error) {
	cfg.LoadFromEnv()
	if a.flags.apiURL != "" {
		cfg = cfg.WithAPIURL(a.flags.apiURL)
	}
	if a.flags.logLevel != "" {
		cfg = cfg.WithLogLevel(a.flags.logLevel)
	}
	if a.flags.metricsAddr != "" {
		cfg.MetricsAddr = a.flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// watchConfig hot-reloads the --config file until ctx is done, passing each
// valid reload with environment and flags applied to fn. Without --config
// it does nothing.
func (a *App) watchConfig(ctx context.Context, fn func(settings.Config)) {
	if a.flags.configPath == "" {
		return
	}
	go func() {
		err := settings.Watch(ctx, a.flags.configPath, a.logger, func(cfg settings.Config) {
			cfg, err := a.applyOverrides(cfg)
			if err != nil {
				a.logger.Warn("ignoring reloaded config", slog.Any("error", err))
				return
			}
			fn(cfg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("config hot reload disabled", slog.Any("error", err))
		}
	}()
}

// everyReloadable runs fn like poll.Every and restarts the loop at the new
// interval whenever a different one arrives on intervals.
func (a *App) everyReloadable(ctx context.Context, interval time.Duration, intervals <-chan time.Duration, fn func(context.Context) error) error {
	for {
		loopCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func(d time.Duration) {
			_, err := poll.Every(loopCtx, a.pollConfig(d), fn)
			done <- err
		}(interval)

		changed := false
		for !changed {
			select {
			case err := <-done:
				cancel()
				return err
			case next := <-intervals:
				if next != interval {
					a.logger.Info("refresh interval changed",
						slog.Duration("from", interval), slog.Duration("to", next))
					interval = next
					changed = true
				}
			}
		}
		cancel()
		<-done
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (a *App) pollConfig(interval time.Duration) poll.Config {
	return poll.Config{Interval: interval, Logger: a.logger}
}

// ignoreCanceled treats interruption of a long-running command as success.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

const annotationOffline = "offline"

func offline() map[string]string {
	return map[string]string{annotationOffline: "true"}
}
