package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beekhof/ics-tasks-sync/internal/auth"
	"github.com/beekhof/ics-tasks-sync/internal/config"
	"github.com/beekhof/ics-tasks-sync/internal/ics"
	"github.com/beekhof/ics-tasks-sync/internal/metrics"
	"github.com/beekhof/ics-tasks-sync/internal/runner"
	"github.com/beekhof/ics-tasks-sync/internal/store"
	"github.com/beekhof/ics-tasks-sync/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const longHelp = `ICS to Tasks Sync Tool

A one-way synchronization tool that copies the events of each user's published
ICS calendar into a Google Tasks list, so every deadline shows up as a task.

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (ICSTASKS_STORE_PATH, GOOGLE_CREDENTIALS_PATH,
       TASK_LIST_TITLE, INCLUDE_PAST, SYNC_SCHEDULE, RATE_LIMIT_CALLS,
       RATE_LIMIT_INTERVAL_SECONDS, SYNC_CONCURRENCY, METRICS_ADDR)
    3. Config file (--config)
    4. Defaults

CONFIG FILE:
    {
      "store_path": "/var/lib/icstasks/users.yaml",
      "google_credentials_path": "/path/to/credentials.json",
      "task_list_title": "dot_tasklist",
      "include_past": false,
      "schedule": "@every 1h",
      "rate_limit_calls": 10,
      "rate_limit_interval_seconds": 1,
      "concurrency": 1,
      "http_timeout_seconds": 30,
      "metrics_addr": ":9090"
    }

    The Google credentials JSON file should be in the format downloaded from
    Google Cloud Console. Its client is used for stored credentials that carry
    no client_id of their own.

USER STORE:
    A YAML file with one auth record and one link record per user:
    users:
      - email: student@example.com
        credential:
          access_token: ...
          refresh_token: ...
    links:
      - email: student@example.com
        ics_url: https://example.com/calendar.ics

    Refreshed access tokens and last_sync timestamps are written back to it.

DESCRIPTION:
    Tasks are only ever added. A task is not recreated if a task with the same
    title (ignoring case and surrounding spaces) is already in the list,
    including completed and hidden ones. Tasks are never updated or deleted.

    Events that ended before today (UTC) are skipped unless --include-past is set.`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := newRootCmd().Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	verbose    bool
	flags      config.Flags
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "icstasks",
		Short:         "Sync ICS calendar events into Google Tasks",
		Long:          longHelp,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path to JSON config file")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output (show DEBUG logs)")
	pf.StringVar(&opts.flags.StorePath, "store-path", "", "Path to the YAML user store (overrides config file and ICSTASKS_STORE_PATH env var)")
	pf.StringVar(&opts.flags.GoogleCredentialsPath, "google-credentials-path", "", "Path to Google OAuth credentials JSON file (overrides config file and GOOGLE_CREDENTIALS_PATH env var)")
	pf.StringVar(&opts.flags.TaskListTitle, "task-list", "", "Title of the task list to sync into (overrides config file and TASK_LIST_TITLE env var)")
	pf.BoolVar(&opts.flags.IncludePast, "include-past", false, "Also sync events that ended before today (overrides config file and INCLUDE_PAST env var)")
	pf.IntVar(&opts.flags.Concurrency, "concurrency", 0, "Number of users synced in parallel (overrides config file and SYNC_CONCURRENCY env var)")

	cmd.AddCommand(newSyncCmd(opts), newRunCmd(opts))
	return cmd
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync every user once and exit",
		Long:  "Sync every linked user once. Exits non-zero if any user failed.",
		Example: `  # Sync everybody in the store
  icstasks sync --config /etc/icstasks.json

  # Sync one user
  icstasks sync --store-path users.yaml --user student@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts, metrics.Nop{})
			if err != nil {
				return err
			}

			summary, err := app.runner.Run(cmd.Context(), user)
			if err != nil {
				return err
			}
			if user != "" && summary.Total == 0 {
				return fmt.Errorf("user %q not found in store", user)
			}
			if !summary.OK() {
				return fmt.Errorf("%d of %d user(s) failed to sync", summary.Failed, summary.Total)
			}
			log.Printf("All syncs completed successfully (%d user(s))", summary.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Sync only the user with this email")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync every user now and then on a schedule",
		Long: `Sync every linked user immediately and then on the configured cron schedule
until interrupted. A run that is still going when the next one is due makes
that next one skip.`,
		Example: `  icstasks run --config /etc/icstasks.json --schedule "@every 30m" --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			observer, err := metrics.NewPrometheusObserver(metrics.DefaultNamespace, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			app, err := newApp(opts, observer)
			if err != nil {
				return err
			}

			scheduler, err := runner.NewScheduler(app.cfg.Schedule)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if app.cfg.MetricsAddr != "" {
				server := serveMetrics(app.cfg.MetricsAddr)
				defer shutdown(server)
			}

			scheduler.Run(ctx, func(ctx context.Context) {
				if _, err := app.runner.Run(ctx, ""); err != nil {
					log.Printf("Warning: scheduled run failed: %v", err)
				}
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.flags.Schedule, "schedule", "", "Cron schedule (overrides config file and SYNC_SCHEDULE env var)")
	cmd.Flags().StringVar(&opts.flags.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config file and METRICS_ADDR env var)")
	return cmd
}

type app struct {
	cfg    *config.Config
	runner *runner.Runner
}

// newApp loads the configuration and wires the sync pipeline.
func newApp(opts *rootOptions, observer metrics.Observer) (*app, error) {
	cfg, err := config.LoadConfig(opts.configFile, opts.flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var clientID, clientSecret string
	if cfg.GoogleCredentialsPath != "" {
		clientID, clientSecret, err = config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load Google credentials: %w", err)
		}
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	syncer := sync.NewSyncer(
		ics.NewFetcherWithClient(httpClient),
		auth.NewGuardian(cfg.TokenURL, httpClient, opts.verbose),
		sync.GoogleTasks,
		sync.Options{
			ListTitle:   cfg.TaskListTitle,
			IncludePast: cfg.IncludePast,
			Limiter:     sync.NewLimiter(cfg.RateLimitCalls, cfg.RateLimitInterval()),
			Verbose:     opts.verbose,
		},
	)

	r := runner.New(store.NewFileStore(cfg.StorePath), syncer, runner.Options{
		Concurrency:  cfg.Concurrency,
		Observer:     observer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Verbose:      opts.verbose,
	})

	if opts.verbose {
		log.Printf("DEBUG: store=%s list=%q include_past=%v concurrency=%d rate=%d/%s",
			cfg.StorePath, cfg.TaskListTitle, cfg.IncludePast, cfg.Concurrency, cfg.RateLimitCalls, cfg.RateLimitInterval())
	}

	return &app{cfg: cfg, runner: r}, nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Printf("Serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Warning: metrics server stopped: %v", err)
		}
	}()
	return server
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Warning: failed to stop metrics server: %v", err)
	}
}
