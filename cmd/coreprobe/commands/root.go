package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coreprobe/coreprobe/pkg/config"
	"github.com/coreprobe/coreprobe/pkg/stores"
	"github.com/coreprobe/coreprobe/pkg/telemetry"
)

var (
	// Global flags
	problemFiles  []string
	dbPath        string
	verbose       bool
	jsonOutput    bool
	metricsAddr   string
	traceExporter string
	traceEndpoint string

	// set up by the root command before any subcommand runs
	tel *telemetry.Telemetry
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	// PersistentPostRunE does not run when a command fails
	defer shutdownTelemetry()
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coreprobe",
		Short: "CoreProbe - minimal core enumeration for monotone predicates",
		Long: `CoreProbe finds every minimal subset (core) of a universe of elements
on which a monotone predicate holds, together with the elements shared
by all of them.

Features:
  - Problems defined in YAML, JSON or CUE
  - Predicates in Starlark, Rego, WASM, local commands or over SSH
  - Punch enumeration with ddmin or partition minimizing
  - Exhaustive top-down search for cross-checking
  - Run history in SQLite, Prometheus metrics and OpenTelemetry traces`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupTelemetry(version)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return shutdownTelemetry()
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVarP(&problemFiles, "file", "f", []string{"coreprobe.yaml"}, "problem files or directories")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "coreprobe.db", "run history database (empty disables history)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP collector endpoint")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCompareCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

func setupTelemetry(version string) error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	if verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Tracing.Exporter = traceExporter
	cfg.Tracing.Endpoint = traceEndpoint
	cfg.Metrics.Enabled = metricsAddr != ""
	cfg.Metrics.ListenAddress = metricsAddr

	t, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	if err := t.StartMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	tel = t
	return nil
}

func shutdownTelemetry() error {
	if tel == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := tel.Shutdown(ctx)
	tel = nil
	return err
}

func logger() zerolog.Logger {
	if tel == nil {
		return zerolog.Nop()
	}
	return tel.Logger.Zerolog()
}

// loadProblems loads the problem files and selects names, or every problem
// when names is empty.
func loadProblems(ctx context.Context, names []string) ([]*config.Problem, error) {
	parsed, err := config.NewLoader(logger()).Load(ctx, problemFiles...)
	if err != nil {
		return nil, err
	}
	if err := parsed.Err(); err != nil {
		return nil, err
	}
	return selectProblems(parsed, names)
}

func selectProblems(parsed *config.ParsedProblems, names []string) ([]*config.Problem, error) {
	if len(names) == 0 {
		problems := make([]*config.Problem, len(parsed.Problems))
		for i := range parsed.Problems {
			problems[i] = &parsed.Problems[i]
		}
		return problems, nil
	}

	problems := make([]*config.Problem, 0, len(names))
	for _, name := range names {
		p, ok := parsed.Find(name)
		if !ok {
			return nil, fmt.Errorf("problem %q not found", name)
		}
		problems = append(problems, p)
	}
	return problems, nil
}

// openStore opens and migrates the history database. It returns nil when
// history is disabled.
func openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	if dbPath == "" {
		return nil, nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}
