// Package commands implements CLI command handlers for rbsoak.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rbarena/internal/soak"
	"github.com/Sumatoshi-tech/rbarena/pkg/config"
	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/version"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
	metricsPath              = "/metrics"
)

// GlobalFlags holds the persistent flags of the root command.
type GlobalFlags struct {
	Verbose bool
	Quiet   bool
}

func (g *GlobalFlags) apply(obsCfg *observability.Config) {
	switch {
	case g == nil:
	case g.Verbose:
		obsCfg.LogLevel = slog.LevelDebug
	case g.Quiet:
		obsCfg.LogLevel = slog.LevelError
	}
}

type runFlags struct {
	configPath  string
	format      string
	compression string
	metricsAddr string
	noColor     bool
	trees       int
	operations  int
	keySpace    int
	seed        int64
}

// NewRunCommand creates the run subcommand.
func NewRunCommand(globals *GlobalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a randomized workload against independent trees",
		Long: `Run drives insert, delete and get operations against one tree per worker,
checks every result against a map oracle, validates the red-black invariants
periodically and drains every tree at the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig(cmd, flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runSoak(ctx, cmd, cfg, globals, flags.noColor)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "config file (default: rbsoak.yaml in ., ./config, /etc/rbsoak)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "report format: table, json or yaml")
	cmd.Flags().StringVar(&flags.compression, "compression", "", "hibernation codec: lz4 or zstd")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	cmd.Flags().IntVar(&flags.trees, "trees", 0, "number of independent trees")
	cmd.Flags().IntVar(&flags.operations, "operations", 0, "operations per tree")
	cmd.Flags().IntVar(&flags.keySpace, "key-space", 0, "keys are drawn from [0, key-space)")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "base seed of the workload")

	return cmd
}

// loadRunConfig loads the configuration and applies the flags set explicitly
// on the command line on top of it.
func loadRunConfig(cmd *cobra.Command, flags *runFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed

	if changed("format") {
		cfg.Report.Format = flags.format
	}

	if changed("compression") {
		cfg.Workload.Compression = flags.compression
	}

	if changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = flags.metricsAddr
	}

	if changed("trees") {
		cfg.Workload.Trees = flags.trees
	}

	if changed("operations") {
		cfg.Workload.Operations = flags.operations
	}

	if changed("key-space") {
		cfg.Workload.KeySpace = flags.keySpace
	}

	if changed("seed") {
		cfg.Workload.Seed = flags.seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func runSoak(ctx context.Context, cmd *cobra.Command, cfg *config.Config, globals *GlobalFlags, noColor bool) (err error) {
	obsCfg, err := cfg.Observability(version.Version)
	if err != nil {
		return err
	}

	globals.apply(&obsCfg)

	providers, err := observability.Init(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		err = errors.Join(err, providers.Shutdown(context.WithoutCancel(ctx)))
	}()

	metrics, err := observability.NewTreeMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create tree metrics: %w", err)
	}

	runner, err := soak.NewRunner(soak.Options{
		Workload: cfg.Workload,
		Logger:   providers.Logger,
		Tracer:   providers.Tracer,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	reg, err := metrics.ObserveTrees(runner.Stats)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, reg.Unregister()) }()

	if cfg.Telemetry.MetricsAddr != "" {
		stopServer, serveErr := serveMetrics(ctx, cfg.Telemetry.MetricsAddr, providers)
		if serveErr != nil {
			return serveErr
		}

		defer stopServer()
	}

	report, runErr := runner.Run(ctx)

	renderErr := renderReport(cmd.OutOrStdout(), report, cfg.Report.Format, noColor)

	return errors.Join(runErr, renderErr)
}

// serveMetrics exposes the Prometheus handler until the returned function is called.
func serveMetrics(ctx context.Context, addr string, providers observability.Providers) (func(), error) {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, providers.MetricsHandler)

	server := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		serveErr := server.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			providers.Logger.ErrorContext(ctx, "metrics server failed", slog.Any("error", serveErr))
		}
	}()

	providers.Logger.InfoContext(ctx, "serving metrics", slog.String("addr", listener.Addr().String()+metricsPath))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}, nil
}
