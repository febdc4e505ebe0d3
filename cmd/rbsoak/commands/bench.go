package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rbarena/internal/soak"
	"github.com/Sumatoshi-tech/rbarena/pkg/config"
	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/version"
)

const defaultBenchSize = 1_000_000

// NewBenchCommand creates the bench subcommand.
func NewBenchCommand(globals *GlobalFlags) *cobra.Command {
	var (
		size    int
		seed    int64
		reserve bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time inserts, lookups and deletes on a single tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != config.FormatTable && format != config.FormatJSON && format != config.FormatYAML {
				return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
			}

			if size <= 0 {
				return fmt.Errorf("%w: %d", soak.ErrInvalidBenchSize, size)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runBench(ctx, cmd, globals, size, seed, reserve, format)
		},
	}

	cmd.Flags().IntVarP(&size, "size", "n", defaultBenchSize, "number of keys")
	cmd.Flags().Int64Var(&seed, "seed", 1, "seed of the key permutation")
	cmd.Flags().BoolVar(&reserve, "reserve", false, "size the allocator for all keys up front")
	cmd.Flags().StringVarP(&format, "format", "f", config.FormatTable, "output format: table, json or yaml")

	return cmd
}

func runBench(
	ctx context.Context, cmd *cobra.Command, globals *GlobalFlags, size int, seed int64, reserve bool, format string,
) error {
	obsCfg := observability.DefaultConfig()
	obsCfg.Mode = observability.ModeBench
	obsCfg.ServiceVersion = version.Version
	globals.apply(&obsCfg)

	providers, err := observability.Init(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer providers.Shutdown(context.WithoutCancel(ctx)) //nolint:errcheck // no exporters are configured for bench.

	ctx, span := providers.Tracer.Start(ctx, "soak.bench")
	defer span.End()

	providers.Logger.InfoContext(ctx, "bench started", slog.Int("size", size), slog.Bool("reserve", reserve))

	results, err := soak.Bench(ctx, size, seed, reserve)
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}

	return renderBench(cmd.OutOrStdout(), results, format)
}
