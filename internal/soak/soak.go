// Package soak drives randomized workloads against independent trees and
// checks every result against a map oracle.
package soak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Sumatoshi-tech/rbarena/pkg/config"
	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

// Sentinel errors reported by a run.
var (
	ErrMismatch     = errors.New("tree disagrees with the oracle")
	ErrLeak         = errors.New("slots still occupied after drain")
	ErrMemoryBudget = errors.New("heap exceeded the memory budget")
)

// Options configures a Runner.
type Options struct {
	Workload config.WorkloadConfig

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
	// Tracer defaults to a no-op tracer.
	Tracer trace.Tracer
	// Metrics is optional.
	Metrics *observability.TreeMetrics
}

// Runner executes one soak run. A Runner must not be reused.
type Runner struct {
	workload config.WorkloadConfig
	codec    rbtree.Compression
	budget   uint64
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.TreeMetrics
	limiter  *rate.Limiter

	mu    sync.Mutex
	stats []rbtree.Stats

	heapPeak atomic.Uint64
}

// NewRunner validates the workload and prepares a run.
func NewRunner(opts Options) (*Runner, error) {
	codec, err := opts.Workload.Codec()
	if err != nil {
		return nil, err
	}

	budget, err := opts.Workload.MemoryBudgetBytes()
	if err != nil {
		return nil, err
	}

	runner := &Runner{
		workload: opts.Workload,
		codec:    codec,
		budget:   budget,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		metrics:  opts.Metrics,
		stats:    make([]rbtree.Stats, opts.Workload.Trees),
	}

	if runner.logger == nil {
		runner.logger = slog.New(slog.DiscardHandler)
	}

	if runner.tracer == nil {
		runner.tracer = nooptrace.NewTracerProvider().Tracer("soak")
	}

	if ops := opts.Workload.OpsPerSecond; ops > 0 {
		runner.limiter = rate.NewLimiter(rate.Limit(ops), max(1, int(math.Ceil(ops/10))))
	}

	return runner, nil
}

// Stats returns the latest published stats of every tree. It is safe to call
// while the run is in progress.
func (r *Runner) Stats() []rbtree.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]rbtree.Stats, len(r.stats))
	copy(out, r.stats)

	return out
}

func (r *Runner) publish(tree int, stats rbtree.Stats) {
	r.mu.Lock()
	r.stats[tree] = stats
	r.mu.Unlock()
}

func (r *Runner) sampleHeap() {
	var ms runtime.MemStats

	runtime.ReadMemStats(&ms)

	for {
		peak := r.heapPeak.Load()
		if ms.HeapInuse <= peak || r.heapPeak.CompareAndSwap(peak, ms.HeapInuse) {
			return
		}
	}
}

// Run executes the workload on every tree in parallel and returns the report.
// The report is returned even when the run fails.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	ctx, span := r.tracer.Start(ctx, "soak.run", trace.WithAttributes(
		attribute.Int("soak.trees", r.workload.Trees),
		attribute.Int("soak.operations", r.workload.Operations),
		attribute.Int64("soak.seed", r.workload.Seed),
	))
	defer span.End()

	start := time.Now()
	reports := make([]TreeReport, r.workload.Trees)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))

	for idx := range reports {
		group.Go(func() error {
			w := newWorker(r, idx)
			err := w.run(groupCtx)

			reports[idx] = w.report
			if err != nil {
				reports[idx].Error = err.Error()
			}

			return err
		})
	}

	runErr := group.Wait()

	r.sampleHeap()

	report := &Report{
		Seed:            r.workload.Seed,
		Compression:     r.codec.String(),
		Trees:           reports,
		DurationSeconds: time.Since(start).Seconds(),
		HeapPeakBytes:   r.heapPeak.Load(),
	}

	for idx := range reports {
		report.Totals.add(reports[idx].Counts)
	}

	if report.DurationSeconds > 0 {
		report.OpsPerSecond = float64(report.Totals.Ops()) / report.DurationSeconds
	}

	if runErr == nil && r.budget > 0 && report.HeapPeakBytes > r.budget {
		runErr = fmt.Errorf("%w: peak %s, budget %s",
			ErrMemoryBudget, report.HeapPeak(), humanize.IBytes(r.budget))
	}

	report.Passed = runErr == nil

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())

		return report, runErr
	}

	r.logger.InfoContext(ctx, "soak run passed",
		slog.Int64("ops", report.Totals.Ops()),
		slog.Float64("seconds", report.DurationSeconds),
		slog.String("heap_peak", report.HeapPeak()))

	return report, nil
}
