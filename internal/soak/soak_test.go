package soak_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/rbarena/internal/soak"
	"github.com/Sumatoshi-tech/rbarena/pkg/config"
	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

func testWorkload() config.WorkloadConfig {
	return config.WorkloadConfig{
		Trees:         3,
		Operations:    5000,
		KeySpace:      200,
		Seed:          17,
		InsertRatio:   0.5,
		DeleteRatio:   0.3,
		ValidateEvery: 100,
		Compression:   "lz4",
	}
}

func runWorkload(t *testing.T, workload config.WorkloadConfig) (*soak.Report, error) {
	t.Helper()

	runner, err := soak.NewRunner(soak.Options{Workload: workload})
	require.NoError(t, err)

	return runner.Run(context.Background())
}

func TestRunPasses(t *testing.T) {
	t.Parallel()

	report, err := runWorkload(t, testWorkload())
	require.NoError(t, err)

	assert.True(t, report.Passed)
	require.Len(t, report.Trees, 3)

	for _, tree := range report.Trees {
		assert.True(t, tree.Drained, "tree %d", tree.Tree)
		assert.Empty(t, tree.Error)
		assert.Positive(t, tree.Counts.Inserts)
		assert.Positive(t, tree.Counts.Duplicates)
		assert.Positive(t, tree.Counts.Misses)
		// 50 periodic validations plus the final one.
		assert.Equal(t, int64(51), tree.Counts.Validations)
		assert.LessOrEqual(t, tree.PeakLen, 200)
		assert.GreaterOrEqual(t, tree.Slots, tree.FinalLen)
		assert.Equal(t, int64(5000), tree.Counts.Ops()-int64(tree.FinalLen))
	}

	assert.Equal(t, "lz4", report.Compression)
	assert.Positive(t, report.HeapPeakBytes)
	assert.NotEmpty(t, report.HeapPeak())
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	first, err := runWorkload(t, testWorkload())
	require.NoError(t, err)

	second, err := runWorkload(t, testWorkload())
	require.NoError(t, err)

	for idx := range first.Trees {
		assert.Equal(t, first.Trees[idx].Counts, second.Trees[idx].Counts)
		assert.Equal(t, first.Trees[idx].Rotations, second.Trees[idx].Rotations)
	}
}

func TestRunHibernates(t *testing.T) {
	t.Parallel()

	for _, codec := range []string{"lz4", "zstd"} {
		t.Run(codec, func(t *testing.T) {
			t.Parallel()

			workload := testWorkload()
			workload.Compression = codec
			workload.HibernateEvery = 250
			workload.HibernationThreshold = 10

			report, err := runWorkload(t, workload)
			require.NoError(t, err)
			assert.Equal(t, codec, report.Compression)

			for _, tree := range report.Trees {
				assert.Equal(t, int64(20), tree.Counts.Hibernations)
			}
		})
	}
}

func TestRunWithReserve(t *testing.T) {
	t.Parallel()

	workload := testWorkload()
	workload.Reserve = 200
	workload.InsertRatio = 1
	workload.DeleteRatio = 0

	report, err := runWorkload(t, workload)
	require.NoError(t, err)

	for _, tree := range report.Trees {
		assert.Equal(t, 0, tree.Relocations)
		assert.Equal(t, 200, tree.FinalLen)
	}
}

func TestRunRateLimited(t *testing.T) {
	t.Parallel()

	workload := testWorkload()
	workload.Trees = 1
	workload.Operations = 300
	workload.OpsPerSecond = 100_000

	report, err := runWorkload(t, workload)
	require.NoError(t, err)
	assert.True(t, report.Passed)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	workload := testWorkload()
	workload.Operations = 100_000
	workload.ValidateEvery = 0

	runner, err := soak.NewRunner(soak.Options{Workload: workload})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, report.Passed)
}

func TestRunMemoryBudget(t *testing.T) {
	t.Parallel()

	workload := testWorkload()
	workload.MemoryBudget = "1KiB"

	report, err := runWorkload(t, workload)
	require.ErrorIs(t, err, soak.ErrMemoryBudget)
	assert.False(t, report.Passed)
}

func TestNewRunnerRejectsCodec(t *testing.T) {
	t.Parallel()

	workload := testWorkload()
	workload.Compression = "brotli"

	_, err := soak.NewRunner(soak.Options{Workload: workload})
	require.ErrorIs(t, err, rbtree.ErrUnknownCompression)
}

func TestRunRecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewTreeMetrics(mp.Meter("test"))
	require.NoError(t, err)

	workload := testWorkload()
	workload.Trees = 2

	runner, err := soak.NewRunner(soak.Options{Workload: workload, Metrics: metrics})
	require.NoError(t, err)

	reg, err := metrics.ObserveTrees(runner.Stats)
	require.NoError(t, err)

	t.Cleanup(func() { assert.NoError(t, reg.Unregister()) })

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	total := int64(0)
	gauges := 0

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch m.Name {
			case "rbtree.ops.total":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)

				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			case "rbtree.len":
				gauge, ok := m.Data.(metricdata.Gauge[int64])
				require.True(t, ok)

				gauges = len(gauge.DataPoints)
			}
		}
	}

	assert.Equal(t, report.Totals.Ops(), total)
	assert.Equal(t, 2, gauges)
	assert.Len(t, runner.Stats(), 2)
}

func TestBench(t *testing.T) {
	t.Parallel()

	for _, reserve := range []bool{false, true} {
		results, err := soak.Bench(context.Background(), 2000, 3, reserve)
		require.NoError(t, err)
		require.Len(t, results, 4)

		assert.Equal(t, "insert", results[0].Phase)
		assert.Equal(t, 2000, results[0].Ops)
		assert.Positive(t, results[0].Rotations)
		assert.Equal(t, "delete", results[3].Phase)

		if reserve {
			assert.Equal(t, 0, results[0].Relocations)
		} else {
			assert.Positive(t, results[0].Relocations)
		}
	}
}

func TestBenchRejectsSize(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -1} {
		results, err := soak.Bench(context.Background(), size, 1, true)
		require.ErrorIs(t, err, soak.ErrInvalidBenchSize)
		assert.Empty(t, results)
	}
}
