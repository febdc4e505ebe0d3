package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

const (
	metricOpsTotal       = "rbtree.ops.total"
	metricPhaseDuration  = "rbtree.phase.duration.seconds"
	metricFailuresTotal  = "rbtree.failures.total"
	metricTreeLen        = "rbtree.len"
	metricTreeSlots      = "rbtree.slots"
	metricTreeFreeSlots  = "rbtree.free_slots"
	metricTreeCapacity   = "rbtree.capacity"
	metricTreeRelocation = "rbtree.relocations"
	metricTreeRotations  = "rbtree.rotations"
	metricTreeHibernated = "rbtree.hibernated"

	attrOp      = "op"
	attrOutcome = "outcome"
	attrPhase   = "phase"
	attrTree    = "tree"
)

// phaseBucketBoundaries covers 10µs validations of tiny trees up to
// multi-second drains of large ones.
var phaseBucketBoundaries = []float64{0.00001, 0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

// metricBuilder accumulates instrument creation errors so a batch of
// instruments needs a single error check.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return c
}

func (b *metricBuilder) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.setErr(name, err)

	return h
}

func (b *metricBuilder) gauge(name, desc, unit string) metric.Int64ObservableGauge {
	g, err := b.meter.Int64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return g
}

func (b *metricBuilder) observableCounter(name, desc, unit string) metric.Int64ObservableCounter {
	c, err := b.meter.Int64ObservableCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return c
}

func (b *metricBuilder) setErr(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", name, err)
	}
}

// TreeMetrics holds the OTel instruments describing tree workloads.
type TreeMetrics struct {
	meter metric.Meter

	opsTotal      metric.Int64Counter
	phaseDuration metric.Float64Histogram
	failuresTotal metric.Int64Counter

	treeLen         metric.Int64ObservableGauge
	treeSlots       metric.Int64ObservableGauge
	treeFreeSlots   metric.Int64ObservableGauge
	treeCapacity    metric.Int64ObservableGauge
	treeHibernated  metric.Int64ObservableGauge
	treeRelocations metric.Int64ObservableCounter
	treeRotations   metric.Int64ObservableCounter
}

// NewTreeMetrics creates the tree instruments from the given meter.
func NewTreeMetrics(mt metric.Meter) (*TreeMetrics, error) {
	b := &metricBuilder{meter: mt}

	tm := &TreeMetrics{
		meter:         mt,
		opsTotal:      b.counter(metricOpsTotal, "Tree operations by kind and outcome", "{operation}"),
		phaseDuration: b.histogram(metricPhaseDuration, "Duration of whole-tree phases", "s", phaseBucketBoundaries...),
		failuresTotal: b.counter(metricFailuresTotal, "Failed whole-tree phases", "{failure}"),

		treeLen:         b.gauge(metricTreeLen, "Elements in the tree", "{element}"),
		treeSlots:       b.gauge(metricTreeSlots, "Allocator slots, occupied or free", "{slot}"),
		treeFreeSlots:   b.gauge(metricTreeFreeSlots, "Allocator slots waiting for reuse", "{slot}"),
		treeCapacity:    b.gauge(metricTreeCapacity, "Allocator slots available without relocation", "{slot}"),
		treeHibernated:  b.gauge(metricTreeHibernated, "1 while the allocator is compressed", "1"),
		treeRelocations: b.observableCounter(metricTreeRelocation, "Allocator storage relocations", "{relocation}"),
		treeRotations:   b.observableCounter(metricTreeRotations, "Rebalancing rotations", "{rotation}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return tm, nil
}

// RecordOps adds n operations of the given kind and outcome.
func (tm *TreeMetrics) RecordOps(ctx context.Context, op, outcome string, n int64) {
	if n == 0 {
		return
	}

	tm.opsTotal.Add(ctx, n, metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrOutcome, outcome),
	))
}

// RecordPhase records the duration of a whole-tree phase such as validation
// or hibernation, counting it as a failure when err is not nil.
func (tm *TreeMetrics) RecordPhase(ctx context.Context, phase string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String(attrPhase, phase))

	tm.phaseDuration.Record(ctx, duration.Seconds(), attrs)

	if err != nil {
		tm.failuresTotal.Add(ctx, 1, attrs)
	}
}

// ObserveTrees reports the stats returned by source on every collection, one
// series per tree labelled by its position. source is called from the
// collector goroutine and must be safe for concurrent use.
func (tm *TreeMetrics) ObserveTrees(source func() []rbtree.Stats) (metric.Registration, error) {
	reg, err := tm.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		for idx, stats := range source() {
			attrs := metric.WithAttributes(attribute.String(attrTree, strconv.Itoa(idx)))

			obs.ObserveInt64(tm.treeLen, int64(stats.Len), attrs)
			obs.ObserveInt64(tm.treeSlots, int64(stats.Slots), attrs)
			obs.ObserveInt64(tm.treeFreeSlots, int64(stats.FreeSlots), attrs)
			obs.ObserveInt64(tm.treeCapacity, int64(stats.Capacity), attrs)
			obs.ObserveInt64(tm.treeRelocations, int64(stats.Relocations), attrs)
			obs.ObserveInt64(tm.treeRotations, int64(stats.Rotations), attrs)

			hibernated := int64(0)
			if stats.Hibernated {
				hibernated = 1
			}

			obs.ObserveInt64(tm.treeHibernated, hibernated, attrs)
		}

		return nil
	},
		tm.treeLen, tm.treeSlots, tm.treeFreeSlots, tm.treeCapacity,
		tm.treeHibernated, tm.treeRelocations, tm.treeRotations,
	)
	if err != nil {
		return nil, fmt.Errorf("register tree stats callback: %w", err)
	}

	return reg, nil
}
