package soak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

const (
	// publishEvery is how many operations pass between stats snapshots.
	publishEvery = 1024

	opInsert = "insert"
	opDelete = "delete"
	opGet    = "get"

	outcomeOK        = "ok"
	outcomeDuplicate = "duplicate"
	outcomeNotFound  = "not_found"

	phaseValidate  = "validate"
	phaseHibernate = "hibernate"
	phaseDrain     = "drain"
)

// worker owns one tree and its oracle for the whole run.
type worker struct {
	runner *Runner
	idx    int
	tree   *rbtree.RBTree[int, int]
	oracle map[int]int
	rng    *rand.Rand
	logger *slog.Logger

	report   TreeReport
	recorded Counts
	progress rate.Sometimes
}

func newWorker(runner *Runner, idx int) *worker {
	seed := runner.workload.Seed + int64(idx)
	logger := runner.logger.With(slog.Int("tree", idx))

	tree := rbtree.New[int, int](
		rbtree.WithReserve(runner.workload.Reserve),
		rbtree.WithLogger(logger),
		rbtree.WithCompression(runner.codec),
		rbtree.WithHibernationThreshold(runner.workload.HibernationThreshold),
	)

	return &worker{
		runner:   runner,
		idx:      idx,
		tree:     tree,
		oracle:   make(map[int]int),
		rng:      rand.New(rand.NewSource(seed)), //nolint:gosec // reproducible workloads need a seeded PRNG.
		logger:   logger,
		report:   TreeReport{Tree: idx, Seed: seed},
		progress: rate.Sometimes{Interval: time.Second},
	}
}

func (w *worker) run(ctx context.Context) error {
	ctx, span := w.runner.tracer.Start(ctx, "soak.tree", trace.WithAttributes(
		attribute.Int("soak.tree", w.idx),
		attribute.Int64("soak.seed", w.report.Seed),
	))
	defer span.End()

	err := w.loop(ctx)
	if err == nil {
		err = w.drain(ctx)
	} else {
		w.report.capture(w.tree.Stats(), w.tree.Height())
	}

	w.flushMetrics(ctx)
	w.publish()

	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("tree %d: %w", w.idx, err)
	}

	return nil
}

func (w *worker) loop(ctx context.Context) error {
	workload := &w.runner.workload

	for step := 1; step <= workload.Operations; step++ {
		if w.runner.limiter != nil {
			if err := w.runner.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("wait for rate limiter: %w", err)
			}
		} else if step%publishEvery == 0 && ctx.Err() != nil {
			return fmt.Errorf("soak interrupted: %w", ctx.Err())
		}

		if err := w.step(workload.KeySpace, workload.InsertRatio, workload.DeleteRatio); err != nil {
			return fmt.Errorf("operation %d: %w", step, err)
		}

		w.report.PeakLen = max(w.report.PeakLen, w.tree.Len())

		if workload.ValidateEvery > 0 && step%workload.ValidateEvery == 0 {
			if err := w.validate(ctx); err != nil {
				return fmt.Errorf("operation %d: %w", step, err)
			}
		}

		if workload.HibernateEvery > 0 && step%workload.HibernateEvery == 0 {
			w.hibernate(ctx)
		}

		if step%publishEvery == 0 {
			w.publish()
			w.flushMetrics(ctx)
			w.progress.Do(func() {
				w.runner.sampleHeap()
				w.logger.InfoContext(ctx, "soak progress",
					slog.Int("step", step),
					slog.Int("len", w.tree.Len()),
					slog.Int64("ops", w.report.Counts.Ops()))
			})
		}
	}

	return w.validate(ctx)
}

// step performs one random operation and checks it against the oracle.
func (w *worker) step(keySpace int, insertRatio, deleteRatio float64) error {
	key := w.rng.Intn(keySpace)
	roll := w.rng.Float64()

	switch {
	case roll < insertRatio:
		value := w.rng.Int()
		_, exists := w.oracle[key]
		err := w.tree.Insert(key, value)

		switch {
		case exists && errors.Is(err, rbtree.ErrDuplicateKey):
			w.report.Counts.Duplicates++
		case !exists && err == nil:
			w.oracle[key] = value
			w.report.Counts.Inserts++
		default:
			return fmt.Errorf("%w: insert %d returned %v, key present %t", ErrMismatch, key, err, exists)
		}
	case roll < insertRatio+deleteRatio:
		want, exists := w.oracle[key]
		got, err := w.tree.Delete(key)

		switch {
		case exists && err == nil && got == want:
			delete(w.oracle, key)
			w.report.Counts.Deletes++
		case !exists && errors.Is(err, rbtree.ErrNotFound):
			w.report.Counts.Misses++
		default:
			return fmt.Errorf("%w: delete %d returned (%d, %v), want (%d, present %t)",
				ErrMismatch, key, got, err, want, exists)
		}
	default:
		want, exists := w.oracle[key]
		got, found := w.tree.Get(key)

		if found != exists || got != want {
			return fmt.Errorf("%w: get %d returned (%d, %t), want (%d, %t)",
				ErrMismatch, key, got, found, want, exists)
		}

		if found {
			w.report.Counts.Hits++
		} else {
			w.report.Counts.GetMisses++
		}
	}

	return nil
}

// validate checks the red-black invariants and compares the key listing
// with the oracle.
func (w *worker) validate(ctx context.Context) error {
	start := time.Now()
	err := w.tree.Validate()

	if err == nil {
		want := slices.Sorted(maps.Keys(w.oracle))
		if diff := keysDiff(want, w.tree.Keys()); diff != "" {
			err = fmt.Errorf("%w: key listings differ:\n%s", ErrMismatch, diff)
		}
	}

	w.report.Counts.Validations++

	if w.runner.metrics != nil {
		w.runner.metrics.RecordPhase(ctx, phaseValidate, time.Since(start), err)
	}

	return err
}

// hibernate compresses the allocator and immediately boots it again.
func (w *worker) hibernate(ctx context.Context) {
	start := time.Now()

	w.tree.Hibernate()

	if w.tree.Allocator().Hibernated() {
		w.publish()
		w.report.Counts.Hibernations++
	}

	w.tree.Boot()

	if w.runner.metrics != nil {
		w.runner.metrics.RecordPhase(ctx, phaseHibernate, time.Since(start), nil)
	}
}

// drain deletes every remaining key in random order and checks that the
// allocator is left with free slots only.
func (w *worker) drain(ctx context.Context) error {
	w.report.capture(w.tree.Stats(), w.tree.Height())

	start := time.Now()
	keys := slices.Sorted(maps.Keys(w.oracle))
	w.rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	var err error

	for _, key := range keys {
		got, delErr := w.tree.Delete(key)
		if delErr != nil || got != w.oracle[key] {
			err = fmt.Errorf("%w: drain delete %d returned (%d, %v)", ErrMismatch, key, got, delErr)

			break
		}

		delete(w.oracle, key)
		w.report.Counts.Deletes++
	}

	alloc := w.tree.Allocator()

	if err == nil && (!w.tree.IsEmpty() || alloc.Used() != 0 || alloc.Free() != alloc.Size()) {
		err = fmt.Errorf("%w: len %d, used %d, free %d of %d",
			ErrLeak, w.tree.Len(), alloc.Used(), alloc.Free(), alloc.Size())
	}

	if err == nil {
		err = w.tree.Validate()
	}

	w.report.Drained = err == nil

	if w.runner.metrics != nil {
		w.runner.metrics.RecordPhase(ctx, phaseDrain, time.Since(start), err)
	}

	return err
}

func (w *worker) publish() {
	w.runner.publish(w.idx, w.tree.Stats())
}

// flushMetrics reports the counts accumulated since the previous flush.
func (w *worker) flushMetrics(ctx context.Context) {
	metrics := w.runner.metrics
	if metrics == nil {
		return
	}

	current := w.report.Counts
	last := w.recorded

	metrics.RecordOps(ctx, opInsert, outcomeOK, current.Inserts-last.Inserts)
	metrics.RecordOps(ctx, opInsert, outcomeDuplicate, current.Duplicates-last.Duplicates)
	metrics.RecordOps(ctx, opDelete, outcomeOK, current.Deletes-last.Deletes)
	metrics.RecordOps(ctx, opDelete, outcomeNotFound, current.Misses-last.Misses)
	metrics.RecordOps(ctx, opGet, outcomeOK, current.Hits-last.Hits)
	metrics.RecordOps(ctx, opGet, outcomeNotFound, current.GetMisses-last.GetMisses)

	w.recorded = current
}
