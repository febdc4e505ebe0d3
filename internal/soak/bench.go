package soak

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

// ErrInvalidBenchSize is returned by Bench for a non-positive number of keys.
var ErrInvalidBenchSize = errors.New("bench size must be positive")

// BenchResult is the timing of one phase of a benchmark.
type BenchResult struct {
	Phase       string  `json:"phase"         yaml:"phase"`
	Ops         int     `json:"ops"           yaml:"ops"`
	NsPerOp     float64 `json:"ns_per_op"     yaml:"ns_per_op"`
	Relocations int     `json:"relocations"   yaml:"relocations"`
	Rotations   int     `json:"rotations"     yaml:"rotations"`
}

// Bench times n random inserts, n lookups of present keys, n lookups of
// absent keys and n deletes on a single tree. With reserve the allocator is
// sized for n nodes up front.
func Bench(ctx context.Context, n int, seed int64, reserve bool) ([]BenchResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBenchSize, n)
	}

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible workloads need a seeded PRNG.

	// Even keys are inserted, odd keys stay absent.
	keys := rng.Perm(n)
	for idx := range keys {
		keys[idx] *= 2
	}

	var opts []rbtree.Option
	if reserve {
		opts = append(opts, rbtree.WithReserve(n))
	}

	tree := rbtree.New[int, int](opts...)
	results := make([]BenchResult, 0, 4)

	phase := func(name string, op func(key int) error) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bench interrupted: %w", err)
		}

		before := tree.Stats()
		start := time.Now()

		for _, key := range keys {
			if err := op(key); err != nil {
				return fmt.Errorf("%s %d: %w", name, key, err)
			}
		}

		elapsed := time.Since(start)
		after := tree.Stats()

		results = append(results, BenchResult{
			Phase:       name,
			Ops:         n,
			NsPerOp:     float64(elapsed.Nanoseconds()) / float64(n),
			Relocations: after.Relocations - before.Relocations,
			Rotations:   after.Rotations - before.Rotations,
		})

		return nil
	}

	steps := []struct {
		name string
		op   func(key int) error
	}{
		{opInsert, func(key int) error { return tree.Insert(key, key) }},
		{"get_hit", func(key int) error {
			if !tree.Contains(key) {
				return ErrMismatch
			}

			return nil
		}},
		{"get_miss", func(key int) error {
			if tree.Contains(key + 1) {
				return ErrMismatch
			}

			return nil
		}},
		{opDelete, func(key int) error {
			_, err := tree.Delete(key)

			return err
		}},
	}

	for _, st := range steps {
		if err := phase(st.name, st.op); err != nil {
			return results, err
		}
	}

	if err := tree.Validate(); err != nil {
		return results, err
	}

	return results, nil
}
