package soak

import (
	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

// Counts tallies operations by outcome.
type Counts struct {
	Inserts      int64 `json:"inserts"      yaml:"inserts"`
	Duplicates   int64 `json:"duplicates"   yaml:"duplicates"`
	Deletes      int64 `json:"deletes"      yaml:"deletes"`
	Misses       int64 `json:"misses"       yaml:"misses"`
	Hits         int64 `json:"hits"         yaml:"hits"`
	GetMisses    int64 `json:"get_misses"   yaml:"get_misses"`
	Validations  int64 `json:"validations"  yaml:"validations"`
	Hibernations int64 `json:"hibernations" yaml:"hibernations"`
}

// Ops returns the number of point operations.
func (c Counts) Ops() int64 {
	return c.Inserts + c.Duplicates + c.Deletes + c.Misses + c.Hits + c.GetMisses
}

func (c *Counts) add(other Counts) {
	c.Inserts += other.Inserts
	c.Duplicates += other.Duplicates
	c.Deletes += other.Deletes
	c.Misses += other.Misses
	c.Hits += other.Hits
	c.GetMisses += other.GetMisses
	c.Validations += other.Validations
	c.Hibernations += other.Hibernations
}

// TreeReport describes the run of one tree.
type TreeReport struct {
	Tree        int    `json:"tree"        yaml:"tree"`
	Seed        int64  `json:"seed"        yaml:"seed"`
	Counts      Counts `json:"counts"      yaml:"counts"`
	PeakLen     int    `json:"peak_len"    yaml:"peak_len"`
	FinalLen    int    `json:"final_len"   yaml:"final_len"`
	Height      int    `json:"height"      yaml:"height"`
	Slots       int    `json:"slots"       yaml:"slots"`
	Relocations int    `json:"relocations" yaml:"relocations"`
	Rotations   int    `json:"rotations"   yaml:"rotations"`
	Drained     bool   `json:"drained"     yaml:"drained"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (tr *TreeReport) capture(stats rbtree.Stats, height int) {
	tr.FinalLen = stats.Len
	tr.Height = height
	tr.Slots = stats.Slots
	tr.Relocations = stats.Relocations
	tr.Rotations = stats.Rotations
}

// Report is the outcome of a soak run.
type Report struct {
	Seed            int64        `json:"seed"             yaml:"seed"`
	Compression     string       `json:"compression"      yaml:"compression"`
	Trees           []TreeReport `json:"trees"            yaml:"trees"`
	Totals          Counts       `json:"totals"           yaml:"totals"`
	DurationSeconds float64      `json:"duration_seconds" yaml:"duration_seconds"`
	OpsPerSecond    float64      `json:"ops_per_second"   yaml:"ops_per_second"`
	HeapPeakBytes   uint64       `json:"heap_peak_bytes"  yaml:"heap_peak_bytes"`
	Passed          bool         `json:"passed"           yaml:"passed"`
}

// HeapPeak returns the sampled heap peak in human readable form.
func (r *Report) HeapPeak() string {
	return humanize.IBytes(r.HeapPeakBytes)
}
