// bench-hibernation measures heap memory before and after Hibernate() calls
// on a set of large trees, once per codec.
//
// Usage:
//
//	go run ./scripts/bench-hibernation --trees 8 --size 1000000 \
//	  --delete-ratio 0.3 --profile-dir docs/profiles/hibernation
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

type heapSnapshot struct {
	label     string
	heapInUse uint64
	heapSys   uint64
	heapIdle  uint64
}

func main() {
	treeCount := flag.Int("trees", 4, "Number of trees")
	size := flag.Int("size", 500_000, "Keys inserted into every tree")
	deleteRatio := flag.Float64("delete-ratio", 0.25, "Share of keys deleted before hibernating")
	seed := flag.Int64("seed", 1, "Seed of the key permutation")
	profileDir := flag.String("profile-dir", "", "Directory to write heap profiles (optional)")

	flag.Parse()

	if *profileDir != "" {
		if err := os.MkdirAll(*profileDir, 0o755); err != nil {
			log.Fatalf("mkdir profile-dir: %v", err)
		}
	}

	var snapshots []heapSnapshot

	takeSnapshot := func(label string) {
		runtime.GC()
		runtime.GC()

		var m runtime.MemStats

		runtime.ReadMemStats(&m)

		snapshots = append(snapshots, heapSnapshot{
			label:     label,
			heapInUse: m.HeapInuse,
			heapSys:   m.HeapSys,
			heapIdle:  m.HeapIdle,
		})

		log.Printf("  [heap] %-32s inuse=%7.1f MB  sys=%7.1f MB  idle=%7.1f MB",
			label, float64(m.HeapInuse)/1e6, float64(m.HeapSys)/1e6, float64(m.HeapIdle)/1e6)
	}

	writeHeapProfile := func(name string) {
		if *profileDir == "" {
			return
		}

		runtime.GC()

		path := filepath.Join(*profileDir, name)

		f, ferr := os.Create(path)
		if ferr != nil {
			log.Printf("warning: create heap profile %s: %v", path, ferr)

			return
		}
		defer f.Close()

		if perr := pprof.WriteHeapProfile(f); perr != nil {
			log.Printf("warning: write heap profile %s: %v", path, perr)
		}
	}

	for _, codec := range []rbtree.Compression{rbtree.CompressionLZ4, rbtree.CompressionZstd} {
		takeSnapshot(codec.String() + "_before_build")

		trees := buildTrees(*treeCount, *size, *deleteRatio, *seed, codec)
		log.Printf("built %d trees with codec %s", len(trees), codec)

		takeSnapshot(codec.String() + "_before_hibernate")
		writeHeapProfile(fmt.Sprintf("heap_%s_before_hibernate.prof", codec))

		for _, tree := range trees {
			tree.Hibernate()
		}

		takeSnapshot(codec.String() + "_after_hibernate")
		writeHeapProfile(fmt.Sprintf("heap_%s_after_hibernate.prof", codec))

		for _, tree := range trees {
			tree.Boot()

			if err := tree.Validate(); err != nil {
				log.Fatalf("validate after boot: %v", err)
			}
		}

		takeSnapshot(codec.String() + "_after_boot")

		runtime.KeepAlive(trees)
	}

	fmt.Println()
	fmt.Println("=== Heap Memory Timeline ===")
	fmt.Printf("%-36s %10s %10s %10s\n", "Phase", "InUse(MB)", "Sys(MB)", "Idle(MB)")
	fmt.Println("------------------------------------+----------+----------+----------")

	for _, s := range snapshots {
		fmt.Printf("%-36s %10.1f %10.1f %10.1f\n",
			s.label, float64(s.heapInUse)/1e6, float64(s.heapSys)/1e6, float64(s.heapIdle)/1e6)
	}

	fmt.Println()
	fmt.Println("=== Hibernation Memory Deltas ===")

	for i := 0; i+1 < len(snapshots); i++ {
		curr := snapshots[i]
		next := snapshots[i+1]

		if strings.HasSuffix(curr.label, "before_hibernate") && strings.HasSuffix(next.label, "after_hibernate") {
			delta := float64(curr.heapInUse) - float64(next.heapInUse)
			pct := (delta / float64(curr.heapInUse)) * 100
			fmt.Printf("  %s -> %s: %.1f MB freed (%.1f%%)\n", curr.label, next.label, delta/1e6, pct)
		}
	}
}

func buildTrees(count, size int, deleteRatio float64, seed int64, codec rbtree.Compression) []*rbtree.RBTree[int, int] {
	trees := make([]*rbtree.RBTree[int, int], count)

	for idx := range trees {
		rng := rand.New(rand.NewSource(seed + int64(idx)))
		tree := rbtree.WithCapacity[int, int](size, rbtree.WithCompression(codec))

		keys := rng.Perm(size)
		for _, key := range keys {
			if err := tree.Insert(key, key); err != nil {
				log.Fatalf("insert %d: %v", key, err)
			}
		}

		for _, key := range keys[:int(float64(size)*deleteRatio)] {
			if _, err := tree.Delete(key); err != nil {
				log.Fatalf("delete %d: %v", key, err)
			}
		}

		trees[idx] = tree
	}

	return trees
}
