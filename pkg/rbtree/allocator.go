package rbtree

import (
	"log/slog"
	"math"
	"slices"
)

// growCapacityNumerator and growCapacityDenominator define the 3/2 growth factor for storage.
const (
	growCapacityNumerator   = 3
	growCapacityDenominator = 2
	minGrowCapacity         = 16
)

// maxNodeIndex is the last usable handle; [math.MaxUint32] is reserved for NegativeLimit.
const maxNodeIndex = math.MaxUint32 - 1

// Allocator is the allocator for nodes in a RBTree.
//
// Nodes live in one flat slice and refer to each other by index. Slot #0 is
// the shared black sentinel which stands for "no node"; it is never handed
// out and never freed. Vacated slots are recycled through a LIFO stack.
// Growing the slice moves the nodes in memory but never changes the meaning
// of an index.
type Allocator[K, V any] struct {
	storage []node[K, V]
	gaps    []uint32
	logger  *slog.Logger

	// HibernationThreshold is the minimal number of slots for Hibernate() to compress anything.
	HibernationThreshold int
	// Compression is the codec used by Hibernate().
	Compression Compression

	relocations int
	hibernation *hibernatedState[K, V]
}

// NewAllocator creates a new allocator for RBTree's nodes.
func NewAllocator[K, V any]() *Allocator[K, V] {
	storage := make([]node[K, V], 1, minGrowCapacity)
	storage[0].color = black

	return &Allocator[K, V]{
		storage: storage,
		gaps:    []uint32{},
		logger:  slog.New(slog.DiscardHandler),
	}
}

// SetLogger sets the logger used to report relocations and hibernation.
func (allocator *Allocator[K, V]) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	allocator.logger = logger
}

// Size returns the number of node slots, occupied or free, excluding the sentinel.
func (allocator *Allocator[K, V]) Size() int {
	if allocator.storage == nil {
		return allocator.hibernation.storageLen - 1
	}

	return len(allocator.storage) - 1
}

// Used returns the number of nodes contained in the allocator.
func (allocator *Allocator[K, V]) Used() int {
	allocator.mustBeAwake()

	return len(allocator.storage) - 1 - len(allocator.gaps)
}

// Free returns the number of vacated slots waiting to be reused.
func (allocator *Allocator[K, V]) Free() int {
	allocator.mustBeAwake()

	return len(allocator.gaps)
}

// Capacity returns how many nodes fit into the backing storage without relocation.
func (allocator *Allocator[K, V]) Capacity() int {
	allocator.mustBeAwake()

	return cap(allocator.storage) - 1
}

// Relocations returns how many times malloc() had to move the backing storage.
func (allocator *Allocator[K, V]) Relocations() int {
	return allocator.relocations
}

// Reserve makes room for n more nodes so that the next n allocations do not
// relocate the storage. Occupied slots are not touched.
func (allocator *Allocator[K, V]) Reserve(n int) {
	allocator.mustBeAwake()

	if n <= 0 {
		return
	}

	fresh := n - len(allocator.gaps)
	if fresh > 0 {
		required := len(allocator.storage) + fresh
		if required-1 > maxNodeIndex {
			panic("cannot reserve more nodes than uint32 handles allow")
		}

		if cap(allocator.storage) < required {
			storage := make([]node[K, V], len(allocator.storage), required)
			copy(storage, allocator.storage)
			allocator.storage = storage
		}
	}

	if cap(allocator.gaps) < n {
		allocator.gaps = slices.Grow(allocator.gaps, n-len(allocator.gaps))
	}
}

func (allocator *Allocator[K, V]) mustBeAwake() {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}
}

func (allocator *Allocator[K, V]) malloc() uint32 {
	allocator.mustBeAwake()

	if top := len(allocator.gaps); top > 0 {
		nodeIdx := allocator.gaps[top-1]
		allocator.gaps = allocator.gaps[:top-1]

		slot := &allocator.storage[nodeIdx]
		doAssert(!slot.used)
		slot.used = true

		return nodeIdx
	}

	nodeLen := len(allocator.storage)
	if nodeLen > maxNodeIndex {
		panic("the size of my RBTree allocator has reached the maximum value for uint32, sorry")
	}

	if nodeLen == cap(allocator.storage) {
		allocator.grow()
	}

	allocator.storage = append(allocator.storage, node[K, V]{used: true})

	return uint32(nodeLen)
}

// grow relocates the storage into a slice 3/2 times larger.
func (allocator *Allocator[K, V]) grow() {
	oldCap := cap(allocator.storage)

	newCap := (oldCap * growCapacityNumerator) / growCapacityDenominator
	if newCap < minGrowCapacity {
		newCap = minGrowCapacity
	}

	if newCap-1 > maxNodeIndex {
		newCap = maxNodeIndex + 1
	}

	storage := make([]node[K, V], len(allocator.storage), newCap)
	copy(storage, allocator.storage)
	allocator.storage = storage
	allocator.relocations++

	allocator.logger.Debug("rbtree allocator relocated",
		slog.Int("from", oldCap), slog.Int("to", newCap), slog.Int("used", allocator.Used()))
}

func (allocator *Allocator[K, V]) free(nodeIdx uint32) {
	allocator.mustBeAwake()

	if nodeIdx == 0 {
		panic("node #0 is special and cannot be deallocated")
	}

	doAssert(int(nodeIdx) < len(allocator.storage))

	slot := &allocator.storage[nodeIdx]
	doAssert(slot.used)

	*slot = node[K, V]{gen: slot.gen + 1}
	allocator.gaps = append(allocator.gaps, nodeIdx)
}
