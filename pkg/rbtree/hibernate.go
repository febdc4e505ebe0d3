package rbtree

import (
	"log/slog"
	"sync"
)

// Columns of a hibernated allocator.
const (
	columnParent = iota
	columnLeft
	columnRight
	columnGen
	columnFlags
	columnFree
	hibernatedColumns
)

// Bits of columnFlags.
const (
	flagBlack uint32 = 1 << iota
	flagUsed
)

// hibernatedState keeps the compressed link columns of a hibernated
// allocator. Keys and values are opaque to the codecs and stay resident.
type hibernatedState[K, V any] struct {
	columns    [hibernatedColumns][]byte
	keys       []K
	values     []V
	storageLen int
	freeLen    int
	codec      Compression
}

// Hibernated reports whether the allocator is compressed and unusable until Boot().
func (allocator *Allocator[K, V]) Hibernated() bool {
	return allocator.hibernation != nil
}

// Hibernate compresses the allocated memory.
//
// Nothing happens when the allocator has no slots at all or fewer slots than
// HibernationThreshold.
// Any use of a hibernated allocator panics until Boot() is called.
func (allocator *Allocator[K, V]) Hibernate() {
	if allocator.hibernation != nil {
		panic("cannot hibernate an already hibernated Allocator")
	}

	if size := allocator.Size(); size == 0 || size < allocator.HibernationThreshold {
		return
	}

	storageLen := len(allocator.storage)
	state := &hibernatedState[K, V]{
		keys:       make([]K, storageLen),
		values:     make([]V, storageLen),
		storageLen: storageLen,
		freeLen:    len(allocator.gaps),
		codec:      allocator.Compression,
	}

	buffers := [columnFree][]uint32{}

	for idx := range buffers {
		buffers[idx] = make([]uint32, storageLen)
	}

	// We deinterleave to achieve a better compression ratio.
	for idx := range allocator.storage {
		nd := &allocator.storage[idx]
		state.keys[idx] = nd.key
		state.values[idx] = nd.value
		buffers[columnParent][idx] = nd.parent
		buffers[columnLeft][idx] = nd.left
		buffers[columnRight][idx] = nd.right
		buffers[columnGen][idx] = nd.gen

		if nd.color == black {
			buffers[columnFlags][idx] |= flagBlack
		}

		if nd.used {
			buffers[columnFlags][idx] |= flagUsed
		}
	}

	free := allocator.gaps
	allocator.storage = nil
	allocator.gaps = nil

	wg := &sync.WaitGroup{}
	wg.Add(len(buffers) + 1)

	for idx, buffer := range buffers {
		go func(bufIdx int, buf []uint32) {
			defer wg.Done()

			state.columns[bufIdx] = compressColumn(state.codec, buf)
		}(idx, buffer)
	}

	go func() {
		defer wg.Done()

		state.columns[columnFree] = compressColumn(state.codec, free)
	}()

	wg.Wait()

	allocator.hibernation = state

	compressed := 0
	for _, column := range state.columns {
		compressed += len(column)
	}

	allocator.logger.Debug("rbtree allocator hibernated",
		slog.Int("slots", storageLen-1),
		slog.Int("free", state.freeLen),
		slog.String("codec", state.codec.String()),
		slog.Int("compressed_bytes", compressed))
}

// Boot performs the opposite of Hibernate() - decompresses and restores the allocated memory.
func (allocator *Allocator[K, V]) Boot() {
	state := allocator.hibernation
	if state == nil {
		// Not hibernated.
		return
	}

	buffers := [columnFree][]uint32{}
	free := make([]uint32, state.freeLen)

	wg := &sync.WaitGroup{}
	wg.Add(len(buffers) + 1)

	for idx := range buffers {
		go func(bufIdx int) {
			defer wg.Done()

			buffers[bufIdx] = make([]uint32, state.storageLen)
			decompressColumn(state.codec, state.columns[bufIdx], buffers[bufIdx])
		}(idx)
	}

	go func() {
		defer wg.Done()

		decompressColumn(state.codec, state.columns[columnFree], free)
	}()

	wg.Wait()

	capSize := max((state.storageLen*growCapacityNumerator)/growCapacityDenominator, minGrowCapacity)
	storage := make([]node[K, V], state.storageLen, capSize)

	for idx := range storage {
		nd := &storage[idx]
		nd.key = state.keys[idx]
		nd.value = state.values[idx]
		nd.parent = buffers[columnParent][idx]
		nd.left = buffers[columnLeft][idx]
		nd.right = buffers[columnRight][idx]
		nd.gen = buffers[columnGen][idx]
		nd.color = buffers[columnFlags][idx]&flagBlack != 0
		nd.used = buffers[columnFlags][idx]&flagUsed != 0
	}

	allocator.storage = storage
	allocator.gaps = free
	allocator.hibernation = nil

	allocator.logger.Debug("rbtree allocator booted", slog.Int("slots", state.storageLen-1))
}
