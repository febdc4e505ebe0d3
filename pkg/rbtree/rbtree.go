// Package rbtree provides an ordered key/value container backed by a
// red-black tree whose nodes live in an index-addressed Allocator instead of
// individually allocated structs.
package rbtree

import (
	"cmp"
	"errors"
	"log/slog"
)

// Sentinel errors returned by RBTree operations.
var (
	// ErrNotFound is returned when the requested key is not in the tree.
	ErrNotFound = errors.New("key not found")
	// ErrDuplicateKey is returned by Insert when the key is already in the tree.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvariant wraps every violation reported by Validate.
	ErrInvariant = errors.New("red-black invariant violated")
)

// Item is a key/value pair stored in the tree.
type Item[K, V any] struct {
	Key   K
	Value V
}

// Option configures a RBTree.
type Option func(*options)

type options struct {
	logger               *slog.Logger
	reserve              int
	hibernationThreshold int
	compression          Compression
}

// WithReserve pre-sizes the allocator for n nodes.
func WithReserve(n int) Option {
	return func(o *options) {
		o.reserve = n
	}
}

// WithLogger sets the logger for allocator events. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHibernationThreshold sets the minimal allocator size for hibernation.
func WithHibernationThreshold(slots int) Option {
	return func(o *options) {
		o.hibernationThreshold = slots
	}
}

// WithCompression selects the hibernation codec.
func WithCompression(codec Compression) Option {
	return func(o *options) {
		o.compression = codec
	}
}

// RBTree is a red-black tree with an API similar to C++ STL's.
//
// The tree exclusively owns its Allocator. It is not safe for concurrent
// use; callers sharing a tree between goroutines must lock around it.
type RBTree[K, V any] struct {
	// Nodes allocator.
	allocator *Allocator[K, V]

	compare func(K, K) int
	opts    options

	// Root of the tree.
	root uint32

	// The minimum and maximum nodes under the tree.
	minNode, maxNode uint32

	// Number of nodes under root, including the root.
	count int

	rotations int
}

// NewRBTree creates a new red-black tree ordered by compare, which must
// return a negative number, zero or a positive number like [cmp.Compare].
func NewRBTree[K, V any](compare func(K, K) int, opts ...Option) *RBTree[K, V] {
	var cfg options

	for _, opt := range opts {
		opt(&cfg)
	}

	allocator := NewAllocator[K, V]()
	allocator.SetLogger(cfg.logger)
	allocator.HibernationThreshold = cfg.hibernationThreshold
	allocator.Compression = cfg.compression
	allocator.Reserve(cfg.reserve)

	return &RBTree[K, V]{allocator: allocator, compare: compare, opts: cfg}
}

// New creates an empty tree for naturally ordered keys.
func New[K cmp.Ordered, V any](opts ...Option) *RBTree[K, V] {
	return NewRBTree[K, V](cmp.Compare[K], opts...)
}

// WithCapacity creates an empty tree for naturally ordered keys that holds
// n nodes without relocating its storage.
func WithCapacity[K cmp.Ordered, V any](n int, opts ...Option) *RBTree[K, V] {
	return New[K, V](append(opts, WithReserve(n))...)
}

func (tree *RBTree[K, V]) storage() []node[K, V] {
	tree.allocator.mustBeAwake()

	return tree.allocator.storage
}

// Allocator returns the bound nodes allocator.
func (tree *RBTree[K, V]) Allocator() *Allocator[K, V] {
	return tree.allocator
}

// Len returns the number of elements in the tree.
func (tree *RBTree[K, V]) Len() int {
	return tree.count
}

// IsEmpty reports whether the tree holds no elements.
func (tree *RBTree[K, V]) IsEmpty() bool {
	return tree.count == 0
}

// Reserve makes room for n more elements without relocation.
func (tree *RBTree[K, V]) Reserve(n int) {
	tree.allocator.Reserve(n)
}

// Stats is a snapshot of the tree and allocator counters.
type Stats struct {
	Len         int
	Slots       int
	FreeSlots   int
	Capacity    int
	Relocations int
	Rotations   int
	Hibernated  bool
}

// Stats returns the current counters. Slot counters are zero while hibernated.
func (tree *RBTree[K, V]) Stats() Stats {
	stats := Stats{
		Len:         tree.count,
		Slots:       tree.allocator.Size(),
		Relocations: tree.allocator.Relocations(),
		Rotations:   tree.rotations,
		Hibernated:  tree.allocator.Hibernated(),
	}

	if !stats.Hibernated {
		stats.FreeSlots = tree.allocator.Free()
		stats.Capacity = tree.allocator.Capacity()
	}

	return stats
}

// Hibernate compresses the allocator, see Allocator.Hibernate.
func (tree *RBTree[K, V]) Hibernate() {
	tree.allocator.Hibernate()
}

// Boot restores a hibernated allocator, see Allocator.Boot.
func (tree *RBTree[K, V]) Boot() {
	tree.allocator.Boot()
}

// CloneDeep performs a deep copy of the tree - the nodes are created from scratch
// in a new compact allocator.
func (tree *RBTree[K, V]) CloneDeep() *RBTree[K, V] {
	cfg := tree.opts
	cfg.reserve = tree.count

	allocator := NewAllocator[K, V]()
	allocator.SetLogger(cfg.logger)
	allocator.HibernationThreshold = cfg.hibernationThreshold
	allocator.Compression = cfg.compression
	allocator.Reserve(cfg.reserve)

	clone := &RBTree[K, V]{
		allocator: allocator,
		compare:   tree.compare,
		opts:      cfg,
		count:     tree.count,
	}

	nodeMap := map[uint32]uint32{0: 0}
	originStorage := tree.storage()

	for nodeIdx := tree.minNode; nodeIdx != 0; nodeIdx = doNext(nodeIdx, originStorage) {
		newNode := allocator.malloc()
		cloneNode := &allocator.storage[newNode]
		cloneNode.key = originStorage[nodeIdx].key
		cloneNode.value = originStorage[nodeIdx].value
		cloneNode.color = originStorage[nodeIdx].color
		nodeMap[nodeIdx] = newNode
	}

	cloneStorage := allocator.storage

	for nodeIdx := tree.minNode; nodeIdx != 0; nodeIdx = doNext(nodeIdx, originStorage) {
		cloneNode := &cloneStorage[nodeMap[nodeIdx]]
		originNode := originStorage[nodeIdx]
		cloneNode.left = nodeMap[originNode.left]
		cloneNode.right = nodeMap[originNode.right]
		cloneNode.parent = nodeMap[originNode.parent]
	}

	clone.root = nodeMap[tree.root]
	clone.minNode = nodeMap[tree.minNode]
	clone.maxNode = nodeMap[tree.maxNode]

	return clone
}

// Erase removes all the nodes from the tree.
func (tree *RBTree[K, V]) Erase() {
	alloc := tree.storage()
	nodes := make([]uint32, 0, tree.count)

	for nodeIdx := tree.minNode; nodeIdx != 0; nodeIdx = doNext(nodeIdx, alloc) {
		nodes = append(nodes, nodeIdx)
	}

	for _, nd := range nodes {
		tree.allocator.free(nd)
	}

	tree.root = 0
	tree.minNode = 0
	tree.maxNode = 0
	tree.count = 0
}

// Get returns the value stored under key.
func (tree *RBTree[K, V]) Get(key K) (V, bool) {
	nodeIdx := tree.find(key)
	if nodeIdx == 0 {
		var zero V

		return zero, false
	}

	return tree.storage()[nodeIdx].value, true
}

// Contains reports whether key is in the tree.
func (tree *RBTree[K, V]) Contains(key K) bool {
	return tree.find(key) != 0
}

// Insert adds key with value. If the key is already in the tree, nothing
// changes and ErrDuplicateKey is returned.
func (tree *RBTree[K, V]) Insert(key K, value V) error {
	nodeIdx, inserted := tree.doInsert(key, value)
	if !inserted {
		return ErrDuplicateKey
	}

	tree.insertFixup(nodeIdx)

	return nil
}

// Set stores value under key, overwriting the value of an existing key in
// place. It returns the previous value and whether it was replaced.
func (tree *RBTree[K, V]) Set(key K, value V) (previous V, replaced bool) {
	nodeIdx, inserted := tree.doInsert(key, value)
	if !inserted {
		slot := &tree.storage()[nodeIdx]
		previous, slot.value = slot.value, value

		return previous, true
	}

	tree.insertFixup(nodeIdx)

	return previous, false
}

// Delete removes key and returns its value, or ErrNotFound without touching
// the tree.
//
// Deleting a node with two children moves its in-order successor's key and
// value into it and frees the successor's slot instead, so iterators that
// pointed at the successor become stale.
func (tree *RBTree[K, V]) Delete(key K) (V, error) {
	nodeIdx := tree.find(key)
	if nodeIdx == 0 {
		var zero V

		return zero, ErrNotFound
	}

	return tree.doDelete(nodeIdx), nil
}

// DeleteWithIterator deletes the current item and returns its value.
//
// REQUIRES: !iter.Limit() && !iter.NegativeLimit().
func (tree *RBTree[K, V]) DeleteWithIterator(iter Iterator[K, V]) V {
	doAssert(iter.tree == tree && !iter.Limit() && !iter.NegativeLimit())
	iter.check()

	return tree.doDelete(iter.node)
}

func doAssert(condition bool) {
	if !condition {
		panic("rbtree internal assertion failed")
	}
}

const (
	red   = false
	black = true
)

type node[K, V any] struct {
	key                 K
	value               V
	parent, left, right uint32
	// gen is bumped every time the slot is freed.
	gen   uint32
	color bool // Black or red.
	used  bool
}

// Internal node attribute accessors.
func getColor[K, V any](nodeIdx uint32, allocator []node[K, V]) bool {
	if nodeIdx == 0 {
		return black
	}

	return allocator[nodeIdx].color
}

func isLeftChild[K, V any](nodeIdx uint32, allocator []node[K, V]) bool {
	return nodeIdx == allocator[allocator[nodeIdx].parent].left
}

func isRightChild[K, V any](nodeIdx uint32, allocator []node[K, V]) bool {
	return nodeIdx == allocator[allocator[nodeIdx].parent].right
}

func sibling[K, V any](nodeIdx uint32, allocator []node[K, V]) uint32 {
	doAssert(allocator[nodeIdx].parent != 0)

	if isLeftChild(nodeIdx, allocator) {
		return allocator[allocator[nodeIdx].parent].right
	}

	return allocator[allocator[nodeIdx].parent].left
}

// Private methods.

func (tree *RBTree[K, V]) find(key K) uint32 {
	alloc := tree.storage()
	nodeIdx := tree.root

	for nodeIdx != 0 {
		switch comp := tree.compare(key, alloc[nodeIdx].key); {
		case comp == 0:
			return nodeIdx
		case comp < 0:
			nodeIdx = alloc[nodeIdx].left
		default:
			nodeIdx = alloc[nodeIdx].right
		}
	}

	return 0
}

func (tree *RBTree[K, V]) recomputeMinNode() {
	alloc := tree.storage()
	tree.minNode = tree.root

	if tree.minNode != 0 {
		for alloc[tree.minNode].left != 0 {
			tree.minNode = alloc[tree.minNode].left
		}
	}
}

func (tree *RBTree[K, V]) recomputeMaxNode() {
	alloc := tree.storage()
	tree.maxNode = tree.root

	if tree.maxNode != 0 {
		for alloc[tree.maxNode].right != 0 {
			tree.maxNode = alloc[tree.maxNode].right
		}
	}
}

// Try inserting key into the tree. If the key is already there, return the
// existing node and false. Otherwise return a new red leaf and true.
func (tree *RBTree[K, V]) doInsert(key K, value V) (uint32, bool) {
	if tree.root == 0 {
		nodeIdx := tree.allocator.malloc()
		newNode := &tree.storage()[nodeIdx]
		newNode.key = key
		newNode.value = value
		newNode.color = black
		tree.root = nodeIdx
		tree.minNode = nodeIdx
		tree.maxNode = nodeIdx
		tree.count++

		return nodeIdx, true
	}

	parent := tree.root
	storageSlice := tree.storage()

	var goLeft bool

	for {
		comp := tree.compare(key, storageSlice[parent].key)
		if comp == 0 {
			return parent, false
		}

		goLeft = comp < 0

		next := storageSlice[parent].right
		if goLeft {
			next = storageSlice[parent].left
		}

		if next == 0 {
			break
		}

		parent = next
	}

	// malloc may relocate the storage.
	nodeIdx := tree.allocator.malloc()
	storageSlice = tree.storage()

	newNode := &storageSlice[nodeIdx]
	newNode.key = key
	newNode.value = value
	newNode.parent = parent
	newNode.color = red

	if goLeft {
		storageSlice[parent].left = nodeIdx

		if parent == tree.minNode {
			tree.minNode = nodeIdx
		}
	} else {
		storageSlice[parent].right = nodeIdx

		if parent == tree.maxNode {
			tree.maxNode = nodeIdx
		}
	}

	tree.count++

	return nodeIdx, true
}

// insertFixup restores the red-black properties after nodeIdx was attached as a red leaf.
func (tree *RBTree[K, V]) insertFixup(nodeIdx uint32) {
	alloc := tree.storage()

	for {
		parent := alloc[nodeIdx].parent

		// Case 1: N is at the root.
		if parent == 0 {
			alloc[nodeIdx].color = black

			break
		}

		// Case 2: The parent is black, so the tree already
		// satisfies the RB properties.
		if alloc[parent].color == black {
			break
		}

		// Case 3: the parent is a red root.
		grandparent := alloc[parent].parent
		if grandparent == 0 {
			alloc[parent].color = black

			break
		}

		// Case 4: parent and uncle are both red.
		// Then paint both black and make grandparent red.
		uncle := sibling(parent, alloc)
		if getColor(uncle, alloc) == red {
			alloc[parent].color = black
			alloc[uncle].color = black
			alloc[grandparent].color = red
			nodeIdx = grandparent

			continue
		}

		// Case 5: parent is red, uncle is black, N is an inner grandchild.
		// Rotate it to the outside and continue with the old parent.
		if isRightChild(nodeIdx, alloc) && isLeftChild(parent, alloc) {
			tree.rotateLeft(parent)
			nodeIdx, parent = parent, nodeIdx
		} else if isLeftChild(nodeIdx, alloc) && isRightChild(parent, alloc) {
			tree.rotateRight(parent)
			nodeIdx, parent = parent, nodeIdx
		}

		// Case 6: parent is red, uncle is black, N is an outer grandchild.
		alloc[parent].color = black
		alloc[grandparent].color = red

		if isLeftChild(nodeIdx, alloc) {
			tree.rotateRight(grandparent)
		} else {
			tree.rotateLeft(grandparent)
		}

		break
	}

	alloc[tree.root].color = black
}

// Delete N from the tree and return its value.
func (tree *RBTree[K, V]) doDelete(nodeIdx uint32) V {
	alloc := tree.storage()
	removed := alloc[nodeIdx].value

	if alloc[nodeIdx].left != 0 && alloc[nodeIdx].right != 0 {
		succ := minSuccessor(nodeIdx, alloc)
		alloc[nodeIdx].key = alloc[succ].key
		alloc[nodeIdx].value = alloc[succ].value
		nodeIdx = succ
	}

	doAssert(alloc[nodeIdx].left == 0 || alloc[nodeIdx].right == 0)

	child := alloc[nodeIdx].left
	if child == 0 {
		child = alloc[nodeIdx].right
	}

	parent := alloc[nodeIdx].parent
	color := alloc[nodeIdx].color

	tree.replaceNode(nodeIdx, child)

	if color == black {
		tree.deleteFixup(child, parent)
	}

	tree.allocator.free(nodeIdx)
	tree.count--

	if tree.count == 0 {
		tree.minNode = 0
		tree.maxNode = 0
	} else {
		if tree.minNode == nodeIdx {
			tree.recomputeMinNode()
		}

		if tree.maxNode == nodeIdx {
			tree.recomputeMaxNode()
		}
	}

	return removed
}

// deleteFixup resolves the double-black deficiency carried by nodeIdx,
// which may be the sentinel, so its parent is passed explicitly.
//
//nolint:gocognit // RB-tree deletion with rebalancing is inherently complex.
func (tree *RBTree[K, V]) deleteFixup(nodeIdx, parent uint32) {
	alloc := tree.storage()

	for parent != 0 && getColor(nodeIdx, alloc) == black {
		isLeft := nodeIdx == alloc[parent].left

		sib := alloc[parent].left
		if isLeft {
			sib = alloc[parent].right
		}

		doAssert(sib != 0)

		// Case 1: red sibling. Rotate it above the parent so the sibling becomes black.
		if alloc[sib].color == red {
			alloc[sib].color = black
			alloc[parent].color = red
			tree.rotateDirection(parent, isLeft)

			sib = alloc[parent].left
			if isLeft {
				sib = alloc[parent].right
			}

			doAssert(sib != 0)
		}

		near, far := alloc[sib].right, alloc[sib].left
		if isLeft {
			near, far = alloc[sib].left, alloc[sib].right
		}

		// Case 2: black sibling with black children. Push the deficiency up.
		if getColor(near, alloc) == black && getColor(far, alloc) == black {
			alloc[sib].color = red

			if alloc[parent].color == red {
				alloc[parent].color = black

				return
			}

			nodeIdx = parent
			parent = alloc[nodeIdx].parent

			continue
		}

		// Case 3: black sibling, far child black, near child red.
		// Rotate the sibling away from N so the red child becomes the far one.
		if getColor(far, alloc) == black {
			alloc[near].color = black
			alloc[sib].color = red
			tree.rotateDirection(sib, !isLeft)

			far = sib
			sib = near
		}

		// Case 4: black sibling with a red far child.
		alloc[sib].color = alloc[parent].color
		alloc[parent].color = black
		alloc[far].color = black
		tree.rotateDirection(parent, isLeft)

		return
	}

	if nodeIdx != 0 {
		alloc[nodeIdx].color = black
	}
}

// Return the minimum node that's larger than N. Return 0 if no such
// node is found.
func doNext[K, V any](nodeIdx uint32, allocator []node[K, V]) uint32 {
	if allocator[nodeIdx].right != 0 {
		return minSuccessor(nodeIdx, allocator)
	}

	for nodeIdx != 0 {
		parentIdx := allocator[nodeIdx].parent
		if parentIdx == 0 {
			return 0
		}

		if isLeftChild(nodeIdx, allocator) {
			return parentIdx
		}

		nodeIdx = parentIdx
	}

	return 0
}

// Return the maximum node that's smaller than N. Return negativeLimitNode
// if no such node is found.
func doPrev[K, V any](nodeIdx uint32, allocator []node[K, V]) uint32 {
	if allocator[nodeIdx].left != 0 {
		return maxPredecessor(nodeIdx, allocator)
	}

	for nodeIdx != 0 {
		parentIdx := allocator[nodeIdx].parent
		if parentIdx == 0 {
			break
		}

		if isRightChild(nodeIdx, allocator) {
			return parentIdx
		}

		nodeIdx = parentIdx
	}

	return negativeLimitNode
}

// Return the successor of "n" inside its right subtree.
func minSuccessor[K, V any](nodeIdx uint32, allocator []node[K, V]) uint32 {
	doAssert(allocator[nodeIdx].right != 0)

	cursor := allocator[nodeIdx].right

	for allocator[cursor].left != 0 {
		cursor = allocator[cursor].left
	}

	return cursor
}

// Return the predecessor of "n" inside its left subtree.
func maxPredecessor[K, V any](nodeIdx uint32, allocator []node[K, V]) uint32 {
	doAssert(allocator[nodeIdx].left != 0)

	cursor := allocator[nodeIdx].left

	for allocator[cursor].right != 0 {
		cursor = allocator[cursor].right
	}

	return cursor
}

func (tree *RBTree[K, V]) replaceNode(oldn, newn uint32) {
	alloc := tree.storage()

	if alloc[oldn].parent == 0 {
		tree.root = newn
	} else {
		if oldn == alloc[alloc[oldn].parent].left {
			alloc[alloc[oldn].parent].left = newn
		} else {
			alloc[alloc[oldn].parent].right = newn
		}
	}

	if newn != 0 {
		alloc[newn].parent = alloc[oldn].parent
	}
}

// rotateDirection performs a tree rotation in the specified direction.
// IsLeft=true performs left rotation, isLeft=false performs right rotation.
//
// Left rotation:
//
//	  X              Y
//	A   Y    =>    X   C
//	  B C        A B
//
// Right rotation:
//
//	    Y            X
//	  X   C  =>    A   Y
//	A B              B C
//
//nolint:dupword // ASCII art diagrams contain intentional repeated letters.
func (tree *RBTree[K, V]) rotateDirection(pivot uint32, isLeft bool) {
	alloc := tree.storage()

	// Get the child in the opposite direction of rotation.
	var child uint32
	if isLeft {
		child = alloc[pivot].right
	} else {
		child = alloc[pivot].left
	}

	doAssert(child != 0)

	// Move the inner subtree.
	var innerSubtree uint32
	if isLeft {
		innerSubtree = alloc[child].left
		alloc[pivot].right = innerSubtree
	} else {
		innerSubtree = alloc[child].right
		alloc[pivot].left = innerSubtree
	}

	if innerSubtree != 0 {
		alloc[innerSubtree].parent = pivot
	}

	// Update parent links.
	alloc[child].parent = alloc[pivot].parent

	if alloc[pivot].parent == 0 {
		tree.root = child
	} else {
		if isLeftChild(pivot, alloc) {
			alloc[alloc[pivot].parent].left = child
		} else {
			alloc[alloc[pivot].parent].right = child
		}
	}

	// Complete the rotation.
	if isLeft {
		alloc[child].left = pivot
	} else {
		alloc[child].right = pivot
	}

	alloc[pivot].parent = child
	tree.rotations++
}

func (tree *RBTree[K, V]) rotateLeft(nodeIdx uint32) {
	tree.rotateDirection(nodeIdx, true)
}

func (tree *RBTree[K, V]) rotateRight(nodeIdx uint32) {
	tree.rotateDirection(nodeIdx, false)
}
