package rbtree

import "math"

// negativeLimitNode is the handle of the position before the minimum element.
const negativeLimitNode = math.MaxUint32

// Iterator allows scanning tree elements in sort order.
//
// Iterator invalidation rule is the same as C++ std::map<>'s. That
// is, if you delete the element that an iterator points to, the
// iterator becomes invalid. For other operation types, the iterator
// remains valid. Using an invalid iterator panics. Deleting a node with two
// children invalidates the iterator of its successor, whose element moves.
type Iterator[K, V any] struct {
	tree *RBTree[K, V]
	node uint32
	gen  uint32
}

func (tree *RBTree[K, V]) iterator(nodeIdx uint32) Iterator[K, V] {
	iter := Iterator[K, V]{tree: tree, node: nodeIdx}
	if nodeIdx != 0 && nodeIdx != negativeLimitNode {
		iter.gen = tree.storage()[nodeIdx].gen
	}

	return iter
}

// Min creates an iterator that points to the minimum item in the tree.
// If the tree is empty, returns Limit().
func (tree *RBTree[K, V]) Min() Iterator[K, V] {
	return tree.iterator(tree.minNode)
}

// Max creates an iterator that points at the maximum item in the tree.
//
// If the tree is empty, returns NegativeLimit().
func (tree *RBTree[K, V]) Max() Iterator[K, V] {
	if tree.maxNode == 0 {
		return tree.iterator(negativeLimitNode)
	}

	return tree.iterator(tree.maxNode)
}

// Limit creates an iterator that points beyond the maximum item in the tree.
func (tree *RBTree[K, V]) Limit() Iterator[K, V] {
	return tree.iterator(0)
}

// NegativeLimit creates an iterator that points before the minimum item in the tree.
func (tree *RBTree[K, V]) NegativeLimit() Iterator[K, V] {
	return tree.iterator(negativeLimitNode)
}

// FindGE finds the smallest element N such that N >= Key, and returns the
// iterator pointing to the element. If no such element is found,
// returns tree.Limit().
func (tree *RBTree[K, V]) FindGE(key K) Iterator[K, V] {
	nodeIdx, _ := tree.findGE(key)

	return tree.iterator(nodeIdx)
}

// FindLE finds the largest element N such that N <= Key, and returns the
// iterator pointing to the element. If no such element is found,
// returns iter.NegativeLimit().
func (tree *RBTree[K, V]) FindLE(key K) Iterator[K, V] {
	nodeIdx, exact := tree.findGE(key)
	if exact {
		return tree.iterator(nodeIdx)
	}

	if nodeIdx != 0 {
		return tree.iterator(doPrev(nodeIdx, tree.storage()))
	}

	return tree.Max()
}

// Find a node whose key >= Key. The 2nd return value is true iff the
// node's key equals Key. Returns (0, false) if all nodes in the tree are <
// Key.
func (tree *RBTree[K, V]) findGE(key K) (uint32, bool) {
	alloc := tree.storage()
	nodeIdx := tree.root

	for {
		if nodeIdx == 0 {
			return 0, false
		}

		comp := tree.compare(key, alloc[nodeIdx].key)

		switch {
		case comp == 0:
			return nodeIdx, true
		case comp < 0:
			if alloc[nodeIdx].left == 0 {
				return nodeIdx, false
			}

			nodeIdx = alloc[nodeIdx].left
		default:
			if alloc[nodeIdx].right == 0 {
				return doNext(nodeIdx, alloc), false
			}

			nodeIdx = alloc[nodeIdx].right
		}
	}
}

// check panics if the element behind the iterator has been freed since the
// iterator was created.
func (iter Iterator[K, V]) check() {
	if iter.Limit() || iter.NegativeLimit() {
		return
	}

	alloc := iter.tree.storage()
	if int(iter.node) >= len(alloc) || !alloc[iter.node].used || alloc[iter.node].gen != iter.gen {
		panic("rbtree: stale iterator")
	}
}

// Equal checks for the underlying nodes equality.
func (iter Iterator[K, V]) Equal(other Iterator[K, V]) bool {
	return iter.node == other.node
}

// Limit checks if the iterator points beyond the max element in the tree.
func (iter Iterator[K, V]) Limit() bool {
	return iter.node == 0
}

// Min checks if the iterator points to the minimum element in the tree.
func (iter Iterator[K, V]) Min() bool {
	return iter.node == iter.tree.minNode
}

// Max checks if the iterator points to the maximum element in the tree.
func (iter Iterator[K, V]) Max() bool {
	return iter.node == iter.tree.maxNode
}

// NegativeLimit checks if the iterator points before the minimum element in the tree.
func (iter Iterator[K, V]) NegativeLimit() bool {
	return iter.node == negativeLimitNode
}

// Key returns the key of the current element.
//
// REQUIRES: !iter.Limit() && !iter.NegativeLimit().
func (iter Iterator[K, V]) Key() K {
	doAssert(!iter.Limit() && !iter.NegativeLimit())
	iter.check()

	return iter.tree.storage()[iter.node].key
}

// Value returns the value of the current element.
//
// REQUIRES: !iter.Limit() && !iter.NegativeLimit().
func (iter Iterator[K, V]) Value() V {
	doAssert(!iter.Limit() && !iter.NegativeLimit())
	iter.check()

	return iter.tree.storage()[iter.node].value
}

// SetValue replaces the value of the current element in place.
//
// REQUIRES: !iter.Limit() && !iter.NegativeLimit().
func (iter Iterator[K, V]) SetValue(value V) {
	doAssert(!iter.Limit() && !iter.NegativeLimit())
	iter.check()

	iter.tree.storage()[iter.node].value = value
}

// Next creates a new iterator that points to the successor of the current element.
//
// REQUIRES: !iter.Limit().
func (iter Iterator[K, V]) Next() Iterator[K, V] {
	doAssert(!iter.Limit())

	if iter.NegativeLimit() {
		return iter.tree.iterator(iter.tree.minNode)
	}

	iter.check()

	return iter.tree.iterator(doNext(iter.node, iter.tree.storage()))
}

// Prev creates a new iterator that points to the predecessor of the current
// node.
//
// REQUIRES: !iter.NegativeLimit().
func (iter Iterator[K, V]) Prev() Iterator[K, V] {
	doAssert(!iter.NegativeLimit())

	if !iter.Limit() {
		iter.check()

		return iter.tree.iterator(doPrev(iter.node, iter.tree.storage()))
	}

	return iter.tree.Max()
}
