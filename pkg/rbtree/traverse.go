package rbtree

import "iter"

// All returns an iterator over the key/value pairs in ascending key order.
// The tree must not be modified while the sequence is consumed.
func (tree *RBTree[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if tree.count == 0 {
			return
		}

		alloc := tree.storage()

		for nodeIdx := tree.minNode; nodeIdx != 0; nodeIdx = doNext(nodeIdx, alloc) {
			if !yield(alloc[nodeIdx].key, alloc[nodeIdx].value) {
				return
			}
		}
	}
}

// Keys returns the keys in ascending order.
func (tree *RBTree[K, V]) Keys() []K {
	keys := make([]K, 0, tree.count)

	for key := range tree.All() {
		keys = append(keys, key)
	}

	return keys
}

// InOrder returns a snapshot of the elements in ascending key order.
func (tree *RBTree[K, V]) InOrder() []Item[K, V] {
	items := make([]Item[K, V], 0, tree.count)

	for key, value := range tree.All() {
		items = append(items, Item[K, V]{Key: key, Value: value})
	}

	return items
}

// PreOrder returns a snapshot of the elements in node, left, right order.
func (tree *RBTree[K, V]) PreOrder() []Item[K, V] {
	items := make([]Item[K, V], 0, tree.count)
	if tree.root == 0 {
		return items
	}

	alloc := tree.storage()
	stack := []uint32{tree.root}

	for len(stack) > 0 {
		nodeIdx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		nd := &alloc[nodeIdx]
		items = append(items, Item[K, V]{Key: nd.key, Value: nd.value})

		if nd.right != 0 {
			stack = append(stack, nd.right)
		}

		if nd.left != 0 {
			stack = append(stack, nd.left)
		}
	}

	return items
}

// PostOrder returns a snapshot of the elements in left, right, node order.
func (tree *RBTree[K, V]) PostOrder() []Item[K, V] {
	items := make([]Item[K, V], 0, tree.count)
	if tree.root == 0 {
		return items
	}

	alloc := tree.storage()

	// Reversed node, right, left order is the post order.
	stack := []uint32{tree.root}
	order := make([]uint32, 0, tree.count)

	for len(stack) > 0 {
		nodeIdx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, nodeIdx)

		if alloc[nodeIdx].left != 0 {
			stack = append(stack, alloc[nodeIdx].left)
		}

		if alloc[nodeIdx].right != 0 {
			stack = append(stack, alloc[nodeIdx].right)
		}
	}

	for idx := len(order) - 1; idx >= 0; idx-- {
		nd := &alloc[order[idx]]
		items = append(items, Item[K, V]{Key: nd.key, Value: nd.value})
	}

	return items
}

// Height returns the number of nodes on the longest root-to-leaf path.
func (tree *RBTree[K, V]) Height() int {
	if tree.root == 0 {
		return 0
	}

	return subtreeHeight(tree.root, tree.storage())
}

func subtreeHeight[K, V any](nodeIdx uint32, allocator []node[K, V]) int {
	if nodeIdx == 0 {
		return 0
	}

	return 1 + max(subtreeHeight(allocator[nodeIdx].left, allocator), subtreeHeight(allocator[nodeIdx].right, allocator))
}
