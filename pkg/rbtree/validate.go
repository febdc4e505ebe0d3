package rbtree

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Validate walks the whole tree and the allocator and reports the first
// broken red-black or ownership invariant as an error wrapping ErrInvariant.
// It is O(n) and meant for tests and soak runs.
func (tree *RBTree[K, V]) Validate() error {
	if tree.allocator.Hibernated() {
		return fmt.Errorf("%w: allocator is hibernated", ErrInvariant)
	}

	alloc := tree.storage()

	sentinel := alloc[0]
	if sentinel.used || sentinel.color != black || sentinel.parent != 0 || sentinel.left != 0 || sentinel.right != 0 {
		return fmt.Errorf("%w: sentinel slot was modified", ErrInvariant)
	}

	if tree.root == 0 {
		if tree.count != 0 || tree.minNode != 0 || tree.maxNode != 0 {
			return fmt.Errorf("%w: empty tree with count %d", ErrInvariant, tree.count)
		}
	} else {
		if alloc[tree.root].parent != 0 {
			return fmt.Errorf("%w: root #%d has a parent", ErrInvariant, tree.root)
		}

		if alloc[tree.root].color != black {
			return fmt.Errorf("%w: root #%d is red", ErrInvariant, tree.root)
		}
	}

	reachable := roaring.New()

	if _, err := tree.validateSubtree(tree.root, alloc, reachable); err != nil {
		return err
	}

	if reached := int(reachable.GetCardinality()); reached != tree.count {
		return fmt.Errorf("%w: %d nodes reachable, count is %d", ErrInvariant, reached, tree.count)
	}

	if used := tree.allocator.Used(); used != tree.count {
		return fmt.Errorf("%w: %d slots occupied, count is %d", ErrInvariant, used, tree.count)
	}

	freed := roaring.New()

	for _, nodeIdx := range tree.allocator.gaps {
		if nodeIdx == 0 || int(nodeIdx) >= len(alloc) || alloc[nodeIdx].used {
			return fmt.Errorf("%w: free stack holds occupied slot #%d", ErrInvariant, nodeIdx)
		}

		if !freed.CheckedAdd(nodeIdx) {
			return fmt.Errorf("%w: slot #%d is freed twice", ErrInvariant, nodeIdx)
		}
	}

	return tree.validateOrder(alloc)
}

// validateSubtree returns the black height of the subtree rooted at nodeIdx.
func (tree *RBTree[K, V]) validateSubtree(nodeIdx uint32, alloc []node[K, V], reachable *roaring.Bitmap) (int, error) {
	if nodeIdx == 0 {
		return 1, nil
	}

	if int(nodeIdx) >= len(alloc) || !alloc[nodeIdx].used {
		return 0, fmt.Errorf("%w: free slot #%d is reachable", ErrInvariant, nodeIdx)
	}

	if !reachable.CheckedAdd(nodeIdx) {
		return 0, fmt.Errorf("%w: slot #%d is reachable twice", ErrInvariant, nodeIdx)
	}

	nd := &alloc[nodeIdx]

	for _, child := range [2]uint32{nd.left, nd.right} {
		if child == 0 {
			continue
		}

		if int(child) < len(alloc) && alloc[child].parent != nodeIdx {
			return 0, fmt.Errorf("%w: slot #%d does not point back to parent #%d", ErrInvariant, child, nodeIdx)
		}

		if nd.color == red && int(child) < len(alloc) && alloc[child].color == red {
			return 0, fmt.Errorf("%w: red slot #%d has a red child #%d", ErrInvariant, nodeIdx, child)
		}
	}

	leftHeight, err := tree.validateSubtree(nd.left, alloc, reachable)
	if err != nil {
		return 0, err
	}

	rightHeight, err := tree.validateSubtree(nd.right, alloc, reachable)
	if err != nil {
		return 0, err
	}

	if leftHeight != rightHeight {
		return 0, fmt.Errorf("%w: black heights %d and %d under slot #%d",
			ErrInvariant, leftHeight, rightHeight, nodeIdx)
	}

	if nd.color == black {
		leftHeight++
	}

	return leftHeight, nil
}

func (tree *RBTree[K, V]) validateOrder(alloc []node[K, V]) error {
	if tree.root == 0 {
		return nil
	}

	leftmost, rightmost := tree.root, tree.root

	for alloc[leftmost].left != 0 {
		leftmost = alloc[leftmost].left
	}

	for alloc[rightmost].right != 0 {
		rightmost = alloc[rightmost].right
	}

	if leftmost != tree.minNode || rightmost != tree.maxNode {
		return fmt.Errorf("%w: cached min/max #%d/#%d, actual #%d/#%d",
			ErrInvariant, tree.minNode, tree.maxNode, leftmost, rightmost)
	}

	prev := leftmost

	for nodeIdx := doNext(leftmost, alloc); nodeIdx != 0; nodeIdx = doNext(nodeIdx, alloc) {
		if tree.compare(alloc[prev].key, alloc[nodeIdx].key) >= 0 {
			return fmt.Errorf("%w: slot #%d is not ordered after slot #%d", ErrInvariant, nodeIdx, prev)
		}

		prev = nodeIdx
	}

	return nil
}
