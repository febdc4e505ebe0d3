package rbtree //nolint:testpackage // tests require access to unexported fields (storage, free, root, etc.)

import (
	"math"
	"math/rand"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Create a tree storing a set of integers.
func testNewIntSet() *RBTree[int, int] {
	return New[int, int]()
}

func testAssert(tb testing.TB, condition bool, message string) {
	tb.Helper()
	assert.True(tb, condition, message)
}

func boolInsert(tree *RBTree[int, int], item int) bool {
	return tree.Insert(item, item) == nil
}

func requireValid[K, V any](tb testing.TB, tree *RBTree[K, V]) {
	tb.Helper()
	require.NoError(tb, tree.Validate())
}

func buildTree(tb testing.TB, keys ...int) *RBTree[int, int] {
	tb.Helper()

	tree := testNewIntSet()

	for _, key := range keys {
		require.NoError(tb, tree.Insert(key, key))
	}

	requireValid(tb, tree)

	return tree
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	tree := testNewIntSet()
	testAssert(t, tree.Len() == 0, "len!=0")
	testAssert(t, tree.IsEmpty(), "empty")
	testAssert(t, tree.Max().NegativeLimit(), "neglimit")
	testAssert(t, tree.Min().Limit(), "limit")
	testAssert(t, tree.FindGE(10).Limit(), "Not empty")
	testAssert(t, tree.FindLE(10).NegativeLimit(), "Not empty")
	testAssert(t, !tree.Contains(10), "Not empty")
	testAssert(t, tree.Limit().Equal(tree.Min()), "iter")
	assert.Empty(t, tree.InOrder())
	assert.Empty(t, tree.PreOrder())
	assert.Empty(t, tree.PostOrder())
	assert.Equal(t, 0, tree.Height())
	requireValid(t, tree)
}

func TestFindGE(t *testing.T) {
	t.Parallel()

	tree := testNewIntSet()
	testAssert(t, boolInsert(tree, 10), "Insert1")
	require.ErrorIs(t, tree.Insert(10, 11), ErrDuplicateKey)
	testAssert(t, tree.Len() == 1, "len==1")
	testAssert(t, tree.FindGE(10).Key() == 10, "FindGE 10")
	testAssert(t, tree.FindGE(11).Limit(), "FindGE 11")
	assert.Equal(t, 10, tree.FindGE(9).Key(), "FindGE 10")
}

func TestFindLE(t *testing.T) {
	t.Parallel()

	tree := testNewIntSet()
	testAssert(t, boolInsert(tree, 10), "insert1")
	testAssert(t, tree.FindLE(10).Key() == 10, "FindLE 10")
	testAssert(t, tree.FindLE(11).Key() == 10, "FindLE 11")
	testAssert(t, tree.FindLE(9).NegativeLimit(), "FindLE 9")
}

func TestGet(t *testing.T) {
	t.Parallel()

	tree := testNewIntSet()
	testAssert(t, boolInsert(tree, 10), "insert1")

	value, found := tree.Get(10)
	assert.True(t, found)
	assert.Equal(t, 10, value, "Get 10")

	_, found = tree.Get(9)
	assert.False(t, found, "Get 9")

	_, found = tree.Get(11)
	assert.False(t, found, "Get 11")
}

func TestDelete(t *testing.T) {
	t.Parallel()

	tree := testNewIntSet()

	_, err := tree.Delete(10)
	require.ErrorIs(t, err, ErrNotFound)
	testAssert(t, tree.Len() == 0, "dellen")
	testAssert(t, boolInsert(tree, 10), "ins")

	value, err := tree.Delete(10)
	require.NoError(t, err)
	assert.Equal(t, 10, value)
	testAssert(t, tree.Len() == 0, "dellen")

	// Delete was deleting after the request if request not found.
	// Ensure this does not regress.
	testAssert(t, boolInsert(tree, 10), "ins")

	_, err = tree.Delete(9)
	require.ErrorIs(t, err, ErrNotFound)
	testAssert(t, tree.Len() == 1, "dellen")
}

func TestInsertDuplicateKeepsValue(t *testing.T) {
	t.Parallel()

	tree := New[int, string]()
	require.NoError(t, tree.Insert(1, "a"))
	require.ErrorIs(t, tree.Insert(1, "b"), ErrDuplicateKey)

	value, found := tree.Get(1)
	assert.True(t, found)
	assert.Equal(t, "a", value)
	assert.Equal(t, 1, tree.Len())
}

func TestSetOverwrites(t *testing.T) {
	t.Parallel()

	tree := New[int, string]()

	previous, replaced := tree.Set(1, "a")
	assert.False(t, replaced)
	assert.Empty(t, previous)

	rotations := tree.Stats().Rotations
	slots := tree.Allocator().Size()

	previous, replaced = tree.Set(1, "b")
	assert.True(t, replaced)
	assert.Equal(t, "a", previous)
	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, slots, tree.Allocator().Size())
	assert.Equal(t, rotations, tree.Stats().Rotations)

	value, _ := tree.Get(1)
	assert.Equal(t, "b", value)

	for key := range 100 {
		tree.Set(key, strconv.Itoa(key))
	}

	requireValid(t, tree)
	assert.Equal(t, 100, tree.Len())
}

func iterToString(iter Iterator[int, int]) string {
	result := ""

	for ; !iter.Limit(); iter = iter.Next() {
		if result != "" {
			result += ","
		}

		result += strconv.Itoa(iter.Key())
	}

	return result
}

func reverseIterToString(iter Iterator[int, int]) string {
	result := ""

	for ; !iter.NegativeLimit(); iter = iter.Prev() {
		if result != "" {
			result += ","
		}

		result += strconv.Itoa(iter.Key())
	}

	return result
}

func TestIterator(t *testing.T) {
	t.Parallel()

	tree := testNewIntSet()

	for idx := 0; idx < 10; idx += 2 {
		boolInsert(tree, idx)
	}

	assert.Equal(t, "4,6,8", iterToString(tree.FindGE(3)))
	assert.Equal(t, "4,6,8", iterToString(tree.FindGE(4)))
	assert.Equal(t, "8", iterToString(tree.FindGE(8)))
	assert.Empty(t, iterToString(tree.FindGE(9)))
	assert.Equal(t, "2,0", reverseIterToString(tree.FindLE(3)))
	assert.Equal(t, "2,0", reverseIterToString(tree.FindLE(2)))
	assert.Equal(t, "0", reverseIterToString(tree.FindLE(0)))
	assert.Equal(t, "8,6,4,2,0", reverseIterToString(tree.FindLE(100)))
}

// Randomized tests.

// oracle provides an interface similar to rbtree, but stores
// data in a sorted slice.
type oracle struct {
	data []int
}

func newOracle() *oracle {
	return &oracle{data: make([]int, 0)}
}

func (o *oracle) Len() int {
	return len(o.data)
}

func (o *oracle) Insert(key int) bool {
	pos, found := slices.BinarySearch(o.data, key)
	if found {
		return false
	}

	o.data = slices.Insert(o.data, pos, key)

	return true
}

func (o *oracle) RandomExistingKey(rng *rand.Rand) int {
	return o.data[rng.Intn(len(o.data))]
}

func (o *oracle) FindGE(key int) oracleIterator {
	pos, _ := slices.BinarySearch(o.data, key)

	return oracleIterator{o: o, index: pos}
}

func (o *oracle) FindLE(key int) oracleIterator {
	iter := o.FindGE(key)

	if !iter.Limit() && o.data[iter.index] == key {
		return iter
	}

	return oracleIterator{o, iter.index - 1}
}

func (o *oracle) Delete(key int) bool {
	pos, found := slices.BinarySearch(o.data, key)
	if !found {
		return false
	}

	o.data = slices.Delete(o.data, pos, pos+1)

	return true
}

// Test iterator.
type oracleIterator struct {
	o     *oracle
	index int
}

func (oiter oracleIterator) Limit() bool {
	return oiter.index >= len(oiter.o.data)
}

func (oiter oracleIterator) NegativeLimit() bool {
	return oiter.index < 0
}

func (oiter oracleIterator) Item() int {
	return oiter.o.data[oiter.index]
}

func (oiter oracleIterator) Next() oracleIterator {
	return oracleIterator{oiter.o, oiter.index + 1}
}

func (oiter oracleIterator) Prev() oracleIterator {
	return oracleIterator{oiter.o, oiter.index - 1}
}

func compareContents(tb testing.TB, oiter oracleIterator, titer Iterator[int, int]) {
	tb.Helper()

	oi := oiter
	ti := titer

	// Test forward iteration.
	testAssert(tb, oi.NegativeLimit() == ti.NegativeLimit(), "rend")

	if oi.NegativeLimit() {
		oi = oi.Next()
		ti = ti.Next()
	}

	for !oi.Limit() && !ti.Limit() {
		if ti.Key() != oi.Item() {
			tb.Fatal("Wrong item", ti.Key(), oi.Item())
		}

		oi = oi.Next()
		ti = ti.Next()
	}

	if !ti.Limit() {
		tb.Fatal("!ti.done", ti.Key())
	}

	if !oi.Limit() {
		tb.Fatal("!oi.done", oi.Item())
	}

	// Test reverse iteration.
	oi = oiter
	ti = titer

	testAssert(tb, oi.Limit() == ti.Limit(), "end")

	if oi.Limit() {
		oi = oi.Prev()
		ti = ti.Prev()
	}

	for !oi.NegativeLimit() && !ti.NegativeLimit() {
		if ti.Key() != oi.Item() {
			tb.Fatal("Wrong item", ti.Key(), oi.Item())
		}

		oi = oi.Prev()
		ti = ti.Prev()
	}

	if !ti.NegativeLimit() {
		tb.Fatal("!ti.done", ti.Key())
	}

	if !oi.NegativeLimit() {
		tb.Fatal("!oi.done", oi.Item())
	}
}

func compareContentsFull(tb testing.TB, orc *oracle, tree *RBTree[int, int]) {
	tb.Helper()
	compareContents(tb, orc.FindGE(-1), tree.FindGE(-1))
	require.Equal(tb, orc.Len(), tree.Len())
	requireValid(tb, tree)
}

func TestRandomized(t *testing.T) {
	t.Parallel()

	const numKeys = 1000

	orc := newOracle()
	values := make(map[int]int)
	tree := testNewIntSet()
	rng := rand.New(rand.NewSource(0))

	for range 10000 {
		op := rng.Int31n(100)

		switch {
		case op < 35:
			key := int(rng.Int31n(numKeys))
			inserted := orc.Insert(key)
			assert.Equal(t, inserted, boolInsert(tree, key))

			if inserted {
				values[key] = key
			}

			compareContentsFull(t, orc, tree)
		case op < 50:
			key := int(rng.Int31n(numKeys))
			value := rng.Int()
			inserted := orc.Insert(key)

			previous, replaced := tree.Set(key, value)
			assert.Equal(t, !inserted, replaced)

			if replaced {
				assert.Equal(t, values[key], previous)
			}

			values[key] = value
			compareContentsFull(t, orc, tree)
		case op < 75 && orc.Len() > 0:
			key := orc.RandomExistingKey(rng)
			orc.Delete(key)

			value, err := tree.Delete(key)
			if err != nil {
				t.Fatal("DeleteExisting", key, err)
			}

			assert.Equal(t, values[key], value)
			delete(values, key)
			compareContentsFull(t, orc, tree)
		case op < 90 && orc.Len() > 0:
			key := orc.RandomExistingKey(rng)
			orc.Delete(key)

			iter := tree.FindGE(key)
			require.Equal(t, key, iter.Key())
			assert.Equal(t, values[key], tree.DeleteWithIterator(iter))
			delete(values, key)
			compareContentsFull(t, orc, tree)
		case op < 95:
			key := int(rng.Int31n(numKeys))
			compareContents(t, orc.FindGE(key), tree.FindGE(key))
		default:
			key := int(rng.Int31n(numKeys))
			compareContents(t, orc.FindLE(key), tree.FindLE(key))
		}
	}

	for key, want := range values {
		got, found := tree.Get(key)
		require.True(t, found, key)
		assert.Equal(t, want, got, key)
	}
}

func TestInsertAscendingRotates(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 10, 20, 30)
	alloc := tree.storage()
	root := alloc[tree.root]

	assert.Equal(t, 20, root.key)
	assert.Equal(t, black, root.color)
	assert.Equal(t, 10, alloc[root.left].key)
	assert.Equal(t, red, alloc[root.left].color)
	assert.Equal(t, 30, alloc[root.right].key)
	assert.Equal(t, red, alloc[root.right].color)
	assert.Equal(t, 1, tree.Stats().Rotations)

	assert.Equal(t, []int{20, 10, 30}, itemKeys(tree.PreOrder()))
	assert.Equal(t, []int{10, 30, 20}, itemKeys(tree.PostOrder()))
}

func TestDeleteBlackNodeWithTwoChildren(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 10, 20, 30, 40, 50, 60, 70)
	alloc := tree.storage()

	target := tree.find(20)
	require.NotZero(t, target)
	assert.Equal(t, black, alloc[target].color)
	assert.NotZero(t, alloc[target].left)
	assert.NotZero(t, alloc[target].right)

	value, err := tree.Delete(20)
	require.NoError(t, err)
	assert.Equal(t, 20, value)
	requireValid(t, tree)

	assert.Equal(t, []int{10, 30, 40, 50, 60, 70}, tree.Keys())
	// The slot of 20 now holds its successor.
	assert.Equal(t, 30, tree.storage()[target].key)
	assert.Equal(t, target, tree.find(30))
}

func TestDeleteSoleKey(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 42)

	value, err := tree.Delete(42)
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, 0, tree.Len())
	assert.True(t, tree.IsEmpty())
	assert.Equal(t, uint32(0), tree.root)
	assert.Equal(t, 0, tree.Allocator().Used())
	requireValid(t, tree)
}

func TestDeleteMissingKeyKeepsStructure(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	tree := testNewIntSet()

	for _, key := range rng.Perm(200) {
		require.NoError(t, tree.Insert(key*2, key))
	}

	snapshot := slices.Clone(tree.storage())
	root, stats := tree.root, tree.Stats()

	for key := -1; key < 400; key += 2 {
		_, err := tree.Delete(key)
		require.ErrorIs(t, err, ErrNotFound)
	}

	assert.Equal(t, snapshot, tree.storage())
	assert.Equal(t, root, tree.root)
	assert.Equal(t, stats, tree.Stats())
}

func TestInsertDeleteAllPermutations(t *testing.T) {
	t.Parallel()

	const numKeys = 500

	rng := rand.New(rand.NewSource(42))

	for round := range 5 {
		tree := testNewIntSet()

		for _, key := range rng.Perm(numKeys) {
			require.NoError(t, tree.Insert(key+1, key+1))
		}

		requireValid(t, tree)
		require.Equal(t, numKeys, tree.Len())

		for _, key := range rng.Perm(numKeys) {
			value, err := tree.Delete(key + 1)
			require.NoError(t, err, "round %d", round)
			require.Equal(t, key+1, value)
			requireValid(t, tree)
		}

		assert.True(t, tree.IsEmpty())
		assert.Equal(t, uint32(0), tree.root)
		assert.Equal(t, 0, tree.Allocator().Used())
		assert.Equal(t, tree.Allocator().Size(), tree.Allocator().Free())
	}
}

func TestWithCapacityDoesNotRelocate(t *testing.T) {
	t.Parallel()

	const numKeys = 1000

	tree := WithCapacity[int, int](numKeys)
	capacity := tree.Allocator().Capacity()
	assert.GreaterOrEqual(t, capacity, numKeys)

	rng := rand.New(rand.NewSource(3))

	for _, key := range rng.Perm(numKeys) {
		require.NoError(t, tree.Insert(key, key))
	}

	assert.Equal(t, 0, tree.Allocator().Relocations())
	assert.Equal(t, capacity, tree.Allocator().Capacity())

	growing := testNewIntSet()

	for key := range numKeys {
		require.NoError(t, growing.Insert(key, key))
	}

	assert.Positive(t, growing.Allocator().Relocations())
	requireValid(t, growing)
}

func TestReserveAfterDeletes(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 1, 2, 3, 4, 5)

	_, err := tree.Delete(3)
	require.NoError(t, err)

	tree.Reserve(100)
	relocations := tree.Allocator().Relocations()

	for key := 10; key < 110; key++ {
		require.NoError(t, tree.Insert(key, key))
	}

	assert.Equal(t, relocations, tree.Allocator().Relocations())
	requireValid(t, tree)
}

func TestRandomKeysDepthBound(t *testing.T) {
	t.Parallel()

	const numKeys = 1000

	rng := rand.New(rand.NewSource(1001))
	tree := testNewIntSet()
	present := map[int]bool{}

	for len(present) < numKeys {
		// Even keys are present, odd keys stay absent.
		key := rng.Intn(1<<30) * 2
		if present[key] {
			continue
		}

		present[key] = true

		require.NoError(t, tree.Insert(key, -key))
	}

	for key := range present {
		value, found := tree.Get(key)
		require.True(t, found)
		require.Equal(t, -key, value)
	}

	absent := 0

	for key := range present {
		require.False(t, tree.Contains(key+1))

		_, found := tree.Get(key + 1)
		require.False(t, found)

		absent++
	}

	assert.Equal(t, numKeys, absent)
	assert.LessOrEqual(t, float64(tree.Height()), 2*math.Log2(numKeys+1))
	requireValid(t, tree)
}

func TestFreeSlotsAreReused(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	assert.Equal(t, 10, tree.Allocator().Size())

	_, err := tree.Delete(5)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Allocator().Free())

	require.NoError(t, tree.Insert(11, 11))
	assert.Equal(t, 0, tree.Allocator().Free())
	assert.Equal(t, 10, tree.Allocator().Size())
	requireValid(t, tree)
}

func TestAllocatorFreeZero(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator[int, int]()
	alloc.malloc()
	assert.PanicsWithValue(t, "node #0 is special and cannot be deallocated", func() { alloc.free(0) })
}

func TestAllocatorDoubleFree(t *testing.T) {
	t.Parallel()

	alloc := NewAllocator[int, int]()
	nodeIdx := alloc.malloc()
	alloc.free(nodeIdx)

	assert.Panics(t, func() { alloc.free(nodeIdx) })
	assert.Panics(t, func() { alloc.free(100) })
	assert.Equal(t, uint32(1), alloc.storage[nodeIdx].gen)
	assert.Equal(t, nodeIdx, alloc.malloc())
}

func TestStaleIterator(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 1, 2, 3)
	iter := tree.FindGE(1)
	assert.Equal(t, 1, iter.Key())

	_, err := tree.Delete(1)
	require.NoError(t, err)
	assert.PanicsWithValue(t, "rbtree: stale iterator", func() { iter.Key() })

	// The slot is reused by the next insert, the iterator stays stale.
	require.NoError(t, tree.Insert(4, 4))
	assert.PanicsWithValue(t, "rbtree: stale iterator", func() { iter.Value() })
	assert.PanicsWithValue(t, "rbtree: stale iterator", func() { iter.Next() })
}

func TestIteratorSetValue(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 1, 2, 3)

	for iter := tree.Min(); !iter.Limit(); iter = iter.Next() {
		iter.SetValue(iter.Key() * 10)
	}

	assert.Equal(t, []Item[int, int]{{1, 10}, {2, 20}, {3, 30}}, tree.InOrder())
}

func TestCloneDeep(t *testing.T) {
	t.Parallel()

	tree := testNewIntSet()

	for key := range 100 {
		require.NoError(t, tree.Insert(key, key))
	}

	for key := 0; key < 100; key += 3 {
		_, err := tree.Delete(key)
		require.NoError(t, err)
	}

	clone := tree.CloneDeep()
	requireValid(t, clone)
	assert.Equal(t, tree.InOrder(), clone.InOrder())
	assert.Equal(t, tree.PreOrder(), clone.PreOrder())
	assert.Equal(t, clone.Len(), clone.Allocator().Size())
	assert.Equal(t, 0, clone.Allocator().Free())

	require.NoError(t, tree.Insert(1000, 1000))
	assert.False(t, clone.Contains(1000))

	_, err := clone.Delete(1)
	require.NoError(t, err)
	assert.True(t, tree.Contains(1))
}

func TestErase(t *testing.T) {
	t.Parallel()

	tree := testNewIntSet()

	for idx := range 10 {
		require.NoError(t, tree.Insert(idx, idx))
	}

	assert.Equal(t, 10, tree.Allocator().Used())
	tree.Erase()
	assert.Equal(t, 0, tree.Allocator().Used())
	assert.Equal(t, 10, tree.Allocator().Size())
	assert.Equal(t, 0, tree.Len())
	requireValid(t, tree)

	require.NoError(t, tree.Insert(1, 1))
	requireValid(t, tree)
}

func TestTraversals(t *testing.T) {
	t.Parallel()

	tree := WithCapacity[int, int](100)

	for _, key := range []int{40, 10, 20, 30, 50, 45, 11, 55, 60, 65, 70, 66} {
		require.NoError(t, tree.Insert(key, key))
	}

	for _, key := range []int{50, 10, 65, 66} {
		_, err := tree.Delete(key)
		require.NoError(t, err)

		if key == 50 {
			require.NoError(t, tree.Insert(50, 50))
		}
	}

	requireValid(t, tree)

	inOrder := itemKeys(tree.InOrder())
	assert.Equal(t, []int{11, 20, 30, 40, 45, 50, 55, 60, 70}, inOrder)

	rootKey := tree.storage()[tree.root].key
	preOrder := itemKeys(tree.PreOrder())
	postOrder := itemKeys(tree.PostOrder())

	assert.Equal(t, rootKey, preOrder[0])
	assert.Equal(t, rootKey, postOrder[len(postOrder)-1])
	assert.ElementsMatch(t, inOrder, preOrder)
	assert.ElementsMatch(t, inOrder, postOrder)

	assert.False(t, tree.Contains(10))
	assert.False(t, tree.Contains(15))
	assert.True(t, tree.Contains(45))
	assert.True(t, tree.Contains(50))
}

func TestAllStopsEarly(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 5, 3, 8, 1, 4)

	var seen []int

	for key, value := range tree.All() {
		assert.Equal(t, key, value)

		seen = append(seen, key)
		if len(seen) == 3 {
			break
		}
	}

	assert.Equal(t, []int{1, 3, 4}, seen)
}

func TestCustomComparator(t *testing.T) {
	t.Parallel()

	tree := NewRBTree[int, string](func(a, b int) int { return b - a })

	for key := range 10 {
		require.NoError(t, tree.Insert(key, strconv.Itoa(key)))
	}

	requireValid(t, tree)
	assert.Equal(t, []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, tree.Keys())
	assert.Equal(t, 9, tree.Min().Key())
	assert.Equal(t, 0, tree.Max().Key())
}

// TestRBTreeAllocator tests the Allocator() accessor method.
func TestRBTreeAllocator(t *testing.T) {
	t.Parallel()

	tree := testNewIntSet()
	alloc := tree.Allocator()

	tree.Insert(5, 5)
	tree.Insert(10, 10)
	assert.Same(t, alloc, tree.Allocator())
	assert.Equal(t, 2, alloc.Used())
}

// TestNegativeLimit tests the NegativeLimit() iterator method.
func TestNegativeLimit(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 5, 10, 15)

	// NegativeLimit should be before first element.
	iter := tree.NegativeLimit()
	assert.True(t, iter.NegativeLimit())
	assert.False(t, iter.Limit())

	// Next from NegativeLimit should give first element.
	iter = iter.Next()
	assert.False(t, iter.NegativeLimit())
	assert.Equal(t, 5, iter.Key())

	// Empty tree should still work.
	emptyTree := testNewIntSet()
	emptyIter := emptyTree.NegativeLimit()
	assert.True(t, emptyIter.NegativeLimit())
}

// TestDeleteWithIterator tests the DeleteWithIterator() method.
func TestDeleteWithIterator(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 5, 10, 15)

	// Find middle element and delete via iterator.
	iter := tree.FindGE(10)
	assert.Equal(t, 10, iter.Key())

	assert.Equal(t, 10, tree.DeleteWithIterator(iter))
	assert.Equal(t, 2, tree.Len())
	assert.False(t, tree.Contains(10))
	assert.True(t, tree.Contains(5))
	assert.True(t, tree.Contains(15))

	// Delete first element via iterator.
	tree.DeleteWithIterator(tree.Min())
	assert.Equal(t, 1, tree.Len())
	assert.False(t, tree.Contains(5))

	// Delete last element via iterator.
	tree.DeleteWithIterator(tree.Max())
	assert.Equal(t, 0, tree.Len())
	assert.False(t, tree.Contains(15))
	requireValid(t, tree)

	assert.Panics(t, func() { tree.DeleteWithIterator(tree.Limit()) })
}

// TestIteratorMinMax tests the Iterator.Min() and Iterator.Max() methods.
func TestIteratorMinMax(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 5, 10, 15)

	minIter := tree.Min()
	assert.True(t, minIter.Min())
	assert.False(t, minIter.Max())
	assert.Equal(t, 5, minIter.Key())

	maxIter := tree.Max()
	assert.True(t, maxIter.Max())
	assert.False(t, maxIter.Min())
	assert.Equal(t, 15, maxIter.Key())

	midIter := tree.FindGE(10)
	assert.False(t, midIter.Min())
	assert.False(t, midIter.Max())

	// Single element tree - same element is both min and max.
	singleTree := buildTree(t, 42)
	assert.True(t, singleTree.Min().Min())
	assert.True(t, singleTree.Min().Max())
	assert.True(t, singleTree.Max().Min())
	assert.True(t, singleTree.Max().Max())
}

func TestValidateDetectsCorruption(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 1, 2, 3, 4, 5, 6, 7)
	alloc := tree.storage()

	alloc[tree.root].color = red
	require.ErrorIs(t, tree.Validate(), ErrInvariant)
	alloc[tree.root].color = black
	requireValid(t, tree)

	leaf := tree.find(7)
	alloc[leaf].key = 0
	require.ErrorIs(t, tree.Validate(), ErrInvariant)
	alloc[leaf].key = 7

	tree.count++
	require.ErrorIs(t, tree.Validate(), ErrInvariant)
	tree.count--
	requireValid(t, tree)
}

func itemKeys(items []Item[int, int]) []int {
	keys := make([]int, len(items))
	for idx, item := range items {
		keys[idx] = item.Key
	}

	return keys
}
