package staking

// RankIndex is a Fenwick tree over a fixed number of slots. A slot counts 1
// while its account is in the ranked set and 0 otherwise, so the prefix count
// up to a slot is that account's live rank. Both queries are O(log capacity).
type RankIndex struct {
	capacity int
	tree     []int
	size     int
	topBit   int // highest power of two <= capacity, start point for the binary descent
}

// NewRankIndex builds an empty index with a fixed capacity. Capacity must be
// at least as large as any population the index will ever hold; slots are
// assigned once and never reused.
func NewRankIndex(capacity int) *RankIndex {
	if capacity < 1 {
		capacity = 1
	}
	top := 1
	for top<<1 <= capacity {
		top <<= 1
	}
	return &RankIndex{
		capacity: capacity,
		tree:     make([]int, capacity+1),
		topBit:   top,
	}
}

func (ix *RankIndex) Capacity() int { return ix.capacity }

// Size is the number of present slots, i.e. the ranked population.
func (ix *RankIndex) Size() int { return ix.size }

// Update applies a presence delta (+1 or -1) to a slot.
func (ix *RankIndex) Update(slot, delta int) error {
	if slot <= 0 || slot > ix.capacity {
		return ErrInvalidSlot
	}
	for i := slot; i <= ix.capacity; i += i & -i {
		ix.tree[i] += delta
	}
	ix.size += delta
	return nil
}

// PrefixCount returns the number of present slots with index <= slot.
func (ix *RankIndex) PrefixCount(slot int) int {
	if slot > ix.capacity {
		slot = ix.capacity
	}
	count := 0
	for i := slot; i > 0; i -= i & -i {
		count += ix.tree[i]
	}
	return count
}

// FindByCumulativeCount returns the smallest slot whose prefix count reaches
// k (the k-th present slot), or 0 when fewer than k slots are present.
func (ix *RankIndex) FindByCumulativeCount(k int) int {
	if k <= 0 || k > ix.size {
		return 0
	}
	pos, remaining := 0, k
	for step := ix.topBit; step > 0; step >>= 1 {
		next := pos + step
		if next <= ix.capacity && ix.tree[next] < remaining {
			pos = next
			remaining -= ix.tree[next]
		}
	}
	return pos + 1
}
