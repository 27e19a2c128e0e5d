package containers

// DedupTable is an append-only list where structurally equal entries share
// one index. Lookups are a linear scan, first match wins.
type DedupTable[T any] struct {
	items []T
	equal func(a, b T) bool
}

// NewDedupTable creates a table comparing entries with equal.
func NewDedupTable[T any](equal func(a, b T) bool) *DedupTable[T] {
	return &DedupTable[T]{equal: equal}
}

// Insert returns the index of an entry equal to item, appending it first if
// none exists.
func (dt *DedupTable[T]) Insert(item T) int {
	for i := range dt.items {
		if dt.equal(dt.items[i], item) {
			return i
		}
	}
	dt.items = append(dt.items, item)
	return len(dt.items) - 1
}

// Items returns the entries in insertion order.
func (dt *DedupTable[T]) Items() []T {
	return dt.items
}

func (dt *DedupTable[T]) Len() int {
	return len(dt.items)
}
