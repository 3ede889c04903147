package timeline

import "worldloom/internal/store"

// ResolveSortKey computes the key for inserting a marker between two
// neighbors: the midpoint when both exist, one past the predecessor, one
// before the successor, or zero on an empty timeline.
func ResolveSortKey(prev, next *float64) float64 {
	switch {
	case prev != nil && next != nil:
		return (*prev + *next) / 2
	case prev != nil:
		return *prev + 1
	case next != nil:
		return *next - 1
	default:
		return 0
	}
}

// keyCollides reports whether a computed key failed to land strictly between
// its neighbors. Repeated midpoint insertion in the same gap eventually
// exhausts float precision; the caller repairs by renumbering.
func keyCollides(key float64, prev, next *float64) bool {
	if prev != nil && key <= *prev {
		return true
	}
	if next != nil && key >= *next {
		return true
	}
	return false
}

// neighborKeys returns the sort keys bracketing an insertion index within an
// ordered marker slice. The index is clamped to [0, len(markers)].
func neighborKeys(markers []store.Marker, index int) (prev, next *float64) {
	if index < 0 {
		index = 0
	}
	if index > len(markers) {
		index = len(markers)
	}
	if index > 0 {
		k := markers[index-1].SortKey
		prev = &k
	}
	if index < len(markers) {
		k := markers[index].SortKey
		next = &k
	}
	return prev, next
}
