package timeline

import "worldloom/internal/store"

// feed is the replayable operation log of one world: every operation on a
// placed marker, decoded, in global order (marker sort_key, marker
// created_at, marker id, op order_index, op created_at, op id). Unplaced
// markers and their operations never enter the feed.
type feed struct {
	placed []store.Marker
	ops    []DecodedOp
	// markerEnd maps a placed marker id to the feed prefix length that
	// includes all of its operations.
	markerEnd map[string]int
	markerPos map[string]int
}

// buildFeed interleaves ordered markers with their operation groups. markers
// must come from ListMarkers and ops from ListWorldOperations so both carry
// their store ordering.
func buildFeed(markers []store.Marker, ops []store.Operation) feed {
	byMarker := make(map[string][]store.Operation, len(markers))
	for _, op := range ops {
		byMarker[op.MarkerID] = append(byMarker[op.MarkerID], op)
	}

	f := feed{
		markerEnd: make(map[string]int, len(markers)),
		markerPos: make(map[string]int, len(markers)),
	}
	for _, m := range markers {
		if m.PlacementStatus != PlacementPlaced {
			continue
		}
		f.placed = append(f.placed, m)
		for _, op := range byMarker[m.ID] {
			f.ops = append(f.ops, DecodeOperation(op))
		}
		f.markerPos[m.ID] = len(f.placed) - 1
		f.markerEnd[m.ID] = len(f.ops)
	}
	return f
}

// cutAt returns the feed prefix length through the given placed marker and
// the number of placed markers applied. An empty marker id means the head of
// the timeline.
func (f feed) cutAt(markerID string) (cut, appliedMarkers int, ok bool) {
	if markerID == "" {
		return len(f.ops), len(f.placed), true
	}
	end, found := f.markerEnd[markerID]
	if !found {
		return 0, 0, false
	}
	return end, f.markerPos[markerID] + 1, true
}

// head returns the last placed marker, or nil for an empty timeline.
func (f feed) head() *store.Marker {
	if len(f.placed) == 0 {
		return nil
	}
	return &f.placed[len(f.placed)-1]
}

// firstCreatePositions maps each record id to the feed index of its first
// create operation. Records with no create op anywhere (purely canonical
// records) have no entry and exist at every point.
func (f feed) firstCreatePositions() (entities, relations map[string]int) {
	entities = map[string]int{}
	relations = map[string]int{}
	for i, op := range f.ops {
		if op.TargetID == "" {
			continue
		}
		switch op.Kind {
		case OpEntityCreate:
			if _, seen := entities[op.TargetID]; !seen {
				entities[op.TargetID] = i
			}
		case OpRelationCreate:
			if _, seen := relations[op.TargetID]; !seen {
				relations[op.TargetID] = i
			}
		}
	}
	return entities, relations
}
