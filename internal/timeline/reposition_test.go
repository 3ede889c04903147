package timeline

import (
	"math"
	"testing"

	"worldloom/internal/store"
)

func fp(v float64) *float64 { return &v }

func TestResolveSortKey(t *testing.T) {
	tests := []struct {
		name string
		prev *float64
		next *float64
		want float64
	}{
		{"between neighbors", fp(2), fp(4), 3},
		{"after the last", fp(7), nil, 8},
		{"before the first", nil, fp(3), 2},
		{"empty timeline", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveSortKey(tt.prev, tt.next); got != tt.want {
				t.Errorf("ResolveSortKey = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeyCollides(t *testing.T) {
	tight := math.Nextafter(1, 2)
	tests := []struct {
		name string
		key  float64
		prev *float64
		next *float64
		want bool
	}{
		{"strictly between", 5, fp(4), fp(6), false},
		{"equals predecessor", 4, fp(4), fp(6), true},
		{"equals successor", 6, fp(4), fp(6), true},
		{"no room between adjacent floats", ResolveSortKey(fp(1), fp(tight)), fp(1), fp(tight), true},
		{"open left", 3, nil, fp(4), false},
		{"open right", 9, fp(4), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keyCollides(tt.key, tt.prev, tt.next); got != tt.want {
				t.Errorf("keyCollides(%v) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestNeighborKeys(t *testing.T) {
	markers := []store.Marker{
		{ID: "m1", SortKey: 1},
		{ID: "m2", SortKey: 2},
		{ID: "m3", SortKey: 3},
	}
	tests := []struct {
		name  string
		index int
		prev  *float64
		next  *float64
	}{
		{"front", 0, nil, fp(1)},
		{"middle", 1, fp(1), fp(2)},
		{"end", 3, fp(3), nil},
		{"clamped low", -5, nil, fp(1)},
		{"clamped high", 99, fp(3), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, next := neighborKeys(markers, tt.index)
			if !floatPtrEq(prev, tt.prev) || !floatPtrEq(next, tt.next) {
				t.Errorf("neighborKeys(%d) = (%v, %v), want (%v, %v)",
					tt.index, fmtPtr(prev), fmtPtr(next), fmtPtr(tt.prev), fmtPtr(tt.next))
			}
		})
	}

	prev, next := neighborKeys(nil, 0)
	if prev != nil || next != nil {
		t.Errorf("neighborKeys(empty) = (%v, %v), want nils", fmtPtr(prev), fmtPtr(next))
	}
}

func floatPtrEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fmtPtr(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
