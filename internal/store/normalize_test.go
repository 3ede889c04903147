package store

import (
	"math"
	"testing"
)

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"character", "character"},
		{"Character", "character"},
		{"  ALLY OF  ", "ally_of"},
		{"ally\tof", "ally_of"},
		{"Entity  Create", "entity_create"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeType(tt.in); got != tt.want {
			t.Errorf("NormalizeType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTypes(t *testing.T) {
	got := NormalizeTypes([]string{"Character", "", "  ", "Located In"})
	if len(got) != 2 || got[0] != "character" || got[1] != "located_in" {
		t.Errorf("NormalizeTypes = %v, want normalized non-empty entries", got)
	}
}

func TestNormalizeSource(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"empty defaults to user", "", "user", false},
		{"user", "user", "user", false},
		{"ai upper", "AI", "ai", false},
		{"padded", "  user ", "user", false},
		{"unknown", "robot", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSource(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NormalizeSource(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeSource(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeSource(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClampWeight(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.7, 0.7},
		{0, 0},
		{1, 1},
		{-0.3, 0},
		{4.2, 1},
		{math.NaN(), 0.5},
		{math.Inf(1), 0.5},
		{math.Inf(-1), 0.5},
	}

	for _, tt := range tests {
		if got := ClampWeight(tt.in); got != tt.want {
			t.Errorf("ClampWeight(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
