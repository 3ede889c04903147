package store

import (
	"fmt"
	"math"
	"strings"
)

// Provenance tokens for records and markers: created by a person or by an
// AI-assisted flow.
const (
	SourceUser = "user"
	SourceAI   = "ai"
)

// NormalizeSource canonicalizes a provenance token, defaulting empty input
// to SourceUser.
func NormalizeSource(s string) (string, error) {
	switch n := NormalizeType(s); n {
	case "":
		return SourceUser, nil
	case SourceUser, SourceAI:
		return n, nil
	default:
		return "", fmt.Errorf("source must be user or ai: %w", ErrInvalidInput)
	}
}

// NormalizeType canonicalizes a vocabulary token: lowercase, trimmed,
// whitespace runs collapsed to single underscores. Applied to entity and
// relation types, subtypes, op types, target kinds, marker kinds, and
// placement statuses before they are stored or compared.
func NormalizeType(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, "_")
}

// NormalizeTypes canonicalizes a vocabulary list, dropping entries that
// normalize to empty.
func NormalizeTypes(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := NormalizeType(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ClampWeight coerces a relation weight into [0, 1]. Non-finite values fall
// back to the 0.5 default.
func ClampWeight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0.5
	}
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
