package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"worldloom/internal/store"
)

// Marker, placement, target, and provenance vocabulary. Stored values are
// normalized to these tokens.
const (
	MarkerExplicit = "explicit"
	MarkerSemantic = "semantic"

	PlacementPlaced   = "placed"
	PlacementUnplaced = "unplaced"

	TargetEntity   = "entity"
	TargetRelation = "relation"
	TargetWorld    = "world"
)

// Service owns every world's timeline ledger: marker and operation
// lifecycles, snapshot caching, and rebuilds. A per-world guard serializes
// mutations and on-demand state computation, so acknowledged writes are
// visible to the next read.
type Service struct {
	store  store.Store
	logger *slog.Logger

	mu     sync.Mutex
	guards map[string]*worldGuard
}

type worldGuard struct {
	mu         sync.Mutex
	rebuilding atomic.Bool
}

func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger,
		guards: map[string]*worldGuard{},
	}
}

func (s *Service) guard(worldID string) *worldGuard {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guards[worldID]
	if !ok {
		g = &worldGuard{}
		s.guards[worldID] = g
	}
	return g
}

// DropWorld discards the per-world guard after a world is deleted.
func (s *Service) DropWorld(worldID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guards, worldID)
}

// InvalidateWorld bumps the world's ledger version and evicts every cached
// snapshot. Canonical entity/relation mutations call this: the baseline
// feeds every replayed state, so no cached point survives a base edit.
func (s *Service) InvalidateWorld(ctx context.Context, worldID string) error {
	g := s.guard(worldID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := s.store.BumpTimelineVersion(ctx, worldID); err != nil {
		return err
	}
	return s.store.DeleteWorldSnapshots(ctx, worldID)
}

// MarkerCreate is the input for creating a marker, optionally carrying its
// initial operations.
type MarkerCreate struct {
	Title           string            `json:"title"`
	Summary         string            `json:"summary,omitempty"`
	MarkerKind      string            `json:"marker_kind,omitempty"`
	PlacementStatus string            `json:"placement_status,omitempty"`
	DateLabel       string            `json:"date_label,omitempty"`
	DateSortValue   *float64          `json:"date_sort_value,omitempty"`
	SortKey         *float64          `json:"sort_key,omitempty"`
	Source          string            `json:"source,omitempty"`
	SourceNoteID    string            `json:"source_note_id,omitempty"`
	Operations      []OperationCreate `json:"operations,omitempty"`
}

type OperationCreate struct {
	OpType     string          `json:"op_type"`
	TargetKind string          `json:"target_kind"`
	TargetID   string          `json:"target_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OrderIndex *int            `json:"order_index,omitempty"`
}

type MarkerUpdate struct {
	Title           *string  `json:"title,omitempty"`
	Summary         *string  `json:"summary,omitempty"`
	MarkerKind      *string  `json:"marker_kind,omitempty"`
	PlacementStatus *string  `json:"placement_status,omitempty"`
	DateLabel       *string  `json:"date_label,omitempty"`
	DateSortValue   *float64 `json:"date_sort_value,omitempty"`
	SortKey         *float64 `json:"sort_key,omitempty"`
	SourceNoteID    *string  `json:"source_note_id,omitempty"`
}

type OperationUpdate struct {
	OpType     *string         `json:"op_type,omitempty"`
	TargetKind *string         `json:"target_kind,omitempty"`
	TargetID   *string         `json:"target_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OrderIndex *int            `json:"order_index,omitempty"`
}

// Reposition moves a marker: either to an explicit sort key (trusted as-is)
// or to an insertion index among the currently placed markers excluding the
// moved one. SortKey wins when both are set.
type Reposition struct {
	SortKey         *float64 `json:"sort_key,omitempty"`
	InsertIndex     *int     `json:"insert_index,omitempty"`
	PlacementStatus string   `json:"placement_status,omitempty"`
}

// MarkerDetail is a marker with its operations in application order.
type MarkerDetail struct {
	store.Marker
	Operations []store.Operation `json:"operations"`
}

func normalizeMarkerKind(kind string) (string, error) {
	switch n := store.NormalizeType(kind); n {
	case MarkerExplicit, MarkerSemantic:
		return n, nil
	default:
		return "", fmt.Errorf("marker_kind must be explicit or semantic: %w", store.ErrInvalidInput)
	}
}

func normalizePlacement(status string) (string, error) {
	switch n := store.NormalizeType(status); n {
	case PlacementPlaced, PlacementUnplaced:
		return n, nil
	default:
		return "", fmt.Errorf("placement_status must be placed or unplaced: %w", store.ErrInvalidInput)
	}
}

func normalizeTargetKind(kind string) (string, error) {
	switch n := store.NormalizeType(kind); n {
	case TargetEntity, TargetRelation, TargetWorld:
		return n, nil
	default:
		return "", fmt.Errorf("target_kind must be entity, relation, or world: %w", store.ErrInvalidInput)
	}
}

// ListMarkers returns the world's markers in timeline order, optionally with
// each marker's operations attached.
func (s *Service) ListMarkers(ctx context.Context, worldID string, withOps bool) ([]MarkerDetail, error) {
	markers, err := s.store.ListMarkers(ctx, worldID)
	if err != nil {
		return nil, err
	}

	details := make([]MarkerDetail, len(markers))
	for i, m := range markers {
		details[i] = MarkerDetail{Marker: m, Operations: []store.Operation{}}
	}
	if !withOps {
		return details, nil
	}

	ops, err := s.store.ListWorldOperations(ctx, worldID)
	if err != nil {
		return nil, err
	}
	byMarker := make(map[string][]store.Operation, len(markers))
	for _, op := range ops {
		byMarker[op.MarkerID] = append(byMarker[op.MarkerID], op)
	}
	for i := range details {
		if group, ok := byMarker[details[i].ID]; ok {
			details[i].Operations = group
		}
	}
	return details, nil
}

func (s *Service) GetMarker(ctx context.Context, worldID, markerID string) (*MarkerDetail, error) {
	m, err := s.store.GetMarker(ctx, worldID, markerID)
	if err != nil {
		return nil, err
	}
	ops, err := s.store.ListOperations(ctx, worldID, markerID)
	if err != nil {
		return nil, err
	}
	return &MarkerDetail{Marker: *m, Operations: ops}, nil
}

// CreateMarker inserts a marker and its inline operations as one change set.
// A semantic marker without an explicit sort key is parked unplaced; an
// explicit marker anchors to its date_sort_value; otherwise the marker lands
// at the end of the timeline.
func (s *Service) CreateMarker(ctx context.Context, worldID string, in MarkerCreate) (*MarkerDetail, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("marker title is required: %w", store.ErrInvalidInput)
	}

	kind := in.MarkerKind
	if kind == "" {
		kind = MarkerExplicit
	}
	kind, err := normalizeMarkerKind(kind)
	if err != nil {
		return nil, err
	}

	placement := in.PlacementStatus
	if placement == "" {
		placement = PlacementPlaced
	}
	placement, err = normalizePlacement(placement)
	if err != nil {
		return nil, err
	}

	source, err := store.NormalizeSource(in.Source)
	if err != nil {
		return nil, err
	}

	g := s.guard(worldID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := s.store.GetWorld(ctx, worldID); err != nil {
		return nil, err
	}

	// Semantic markers default to end-of-timeline placement until manually
	// positioned.
	if kind == MarkerSemantic && in.SortKey == nil {
		placement = PlacementUnplaced
	}

	var sortKey float64
	switch {
	case in.SortKey != nil:
		sortKey = *in.SortKey
	case kind == MarkerExplicit && in.DateSortValue != nil:
		sortKey = *in.DateSortValue
	default:
		max, err := s.store.MaxSortKey(ctx, worldID)
		if err != nil {
			return nil, err
		}
		sortKey = max + 1
	}

	now := time.Now().UTC()
	marker := store.Marker{
		ID:              uuid.NewString(),
		WorldID:         worldID,
		Title:           in.Title,
		Summary:         in.Summary,
		MarkerKind:      kind,
		PlacementStatus: placement,
		DateLabel:       in.DateLabel,
		DateSortValue:   in.DateSortValue,
		SortKey:         sortKey,
		Source:          source,
		SourceNoteID:    in.SourceNoteID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	ops := make([]store.Operation, 0, len(in.Operations))
	for i, oc := range in.Operations {
		op, err := buildOperation(worldID, marker.ID, oc, i, now)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	if err := s.store.CreateMarker(ctx, marker, ops); err != nil {
		return nil, err
	}
	if err := s.afterLedgerChange(ctx, worldID, marker.PlacementStatus == PlacementPlaced, marker.SortKey); err != nil {
		return nil, err
	}
	return s.GetMarker(ctx, worldID, marker.ID)
}

// buildOperation normalizes one inline operation. A missing order index
// defaults to the operation's position in the submitted slice.
func buildOperation(worldID, markerID string, in OperationCreate, index int, now time.Time) (store.Operation, error) {
	targetKind, err := normalizeTargetKind(in.TargetKind)
	if err != nil {
		return store.Operation{}, err
	}
	orderIndex := index
	if in.OrderIndex != nil {
		if *in.OrderIndex < 0 {
			return store.Operation{}, fmt.Errorf("order_index must not be negative: %w", store.ErrInvalidInput)
		}
		orderIndex = *in.OrderIndex
	}
	payload := in.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return store.Operation{
		ID:         uuid.NewString(),
		WorldID:    worldID,
		MarkerID:   markerID,
		OpType:     store.NormalizeType(in.OpType),
		TargetKind: targetKind,
		TargetID:   in.TargetID,
		Payload:    payload,
		OrderIndex: orderIndex,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// UpdateMarker applies the provided fields. Metadata-only updates keep every
// cached snapshot; a sort key or placement change evicts the suffix from the
// earlier of the old and new positions.
func (s *Service) UpdateMarker(ctx context.Context, worldID, markerID string, in MarkerUpdate) (*MarkerDetail, error) {
	g := s.guard(worldID)
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, err := s.store.GetMarker(ctx, worldID, markerID)
	if err != nil {
		return nil, err
	}

	m := *existing
	changed := false
	if in.Title != nil {
		m.Title = *in.Title
		changed = true
	}
	if in.Summary != nil {
		m.Summary = *in.Summary
		changed = true
	}
	if in.MarkerKind != nil {
		kind, err := normalizeMarkerKind(*in.MarkerKind)
		if err != nil {
			return nil, err
		}
		m.MarkerKind = kind
		changed = true
	}
	if in.PlacementStatus != nil {
		placement, err := normalizePlacement(*in.PlacementStatus)
		if err != nil {
			return nil, err
		}
		m.PlacementStatus = placement
		changed = true
	}
	if in.DateLabel != nil {
		m.DateLabel = *in.DateLabel
		changed = true
	}
	if in.DateSortValue != nil {
		v := *in.DateSortValue
		m.DateSortValue = &v
		changed = true
	}
	if in.SortKey != nil {
		m.SortKey = *in.SortKey
		changed = true
	}
	if in.SourceNoteID != nil {
		m.SourceNoteID = *in.SourceNoteID
		changed = true
	}
	if !changed {
		return s.GetMarker(ctx, worldID, markerID)
	}

	m.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateMarker(ctx, m); err != nil {
		return nil, err
	}

	if _, err := s.store.BumpTimelineVersion(ctx, worldID); err != nil {
		return nil, err
	}
	oldPlaced := existing.PlacementStatus == PlacementPlaced
	newPlaced := m.PlacementStatus == PlacementPlaced
	if existing.SortKey != m.SortKey || oldPlaced != newPlaced {
		if key, affects := evictionKey(existing.SortKey, oldPlaced, m.SortKey, newPlaced); affects {
			if err := s.store.DeleteSnapshotsFrom(ctx, worldID, key); err != nil {
				return nil, err
			}
		}
	}
	return s.GetMarker(ctx, worldID, markerID)
}

// DeleteMarker removes a marker and its operations, evicting every cached
// state at or after its position.
func (s *Service) DeleteMarker(ctx context.Context, worldID, markerID string) error {
	g := s.guard(worldID)
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, err := s.store.GetMarker(ctx, worldID, markerID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMarker(ctx, worldID, markerID); err != nil {
		return err
	}
	return s.afterLedgerChange(ctx, worldID, existing.PlacementStatus == PlacementPlaced, existing.SortKey)
}

// RepositionMarker moves a marker to an explicit sort key or an insertion
// index. When repeated midpoint insertion exhausts float precision, placed
// markers are renumbered to evenly spaced integers and the insertion retried
// once; callers never see the repair.
func (s *Service) RepositionMarker(ctx context.Context, worldID, markerID string, in Reposition) (*MarkerDetail, error) {
	placement := in.PlacementStatus
	if placement == "" {
		placement = PlacementPlaced
	}
	placement, err := normalizePlacement(placement)
	if err != nil {
		return nil, err
	}
	if in.SortKey == nil && in.InsertIndex == nil {
		return nil, fmt.Errorf("reposition requires sort_key or insert_index: %w", store.ErrInvalidInput)
	}

	g := s.guard(worldID)
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, err := s.store.GetMarker(ctx, worldID, markerID)
	if err != nil {
		return nil, err
	}

	var sortKey float64
	if in.SortKey != nil {
		sortKey = *in.SortKey
	} else {
		sortKey, err = s.resolveInsertKey(ctx, worldID, markerID, *in.InsertIndex)
		if err != nil {
			return nil, err
		}
	}

	m := *existing
	m.SortKey = sortKey
	m.PlacementStatus = placement
	m.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateMarker(ctx, m); err != nil {
		return nil, err
	}

	if _, err := s.store.BumpTimelineVersion(ctx, worldID); err != nil {
		return nil, err
	}
	oldPlaced := existing.PlacementStatus == PlacementPlaced
	if key, affects := evictionKey(existing.SortKey, oldPlaced, sortKey, placement == PlacementPlaced); affects {
		if err := s.store.DeleteSnapshotsFrom(ctx, worldID, key); err != nil {
			return nil, err
		}
	}
	return s.GetMarker(ctx, worldID, markerID)
}

// resolveInsertKey computes a sort key for the given insertion index among
// placed markers, renumbering once on key exhaustion.
func (s *Service) resolveInsertKey(ctx context.Context, worldID, movedID string, index int) (float64, error) {
	others, err := s.placedMarkersExcluding(ctx, worldID, movedID)
	if err != nil {
		return 0, err
	}
	prev, next := neighborKeys(others, index)
	key := ResolveSortKey(prev, next)
	if !keyCollides(key, prev, next) {
		return key, nil
	}

	s.logger.Info("sort keys exhausted, renumbering placed markers",
		"world_id", worldID, "marker_id", movedID)
	if err := s.renumberPlaced(ctx, worldID); err != nil {
		return 0, err
	}
	others, err = s.placedMarkersExcluding(ctx, worldID, movedID)
	if err != nil {
		return 0, err
	}
	prev, next = neighborKeys(others, index)
	key = ResolveSortKey(prev, next)
	if keyCollides(key, prev, next) {
		return 0, fmt.Errorf("resolving sort key for index %d after renumbering", index)
	}
	return key, nil
}

func (s *Service) placedMarkersExcluding(ctx context.Context, worldID, movedID string) ([]store.Marker, error) {
	markers, err := s.store.ListMarkers(ctx, worldID)
	if err != nil {
		return nil, err
	}
	placed := make([]store.Marker, 0, len(markers))
	for _, m := range markers {
		if m.PlacementStatus == PlacementPlaced && m.ID != movedID {
			placed = append(placed, m)
		}
	}
	return placed, nil
}

// renumberPlaced rewrites placed markers to evenly spaced integer keys.
// Relative order is preserved, so cached snapshots stay valid.
func (s *Service) renumberPlaced(ctx context.Context, worldID string) error {
	markers, err := s.store.ListMarkers(ctx, worldID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	i := 0
	for _, m := range markers {
		if m.PlacementStatus != PlacementPlaced {
			continue
		}
		key := float64(i)
		i++
		if m.SortKey == key {
			continue
		}
		m.SortKey = key
		m.UpdatedAt = now
		if err := s.store.UpdateMarker(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListOperations(ctx context.Context, worldID, markerID string) ([]store.Operation, error) {
	if _, err := s.store.GetMarker(ctx, worldID, markerID); err != nil {
		return nil, err
	}
	return s.store.ListOperations(ctx, worldID, markerID)
}

func (s *Service) GetOperation(ctx context.Context, worldID, markerID, opID string) (*store.Operation, error) {
	return s.store.GetOperation(ctx, worldID, markerID, opID)
}

func (s *Service) CreateOperation(ctx context.Context, worldID, markerID string, in OperationCreate) (*store.Operation, error) {
	g := s.guard(worldID)
	g.mu.Lock()
	defer g.mu.Unlock()

	marker, err := s.store.GetMarker(ctx, worldID, markerID)
	if err != nil {
		return nil, err
	}
	op, err := buildOperation(worldID, markerID, in, 0, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateOperation(ctx, op); err != nil {
		return nil, err
	}
	if err := s.afterLedgerChange(ctx, worldID, marker.PlacementStatus == PlacementPlaced, marker.SortKey); err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *Service) UpdateOperation(ctx context.Context, worldID, markerID, opID string, in OperationUpdate) (*store.Operation, error) {
	g := s.guard(worldID)
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, err := s.store.GetOperation(ctx, worldID, markerID, opID)
	if err != nil {
		return nil, err
	}

	op := *existing
	changed := false
	if in.OpType != nil {
		op.OpType = store.NormalizeType(*in.OpType)
		changed = true
	}
	if in.TargetKind != nil {
		targetKind, err := normalizeTargetKind(*in.TargetKind)
		if err != nil {
			return nil, err
		}
		op.TargetKind = targetKind
		changed = true
	}
	if in.TargetID != nil {
		op.TargetID = *in.TargetID
		changed = true
	}
	if in.Payload != nil {
		op.Payload = in.Payload
		changed = true
	}
	if in.OrderIndex != nil {
		if *in.OrderIndex < 0 {
			return nil, fmt.Errorf("order_index must not be negative: %w", store.ErrInvalidInput)
		}
		op.OrderIndex = *in.OrderIndex
		changed = true
	}
	if !changed {
		return existing, nil
	}

	op.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateOperation(ctx, op); err != nil {
		return nil, err
	}

	marker, err := s.store.GetMarker(ctx, worldID, markerID)
	if err != nil {
		return nil, err
	}
	if err := s.afterLedgerChange(ctx, worldID, marker.PlacementStatus == PlacementPlaced, marker.SortKey); err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *Service) DeleteOperation(ctx context.Context, worldID, markerID, opID string) error {
	g := s.guard(worldID)
	g.mu.Lock()
	defer g.mu.Unlock()

	marker, err := s.store.GetMarker(ctx, worldID, markerID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteOperation(ctx, worldID, markerID, opID); err != nil {
		return err
	}
	return s.afterLedgerChange(ctx, worldID, marker.PlacementStatus == PlacementPlaced, marker.SortKey)
}

// afterLedgerChange bumps the world's change version and, when the mutation
// touched a placed position, evicts cached states at or after it.
func (s *Service) afterLedgerChange(ctx context.Context, worldID string, placed bool, sortKey float64) error {
	if _, err := s.store.BumpTimelineVersion(ctx, worldID); err != nil {
		return err
	}
	if !placed {
		return nil
	}
	return s.store.DeleteSnapshotsFrom(ctx, worldID, sortKey)
}

// evictionKey returns the earliest placed position affected by a marker
// moving between the old and new placements, and whether any placed position
// is affected at all.
func evictionKey(oldKey float64, oldPlaced bool, newKey float64, newPlaced bool) (float64, bool) {
	switch {
	case oldPlaced && newPlaced:
		return math.Min(oldKey, newKey), true
	case oldPlaced:
		return oldKey, true
	case newPlaced:
		return newKey, true
	default:
		return 0, false
	}
}
