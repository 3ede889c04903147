package store

import (
	"context"
	"errors"
)

// ErrNotFound is wrapped by every lookup that misses. Callers classify with
// errors.Is and map it to their surface's not-found shape.
var ErrNotFound = errors.New("not found")

// ErrInvalidInput is wrapped by service-layer validation failures, mapped to
// the surface's bad-request shape.
var ErrInvalidInput = errors.New("invalid input")

// Store is the persistence contract shared by the sqlite and postgres
// backends. Get methods return ErrNotFound-wrapped errors on a miss; Update
// and Delete methods do the same when no row matched. List methods return
// empty slices, never nil.
type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	CreateWorld(ctx context.Context, w World) error
	GetWorld(ctx context.Context, id string) (*World, error)
	ListWorlds(ctx context.Context) ([]World, error)
	UpdateWorld(ctx context.Context, w World) error
	DeleteWorld(ctx context.Context, id string) error
	BumpTimelineVersion(ctx context.Context, worldID string) (int64, error)

	CreateEntity(ctx context.Context, e Entity) error
	GetEntity(ctx context.Context, worldID, id string) (*Entity, error)
	ListEntities(ctx context.Context, worldID string, f EntityFilter) ([]Entity, error)
	UpdateEntity(ctx context.Context, e Entity) error
	DeleteEntity(ctx context.Context, worldID, id string) error

	CreateRelation(ctx context.Context, r Relation) error
	GetRelation(ctx context.Context, worldID, id string) (*Relation, error)
	ListRelations(ctx context.Context, worldID string, f RelationFilter) ([]Relation, error)
	UpdateRelation(ctx context.Context, r Relation) error
	DeleteRelation(ctx context.Context, worldID, id string) error

	CreateMarker(ctx context.Context, m Marker, ops []Operation) error
	GetMarker(ctx context.Context, worldID, id string) (*Marker, error)
	ListMarkers(ctx context.Context, worldID string) ([]Marker, error)
	UpdateMarker(ctx context.Context, m Marker) error
	DeleteMarker(ctx context.Context, worldID, id string) error
	MaxSortKey(ctx context.Context, worldID string) (float64, error)

	CreateOperation(ctx context.Context, op Operation) error
	GetOperation(ctx context.Context, worldID, markerID, id string) (*Operation, error)
	ListOperations(ctx context.Context, worldID, markerID string) ([]Operation, error)
	ListWorldOperations(ctx context.Context, worldID string) ([]Operation, error)
	UpdateOperation(ctx context.Context, op Operation) error
	DeleteOperation(ctx context.Context, worldID, markerID, id string) error

	GetSnapshot(ctx context.Context, worldID, markerID string) (*Snapshot, error)
	ListSnapshotSummaries(ctx context.Context, worldID string) ([]SnapshotSummary, error)
	UpsertSnapshot(ctx context.Context, s Snapshot) error
	DeleteSnapshot(ctx context.Context, worldID, markerID string) error
	DeleteSnapshotsFrom(ctx context.Context, worldID string, sortKey float64) error
	DeleteWorldSnapshots(ctx context.Context, worldID string) error
	PruneSnapshots(ctx context.Context, worldID string) (int64, error)
}
