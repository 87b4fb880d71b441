package graph

import (
	"context"
	"errors"

	"github.com/yungbote/videograph-backend/internal/domain"
)

// ErrEntityNotFound reports a relationship upsert whose subject or object
// has no Entity node. The merge orchestrator counts these as skipped input
// rather than retrying them.
var ErrEntityNotFound = errors.New("graph: entity not found")

// EntityRef is the slim projection the candidate matcher works against.
type EntityRef struct {
	Name string
	Type domain.EntityType
}

type GraphStats struct {
	TotalNodes         int64 `json:"total_nodes"`
	TotalRelationships int64 `json:"total_relationships"`
	Videos             int64 `json:"videos"`
	Entities           int64 `json:"entities"`
	ConflictFlags      int64 `json:"conflict_flags"`
}

type ResolutionStats struct {
	PendingConflicts  int64 `json:"pending_conflicts"`
	ResolvedConflicts int64 `json:"resolved_conflicts"`
	MentionedEntities int64 `json:"mentioned_entities"`
}

// Store is the idempotent key-based persistence surface of the resolution
// engine. Every mutation has MERGE semantics: repeating a call with the same
// natural key refreshes properties but never creates a second node or edge.
// No resolution logic lives here.
type Store interface {
	InitSchema(ctx context.Context) error

	UpsertVideo(ctx context.Context, videoID string) error
	UpsertEntity(ctx context.Context, e domain.Entity) (created bool, err error)
	LinkVideoEntity(ctx context.Context, videoID, entityName string) error
	EntityExists(ctx context.Context, name string) (bool, error)
	ListEntities(ctx context.Context) ([]EntityRef, error)
	SearchEntities(ctx context.Context, query string, limit int) ([]domain.Entity, error)

	// UpsertRelationship returns ErrEntityNotFound when either endpoint is
	// missing from the graph.
	UpsertRelationship(ctx context.Context, t domain.Triple, videoID string) (created bool, err error)
	// RelationshipsSharingEndpoints returns existing edges touching either
	// name. Contradictions can share a single endpoint (two subjects both
	// claiming to own one object), so the lookup is wider than the exact
	// (subject, object) pair.
	RelationshipsSharingEndpoints(ctx context.Context, subject, object string) ([]domain.Triple, error)

	CreateConflictFlag(ctx context.Context, videoID string, newRel, existingRel domain.Triple, reason string) (created bool, err error)
	GetConflictFlags(ctx context.Context, status domain.ConflictStatus) ([]domain.ConflictFlag, error)
	GetConflictFlag(ctx context.Context, videoID, newRel, existingRel string) (*domain.ConflictFlag, error)
	UpdateConflictFlag(ctx context.Context, videoID, newRel, existingRel string, resolution domain.ConflictResolution, resolvedBy string) (bool, error)

	Stats(ctx context.Context) (GraphStats, error)
	ResolutionStats(ctx context.Context, videoID string) (ResolutionStats, error)
}
