package resolution

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/videograph-backend/internal/data/graph"
	"github.com/yungbote/videograph-backend/internal/domain"
	"github.com/yungbote/videograph-backend/internal/platform/logger"
)

// ReviewDeps wires the operator-facing conflict workflow.
type ReviewDeps struct {
	Log   *logger.Logger
	Store graph.Store
}

// PendingConflicts lists flags awaiting an operator decision.
func PendingConflicts(ctx context.Context, deps ReviewDeps) ([]domain.ConflictFlag, error) {
	if deps.Log == nil || deps.Store == nil {
		return nil, fmt.Errorf("resolution: missing deps")
	}
	return deps.Store.GetConflictFlags(ctx, domain.ConflictPendingReview)
}

// ResolveOutcome reports what happened to a single flag.
type ResolveOutcome struct {
	Found bool
	// AlreadyResolved means the flag had a decision before this call; the
	// original resolution and attribution are preserved in Flag.
	AlreadyResolved bool
	Flag            *domain.ConflictFlag
}

// ResolveConflict records an operator decision on the flag identified by its
// natural key. A missing flag is reported, not an error; a flag that is
// already resolved keeps its first decision.
func ResolveConflict(ctx context.Context, deps ReviewDeps, videoID, newRel, existingRel string, resolution domain.ConflictResolution, resolvedBy string) (ResolveOutcome, error) {
	if deps.Log == nil || deps.Store == nil {
		return ResolveOutcome{}, fmt.Errorf("resolution: missing deps")
	}
	if strings.TrimSpace(resolvedBy) == "" {
		return ResolveOutcome{}, fmt.Errorf("resolution: missing resolved_by")
	}
	if _, err := domain.ParseConflictResolution(string(resolution)); err != nil {
		return ResolveOutcome{}, err
	}
	log := deps.Log.With("module", "resolution", "video_id", videoID)

	flag, err := deps.Store.GetConflictFlag(ctx, videoID, newRel, existingRel)
	if err != nil {
		return ResolveOutcome{}, fmt.Errorf("resolution: load conflict flag: %w", err)
	}
	if flag == nil {
		log.Warn("conflict flag not found", "new_relationship", newRel)
		return ResolveOutcome{}, nil
	}
	if flag.Status == domain.ConflictResolved {
		return ResolveOutcome{Found: true, AlreadyResolved: true, Flag: flag}, nil
	}

	updated, err := deps.Store.UpdateConflictFlag(ctx, videoID, newRel, existingRel, resolution, resolvedBy)
	if err != nil {
		return ResolveOutcome{}, fmt.Errorf("resolution: update conflict flag: %w", err)
	}
	flag, err = deps.Store.GetConflictFlag(ctx, videoID, newRel, existingRel)
	if err != nil {
		return ResolveOutcome{}, fmt.Errorf("resolution: reload conflict flag: %w", err)
	}
	if !updated {
		// Lost a race to another reviewer; report their decision.
		return ResolveOutcome{Found: true, AlreadyResolved: true, Flag: flag}, nil
	}
	log.Info("conflict resolved", "resolution", string(resolution), "resolved_by", resolvedBy)
	return ResolveOutcome{Found: true, Flag: flag}, nil
}

// ApplyResolution writes back the relationship a resolved flag withheld.
// Only use_new and merge decisions have anything to apply; keep_existing
// and unresolved flags are no-ops. The write is the same idempotent upsert
// the merge path uses, so applying twice creates nothing new.
func ApplyResolution(ctx context.Context, deps ReviewDeps, flag domain.ConflictFlag) (created bool, err error) {
	if deps.Log == nil || deps.Store == nil {
		return false, fmt.Errorf("resolution: missing deps")
	}
	if flag.Status != domain.ConflictResolved {
		return false, nil
	}
	if flag.Resolution != domain.ResolutionUseNew && flag.Resolution != domain.ResolutionMerge {
		return false, nil
	}
	t, err := domain.ParseTriple(flag.NewRelationship)
	if err != nil {
		return false, fmt.Errorf("resolution: flag holds malformed relationship: %w", err)
	}
	created, err = deps.Store.UpsertRelationship(ctx, t, flag.VideoID)
	if err != nil {
		return false, fmt.Errorf("resolution: apply %s: %w", flag.NewRelationship, err)
	}
	if created {
		deps.Log.Info("resolved relationship applied", "video_id", flag.VideoID, "triple", flag.NewRelationship)
	}
	return created, nil
}
