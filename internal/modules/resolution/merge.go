package resolution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redisclient "github.com/yungbote/videograph-backend/internal/clients/redis"
	"github.com/yungbote/videograph-backend/internal/data/graph"
	"github.com/yungbote/videograph-backend/internal/domain"
	"github.com/yungbote/videograph-backend/internal/platform/envutil"
	"github.com/yungbote/videograph-backend/internal/platform/logger"
	"github.com/yungbote/videograph-backend/internal/platform/openai"
)

// MergeDeps wires the orchestrator. Store and Log are required. AI is the
// judge: leaving it nil disables semantic resolution (exact matching and
// idempotent upserts still apply). Cache is an optional judge memo.
type MergeDeps struct {
	Log   *logger.Logger
	Store graph.Store
	AI    openai.Client
	Cache *redisclient.JudgeCache

	// Zero values fall back to KG_RESOLUTION_* env vars, then defaults.
	MaxCandidates int
	FullSetLimit  int
	BatchSize     int
	MaxParallel   int
}

func (d MergeDeps) maxCandidates() int {
	if d.MaxCandidates > 0 {
		return d.MaxCandidates
	}
	return envutil.Int("KG_RESOLUTION_MAX_CANDIDATES", defaultMaxCandidates)
}

func (d MergeDeps) fullSetLimit() int {
	if d.FullSetLimit > 0 {
		return d.FullSetLimit
	}
	return envutil.Int("KG_RESOLUTION_FULL_SET_LIMIT", defaultFullSetLimit)
}

func (d MergeDeps) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return envutil.Int("KG_RESOLUTION_BATCH_SIZE", 25)
}

func (d MergeDeps) maxParallel() int {
	if d.MaxParallel > 0 {
		return d.MaxParallel
	}
	return envutil.Int("KG_RESOLUTION_MAX_PARALLEL", 4)
}

type MergeInput struct {
	VideoID       string
	Entities      []domain.Entity
	Relationships []domain.Triple
}

// ResolveAndMergeVideoGraph is the per-video entry point: resolve entity
// duplicates against the existing graph, rewrite and classify the
// relationship batch, then apply everything through idempotent upserts.
//
// The call is re-runnable: submitting the same input again yields zero
// upserted counts and no duplicate conflict flags. Judge failures degrade
// to "no resolution" and never abort the merge; storage failures are fatal
// and surface alongside stats that reflect exactly what was persisted.
func ResolveAndMergeVideoGraph(ctx context.Context, deps MergeDeps, in MergeInput) (domain.MergeStats, error) {
	stats := domain.MergeStats{
		VideoID:        in.VideoID,
		EntityMappings: map[string]string{},
		Trace:          map[string]any{},
	}
	if deps.Log == nil || deps.Store == nil {
		return stats, fmt.Errorf("resolution: missing deps")
	}
	if strings.TrimSpace(in.VideoID) == "" {
		return stats, fmt.Errorf("resolution: missing video_id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := deps.Log.With("module", "resolution", "video_id", in.VideoID)

	if len(in.Entities) == 0 && len(in.Relationships) == 0 {
		return stats, nil
	}

	if err := deps.Store.UpsertVideo(ctx, in.VideoID); err != nil {
		return stats, fmt.Errorf("resolution: upsert video: %w", err)
	}

	existing, err := deps.Store.ListEntities(ctx)
	if err != nil {
		return stats, fmt.Errorf("resolution: list entities: %w", err)
	}

	mappings := resolveEntities(ctx, deps, in.Entities, existing, stats.Trace)
	for newName, m := range mappings {
		stats.EntityMappings[newName] = m.CanonicalName
	}

	// Upsert only entities that did not resolve onto an existing canonical
	// node; mapped ones keep their provenance via a MENTIONS edge instead.
	seenEntities := map[string]bool{}
	for _, e := range in.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" || seenEntities[name] {
			continue
		}
		seenEntities[name] = true

		mentionTarget := name
		if m, ok := mappings[name]; ok {
			mentionTarget = m.CanonicalName
		} else {
			e.Name = name
			e.Type = domain.NormalizeEntityType(string(e.Type))
			created, err := deps.Store.UpsertEntity(ctx, e)
			if err != nil {
				return stats, fmt.Errorf("resolution: upsert entity %q: %w", name, err)
			}
			if created {
				stats.UpsertedEntities++
			}
		}
		if err := deps.Store.LinkVideoEntity(ctx, in.VideoID, mentionTarget); err != nil {
			return stats, fmt.Errorf("resolution: link mention %q: %w", mentionTarget, err)
		}
	}

	plan, err := resolveRelationships(ctx, deps, in.Relationships, mappings, stats.Trace)
	if err != nil {
		return stats, fmt.Errorf("resolution: classify relationships: %w", err)
	}
	stats.DuplicateRelationships = plan.duplicates
	stats.SkippedRelationships = plan.skipped

	for _, t := range plan.toWrite {
		created, err := deps.Store.UpsertRelationship(ctx, t, in.VideoID)
		if err != nil {
			if errors.Is(err, graph.ErrEntityNotFound) {
				log.Warn("relationship references unknown entity, skipping", "triple", t.Serialize())
				stats.SkippedRelationships++
				continue
			}
			return stats, fmt.Errorf("resolution: upsert relationship %s: %w", t.Serialize(), err)
		}
		if created {
			stats.UpsertedRelationships++
		}
	}

	for _, c := range plan.conflicts {
		created, err := deps.Store.CreateConflictFlag(ctx, in.VideoID, c.newTriple, c.existingTriple, c.reason)
		if err != nil {
			return stats, fmt.Errorf("resolution: create conflict flag: %w", err)
		}
		if created {
			stats.ConflictsCreated++
		}
	}

	log.Info("video graph merged",
		"entities_mapped", len(stats.EntityMappings),
		"entities_upserted", stats.UpsertedEntities,
		"relationships_upserted", stats.UpsertedRelationships,
		"duplicates", stats.DuplicateRelationships,
		"conflicts_created", stats.ConflictsCreated,
		"skipped", stats.SkippedRelationships,
	)
	return stats, nil
}
