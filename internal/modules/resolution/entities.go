package resolution

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	redisclient "github.com/yungbote/videograph-backend/internal/clients/redis"
	"github.com/yungbote/videograph-backend/internal/data/graph"
	"github.com/yungbote/videograph-backend/internal/domain"
	"github.com/yungbote/videograph-backend/internal/modules/resolution/prompts"
)

// confidenceFloor is the acceptance threshold for judge-proposed entity
// merges. Mappings at or below it are discarded: leaving duplicates
// unmerged is recoverable, merging distinct entities is not.
const confidenceFloor = 0.8

type entityBrief struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// resolveEntities produces the entity mappings for one video batch. Exact
// case-insensitive matches resolve locally with confidence 1.0; everything
// else goes to the judge in bounded chunks. Judge failure or malformed
// output yields no mappings for the affected chunk and never fails the
// merge.
func resolveEntities(
	ctx context.Context,
	deps MergeDeps,
	newEntities []domain.Entity,
	existing []graph.EntityRef,
	trace map[string]any,
) map[string]domain.EntityMapping {
	mappings := map[string]domain.EntityMapping{}
	if len(newEntities) == 0 || len(existing) == 0 {
		return mappings
	}

	existingByName := map[string]bool{}
	for _, ref := range existing {
		existingByName[ref.Name] = true
	}

	judged := make([]candidateSet, 0, len(newEntities))
	seen := map[string]bool{}
	for _, e := range newEntities {
		if e.Name == "" || seen[e.Name] {
			continue
		}
		seen[e.Name] = true

		set := matchCandidates(e, existing, deps.maxCandidates(), deps.fullSetLimit())
		if set.exact != "" {
			// Same spelling means the node already exists and MERGE will
			// match it; only a case variant needs an actual mapping.
			if set.exact != e.Name {
				mappings[e.Name] = domain.EntityMapping{
					NewName:       e.Name,
					CanonicalName: set.exact,
					Confidence:    1.0,
					Reason:        "exact case-insensitive match",
				}
			}
			continue
		}
		if len(set.candidates) > 0 {
			judged = append(judged, set)
		}
	}

	if len(judged) == 0 || deps.AI == nil {
		trace["entity_judge_batches"] = 0
		return mappings
	}

	batchSize := deps.batchSize()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deps.maxParallel())

	batches := 0
	for start := 0; start < len(judged); start += batchSize {
		end := start + batchSize
		if end > len(judged) {
			end = len(judged)
		}
		chunk := judged[start:end]
		batches++

		g.Go(func() error {
			obj, ok := judgeEntityChunk(gctx, deps, chunk)
			if !ok {
				mu.Lock()
				trace["entity_judge_failures"] = intTrace(trace, "entity_judge_failures") + 1
				mu.Unlock()
				return nil
			}

			chunkNames := map[string]bool{}
			for _, set := range chunk {
				chunkNames[set.entity.Name] = true
			}

			for _, item := range sliceFromAny(obj["resolutions"]) {
				res := mapFromAny(item)
				if res == nil {
					continue
				}
				m := domain.EntityMapping{
					NewName:       stringFromAny(res["new_entity"]),
					CanonicalName: stringFromAny(res["existing_entity"]),
					Confidence:    floatFromAny(res["confidence"]),
					Reason:        stringFromAny(res["reason"]),
				}
				if m.NewName == "" || m.CanonicalName == "" || m.NewName == m.CanonicalName {
					continue
				}
				if m.Confidence <= confidenceFloor {
					continue
				}
				// Trust only mappings about entities we actually asked
				// about, onto entities that actually exist.
				if !chunkNames[m.NewName] || !existingByName[m.CanonicalName] {
					continue
				}
				mu.Lock()
				if prev, dup := mappings[m.NewName]; !dup || m.Confidence > prev.Confidence {
					mappings[m.NewName] = m
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	trace["entity_judge_batches"] = batches

	return mappings
}

// judgeEntityChunk runs one judge call (cache-aside when a cache is wired).
// A false return means "no verdict": the caller proceeds without mappings.
func judgeEntityChunk(ctx context.Context, deps MergeDeps, chunk []candidateSet) (map[string]any, bool) {
	newBriefs := make([]entityBrief, 0, len(chunk))
	candidateByName := map[string]entityBrief{}
	for _, set := range chunk {
		newBriefs = append(newBriefs, entityBrief{
			Name: set.entity.Name,
			Type: string(set.entity.Type),
		})
		for _, ref := range set.candidates {
			candidateByName[ref.Name] = entityBrief{Name: ref.Name, Type: string(ref.Type)}
		}
	}
	existingBriefs := make([]entityBrief, 0, len(candidateByName))
	for _, b := range candidateByName {
		existingBriefs = append(existingBriefs, b)
	}
	sortBriefs(existingBriefs)

	newJSON := mustJSON(newBriefs)
	existingJSON := mustJSON(existingBriefs)

	cacheKey := redisclient.Key(string(prompts.EntityResolution), newJSON, existingJSON)
	if obj, hit := deps.Cache.Get(ctx, cacheKey); hit {
		return obj, true
	}

	p, err := prompts.Build(prompts.EntityResolution, prompts.Input{
		NewEntitiesJSON:      newJSON,
		ExistingEntitiesJSON: existingJSON,
	})
	if err != nil {
		deps.Log.Warn("entity resolution prompt build failed", "error", err)
		return nil, false
	}

	obj, err := deps.AI.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
	if err != nil {
		deps.Log.Warn("entity resolution judge call failed (continuing unmerged)",
			"error", err, "new_entities", len(chunk))
		return nil, false
	}
	deps.Cache.Put(ctx, cacheKey, obj)
	return obj, true
}

func sortBriefs(briefs []entityBrief) {
	sort.Slice(briefs, func(i, j int) bool { return briefs[i].Name < briefs[j].Name })
}

func intTrace(trace map[string]any, key string) int {
	if v, ok := trace[key].(int); ok {
		return v
	}
	return 0
}
