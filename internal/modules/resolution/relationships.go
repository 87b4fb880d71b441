package resolution

import (
	"context"
	"sort"

	redisclient "github.com/yungbote/videograph-backend/internal/clients/redis"
	"github.com/yungbote/videograph-backend/internal/domain"
	"github.com/yungbote/videograph-backend/internal/modules/resolution/prompts"
)

type conflictPair struct {
	newTriple      domain.Triple
	existingTriple domain.Triple
	reason         string
}

// relationshipPlan partitions one video's relationship batch into what gets
// written, what is suppressed as a duplicate, and what gets flagged for
// review. A triple never appears both in toWrite and in conflicts.
type relationshipPlan struct {
	toWrite    []domain.Triple
	duplicates int
	conflicts  []conflictPair
	skipped    int
}

// resolveRelationships rewrites the batch through the entity mappings and
// classifies each triple against existing relationships touching its mapped
// endpoints. Storage errors are fatal; judge errors degrade to "novel"
// so ingestion keeps moving (MERGE keeps the fallback harmless).
func resolveRelationships(
	ctx context.Context,
	deps MergeDeps,
	rels []domain.Triple,
	mappings map[string]domain.EntityMapping,
	trace map[string]any,
) (relationshipPlan, error) {
	plan := relationshipPlan{}
	if len(rels) == 0 {
		return plan, nil
	}

	canonical := func(name string) string {
		if m, ok := mappings[name]; ok {
			return m.CanonicalName
		}
		return name
	}

	// Rewrite endpoints through the mapping and drop invalid or repeated
	// triples. The same logical fact twice in one video is one write.
	rewritten := make([]domain.Triple, 0, len(rels))
	seen := map[string]bool{}
	for _, r := range rels {
		t := domain.Triple{
			Subject:  canonical(r.Subject),
			Relation: r.Relation,
			Object:   canonical(r.Object),
		}
		if !t.Valid() {
			plan.skipped++
			continue
		}
		key := t.Serialize()
		if seen[key] {
			continue
		}
		seen[key] = true
		rewritten = append(rewritten, t)
	}

	// Partition by prior graph state. The lookup covers every edge sharing
	// an endpoint because contradictions need not share both (two subjects
	// claiming the same object). Exact triple matches are duplicates without
	// a judge call; only semantically ambiguous overlaps are judged.
	var toJudge []judgedRelationship
	existingUnion := map[string]domain.Triple{}
	for _, t := range rewritten {
		existing, err := deps.Store.RelationshipsSharingEndpoints(ctx, t.Subject, t.Object)
		if err != nil {
			return plan, err
		}
		if len(existing) == 0 {
			plan.toWrite = append(plan.toWrite, t)
			continue
		}

		exactDuplicate := false
		for _, ex := range existing {
			if ex.Subject == t.Subject && ex.Object == t.Object &&
				foldName(ex.Relation) == foldName(t.Relation) {
				exactDuplicate = true
				break
			}
		}
		if exactDuplicate {
			plan.duplicates++
			continue
		}

		toJudge = append(toJudge, judgedRelationship{triple: t, existing: existing})
		for _, ex := range existing {
			existingUnion[ex.Serialize()] = ex
		}
	}

	if len(toJudge) == 0 {
		return plan, nil
	}
	if deps.AI == nil {
		// No judge wired: conservative fallback is novel, not conflict.
		for _, j := range toJudge {
			plan.toWrite = append(plan.toWrite, j.triple)
		}
		return plan, nil
	}

	obj, ok := judgeRelationships(ctx, deps, toJudge, existingUnion, mappings)
	if !ok {
		trace["relationship_judge_failed"] = true
		for _, j := range toJudge {
			plan.toWrite = append(plan.toWrite, j.triple)
		}
		return plan, nil
	}

	judgedKeys := map[string]bool{}
	existingByTriple := map[string]map[string]bool{}
	for _, j := range toJudge {
		key := j.triple.Serialize()
		judgedKeys[key] = true
		existingByTriple[key] = map[string]bool{}
		for _, ex := range j.existing {
			existingByTriple[key][ex.Serialize()] = true
		}
	}

	duplicateKeys := map[string]bool{}
	for _, item := range sliceFromAny(obj["duplicates"]) {
		entry := mapFromAny(item)
		if entry == nil {
			continue
		}
		t, tok := tripleFromAny(entry["new_relationship"])
		if !tok || !judgedKeys[t.Serialize()] {
			continue
		}
		duplicateKeys[t.Serialize()] = true
	}

	conflictKeys := map[string]bool{}
	flaggedPairs := map[string]bool{}
	for _, item := range sliceFromAny(obj["conflicts"]) {
		entry := mapFromAny(item)
		if entry == nil {
			continue
		}
		newT, newOK := tripleFromAny(entry["new_relationship"])
		exT, exOK := tripleFromAny(entry["existing_relationship"])
		if !newOK || !exOK {
			continue
		}
		newKey := newT.Serialize()
		if !judgedKeys[newKey] || duplicateKeys[newKey] {
			continue
		}
		// Trust only conflicts against relationships the endpoint lookup
		// actually returned for this triple.
		if !existingByTriple[newKey][exT.Serialize()] {
			continue
		}
		pairKey := newKey + "|" + exT.Serialize()
		if flaggedPairs[pairKey] {
			continue
		}
		flaggedPairs[pairKey] = true
		conflictKeys[newKey] = true
		plan.conflicts = append(plan.conflicts, conflictPair{
			newTriple:      newT,
			existingTriple: exT,
			reason:         stringFromAny(entry["reason"]),
		})
	}

	// Updates are already realized by the mapping rewrite; keep a count for
	// operators reading the trace.
	if updates := sliceFromAny(obj["updates"]); len(updates) > 0 {
		trace["relationship_updates"] = len(updates)
	}

	for _, j := range toJudge {
		key := j.triple.Serialize()
		switch {
		case duplicateKeys[key]:
			plan.duplicates++
		case conflictKeys[key]:
			// Withheld: the edge is only written after review accepts it.
		default:
			plan.toWrite = append(plan.toWrite, j.triple)
		}
	}
	return plan, nil
}

type judgedRelationship struct {
	triple   domain.Triple
	existing []domain.Triple
}

func judgeRelationships(
	ctx context.Context,
	deps MergeDeps,
	toJudge []judgedRelationship,
	existingUnion map[string]domain.Triple,
	mappings map[string]domain.EntityMapping,
) (map[string]any, bool) {
	newTriples := make([][3]string, 0, len(toJudge))
	for _, j := range toJudge {
		newTriples = append(newTriples, [3]string{j.triple.Subject, j.triple.Relation, j.triple.Object})
	}
	existingTriples := make([][3]string, 0, len(existingUnion))
	for _, ex := range existingUnion {
		existingTriples = append(existingTriples, [3]string{ex.Subject, ex.Relation, ex.Object})
	}
	sortTriples(newTriples)
	sortTriples(existingTriples)

	mappingView := map[string]string{}
	for newName, m := range mappings {
		mappingView[newName] = m.CanonicalName
	}

	newJSON := mustJSON(newTriples)
	existingJSON := mustJSON(existingTriples)
	mappingsJSON := mustJSON(mappingView)

	cacheKey := redisclient.Key(string(prompts.RelationshipResolution), newJSON, existingJSON, mappingsJSON)
	if obj, hit := deps.Cache.Get(ctx, cacheKey); hit {
		return obj, true
	}

	p, err := prompts.Build(prompts.RelationshipResolution, prompts.Input{
		NewRelationshipsJSON:      newJSON,
		ExistingRelationshipsJSON: existingJSON,
		EntityMappingsJSON:        mappingsJSON,
	})
	if err != nil {
		deps.Log.Warn("relationship resolution prompt build failed", "error", err)
		return nil, false
	}

	obj, err := deps.AI.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
	if err != nil {
		deps.Log.Warn("relationship judge call failed (treating batch as novel)",
			"error", err, "new_relationships", len(toJudge))
		return nil, false
	}
	deps.Cache.Put(ctx, cacheKey, obj)
	return obj, true
}

func sortTriples(triples [][3]string) {
	sort.Slice(triples, func(i, j int) bool {
		for k := 0; k < 3; k++ {
			if triples[i][k] != triples[j][k] {
				return triples[i][k] < triples[j][k]
			}
		}
		return false
	})
}
