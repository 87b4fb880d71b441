package graph

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/videograph-backend/internal/domain"
	"github.com/yungbote/videograph-backend/internal/platform/envutil"
	"github.com/yungbote/videograph-backend/internal/platform/logger"
	"github.com/yungbote/videograph-backend/internal/platform/neo4jdb"
)

// Neo4jStore implements Store against a bolt-connected property graph.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger

	// Set after the first ProcedureNotFound so later relationship upserts go
	// straight to the generic fallback without re-probing APOC.
	apocUnavailable atomic.Bool
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) (*Neo4jStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	if log == nil {
		return nil, fmt.Errorf("graph: logger required")
	}
	return &Neo4jStore{
		client: client,
		log:    log.With("store", "Neo4jGraph"),
	}, nil
}

func (s *Neo4jStore) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
}

func (s *Neo4jStore) readSession(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
}

// InitSchema creates uniqueness constraints and lookup indexes. Best-effort:
// a failing statement is logged and skipped so older server editions still
// come up.
func (s *Neo4jStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE CONSTRAINT entity_name_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.name IS UNIQUE`,
		`CREATE CONSTRAINT video_id_unique IF NOT EXISTS FOR (v:Video) REQUIRE v.video_id IS UNIQUE`,
		`CREATE INDEX conflict_flag_status_index IF NOT EXISTS FOR (c:ConflictFlag) ON (c.status)`,
		`CREATE INDEX conflict_flag_video_index IF NOT EXISTS FOR (c:ConflictFlag) ON (c.video_id)`,
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			s.log.Warn("schema init statement failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
	return nil
}

func (s *Neo4jStore) UpsertVideo(ctx context.Context, videoID string) error {
	if strings.TrimSpace(videoID) == "" {
		return fmt.Errorf("graph: video id required")
	}
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (v:Video {video_id: $video_id})
ON CREATE SET v.created_at = datetime()
SET v.updated_at = datetime()
`, map[string]any{"video_id": videoID})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (s *Neo4jStore) UpsertEntity(ctx context.Context, e domain.Entity) (bool, error) {
	if strings.TrimSpace(e.Name) == "" {
		return false, fmt.Errorf("graph: entity name required")
	}
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (e:Entity {name: $name})
ON CREATE SET e.created_at = datetime()
SET e.type = $type,
    e.description = $description,
    e.confidence = $confidence,
    e.updated_at = datetime()
`, map[string]any{
			"name":        e.Name,
			"type":        string(e.Type),
			"description": e.Description,
			"confidence":  e.Confidence,
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return false, err
	}
	summary := out.(neo4j.ResultSummary)
	return summary.Counters().NodesCreated() > 0, nil
}

func (s *Neo4jStore) LinkVideoEntity(ctx context.Context, videoID, entityName string) error {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (v:Video {video_id: $video_id})
MATCH (e:Entity {name: $entity_name})
MERGE (v)-[r:MENTIONS]->(e)
SET r.created_at = coalesce(r.created_at, datetime())
`, map[string]any{"video_id": videoID, "entity_name": entityName})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (s *Neo4jStore) EntityExists(ctx context.Context, name string) (bool, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {name: $name}) RETURN e LIMIT 1`,
			map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return len(records) > 0, nil
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (s *Neo4jStore) ListEntities(ctx context.Context) ([]EntityRef, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity)
RETURN e.name AS name, e.type AS type
ORDER BY e.name
`, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		refs := make([]EntityRef, 0, len(records))
		for _, rec := range records {
			name := stringField(rec, "name")
			if name == "" {
				continue
			}
			refs = append(refs, EntityRef{
				Name: name,
				Type: domain.EntityType(stringField(rec, "type")),
			})
		}
		return refs, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]EntityRef), nil
}

func (s *Neo4jStore) SearchEntities(ctx context.Context, query string, limit int) ([]domain.Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	session := s.readSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (e:Entity)
WHERE toLower(e.name) CONTAINS toLower($query)
RETURN e.name AS name, e.type AS type, e.description AS description, e.confidence AS confidence
ORDER BY e.name
LIMIT $limit
`, map[string]any{"query": query, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		entities := make([]domain.Entity, 0, len(records))
		for _, rec := range records {
			entities = append(entities, domain.Entity{
				Name:        stringField(rec, "name"),
				Type:        domain.EntityType(stringField(rec, "type")),
				Description: stringField(rec, "description"),
				Confidence:  floatField(rec, "confidence"),
			})
		}
		return entities, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Entity), nil
}

// UpsertRelationship creates or refreshes a directed entity edge. It first
// tries a dynamically-typed relationship via apoc.merge.relationship; when
// the backend lacks APOC it falls back to a generic RELATED edge keyed on
// relation_type, so the original relation stays recoverable.
func (s *Neo4jStore) UpsertRelationship(ctx context.Context, t domain.Triple, videoID string) (bool, error) {
	if !t.Valid() {
		return false, fmt.Errorf("graph: invalid triple %s", t.Serialize())
	}

	session := s.writeSession(ctx)
	defer session.Close(ctx)

	exists, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s:Entity {name: $subject})
MATCH (o:Entity {name: $object})
RETURN count(*) AS n
`, map[string]any{"subject": t.Subject, "object": t.Object})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return intField(rec, "n") > 0, nil
	})
	if err != nil {
		return false, err
	}
	if !exists.(bool) {
		return false, ErrEntityNotFound
	}

	if !s.apocUnavailable.Load() {
		created, err := s.upsertDynamicRelationship(ctx, session, t, videoID)
		if err == nil {
			return created, nil
		}
		if !isMissingProcedure(err) {
			return false, err
		}
		s.apocUnavailable.Store(true)
		s.log.Warn("dynamic relationship types unavailable, using RELATED fallback", "error", err)
	}
	return s.upsertFallbackRelationship(ctx, session, t, videoID)
}

func (s *Neo4jStore) upsertDynamicRelationship(ctx context.Context, session neo4j.SessionWithContext, t domain.Triple, videoID string) (bool, error) {
	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s:Entity {name: $subject})
MATCH (o:Entity {name: $object})
CALL apoc.merge.relationship(s, $rel_type, {relation_type: $relation}, {
    created_at: datetime(),
    source: 'kg_extraction',
    video_id: $video_id
}, o, {updated_at: datetime()}) YIELD rel
RETURN rel
`, map[string]any{
			"subject":  t.Subject,
			"object":   t.Object,
			"rel_type": NormalizeRelationType(t.Relation),
			"relation": t.Relation,
			"video_id": videoID,
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return false, err
	}
	summary := out.(neo4j.ResultSummary)
	return summary.Counters().RelationshipsCreated() > 0, nil
}

func (s *Neo4jStore) upsertFallbackRelationship(ctx context.Context, session neo4j.SessionWithContext, t domain.Triple, videoID string) (bool, error) {
	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s:Entity {name: $subject})
MATCH (o:Entity {name: $object})
MERGE (s)-[r:RELATED {relation_type: $relation}]->(o)
ON CREATE SET r.created_at = datetime(),
              r.source = 'kg_extraction',
              r.video_id = $video_id
SET r.updated_at = datetime()
`, map[string]any{
			"subject":  t.Subject,
			"object":   t.Object,
			"relation": t.Relation,
			"video_id": videoID,
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return false, err
	}
	summary := out.(neo4j.ResultSummary)
	return summary.Counters().RelationshipsCreated() > 0, nil
}

func (s *Neo4jStore) RelationshipsSharingEndpoints(ctx context.Context, subject, object string) ([]domain.Triple, error) {
	limit := envutil.Int("KG_RELATIONSHIP_LOOKUP_LIMIT", 100)

	session := s.readSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s:Entity)-[r]->(o:Entity)
WHERE s.name IN [$subject, $object] OR o.name IN [$subject, $object]
RETURN s.name AS subject, coalesce(r.relation_type, type(r)) AS relation, o.name AS object
ORDER BY subject, relation, object
LIMIT $limit
`, map[string]any{"subject": subject, "object": object, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		triples := make([]domain.Triple, 0, len(records))
		for _, rec := range records {
			t := domain.Triple{
				Subject:  stringField(rec, "subject"),
				Relation: stringField(rec, "relation"),
				Object:   stringField(rec, "object"),
			}
			if !t.Valid() {
				continue
			}
			triples = append(triples, t)
		}
		return triples, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.Triple), nil
}

func (s *Neo4jStore) CreateConflictFlag(ctx context.Context, videoID string, newRel, existingRel domain.Triple, reason string) (bool, error) {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (c:ConflictFlag {
    video_id: $video_id,
    new_relationship: $new_relationship,
    existing_relationship: $existing_relationship
})
ON CREATE SET c.id = $id,
              c.reason = $reason,
              c.status = $status,
              c.created_at = datetime()
`, map[string]any{
			"video_id":              videoID,
			"new_relationship":      newRel.Serialize(),
			"existing_relationship": existingRel.Serialize(),
			"id":                    uuid.NewString(),
			"reason":                reason,
			"status":                string(domain.ConflictPendingReview),
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return false, err
	}
	summary := out.(neo4j.ResultSummary)
	return summary.Counters().NodesCreated() > 0, nil
}

const conflictFlagReturn = `
RETURN c.id AS id,
       c.video_id AS video_id,
       c.new_relationship AS new_relationship,
       c.existing_relationship AS existing_relationship,
       c.reason AS reason,
       c.status AS status,
       c.resolution AS resolution,
       c.resolved_by AS resolved_by,
       toString(c.created_at) AS created_at,
       toString(c.resolved_at) AS resolved_at
`

func (s *Neo4jStore) GetConflictFlags(ctx context.Context, status domain.ConflictStatus) ([]domain.ConflictFlag, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:ConflictFlag)
WHERE c.status = $status
`+conflictFlagReturn+`
ORDER BY created_at DESC
`, map[string]any{"status": string(status)})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		flags := make([]domain.ConflictFlag, 0, len(records))
		for _, rec := range records {
			flags = append(flags, flagFromRecord(rec))
		}
		return flags, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.ConflictFlag), nil
}

func (s *Neo4jStore) GetConflictFlag(ctx context.Context, videoID, newRel, existingRel string) (*domain.ConflictFlag, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:ConflictFlag {
    video_id: $video_id,
    new_relationship: $new_relationship,
    existing_relationship: $existing_relationship
})
`+conflictFlagReturn+`
LIMIT 1
`, map[string]any{
			"video_id":              videoID,
			"new_relationship":      newRel,
			"existing_relationship": existingRel,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return (*domain.ConflictFlag)(nil), nil
		}
		flag := flagFromRecord(records[0])
		return &flag, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.ConflictFlag), nil
}

// UpdateConflictFlag transitions a pending flag to resolved. Flags already
// resolved are left untouched and the call reports no update, which makes
// repeated resolution a safe no-op at the storage layer.
func (s *Neo4jStore) UpdateConflictFlag(ctx context.Context, videoID, newRel, existingRel string, resolution domain.ConflictResolution, resolvedBy string) (bool, error) {
	session := s.writeSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:ConflictFlag {
    video_id: $video_id,
    new_relationship: $new_relationship,
    existing_relationship: $existing_relationship
})
WHERE c.status = $pending
SET c.status = $resolved,
    c.resolution = $resolution,
    c.resolved_by = $resolved_by,
    c.resolved_at = datetime()
RETURN count(c) AS updated
`, map[string]any{
			"video_id":              videoID,
			"new_relationship":      newRel,
			"existing_relationship": existingRel,
			"pending":               string(domain.ConflictPendingReview),
			"resolved":              string(domain.ConflictResolved),
			"resolution":            string(resolution),
			"resolved_by":           resolvedBy,
		})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return intField(rec, "updated") > 0, nil
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (s *Neo4jStore) Stats(ctx context.Context) (GraphStats, error) {
	var stats GraphStats
	counts := []struct {
		query string
		dest  *int64
	}{
		{`MATCH (n) RETURN count(n) AS count`, &stats.TotalNodes},
		{`MATCH ()-[r]->() RETURN count(r) AS count`, &stats.TotalRelationships},
		{`MATCH (n:Video) RETURN count(n) AS count`, &stats.Videos},
		{`MATCH (n:Entity) RETURN count(n) AS count`, &stats.Entities},
		{`MATCH (n:ConflictFlag) RETURN count(n) AS count`, &stats.ConflictFlags},
	}

	session := s.readSession(ctx)
	defer session.Close(ctx)

	for _, q := range counts {
		out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, q.query, nil)
			if err != nil {
				return nil, err
			}
			rec, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			return intField(rec, "count"), nil
		})
		if err != nil {
			return GraphStats{}, err
		}
		*q.dest = out.(int64)
	}
	return stats, nil
}

func (s *Neo4jStore) ResolutionStats(ctx context.Context, videoID string) (ResolutionStats, error) {
	session := s.readSession(ctx)
	defer session.Close(ctx)

	var stats ResolutionStats
	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (c:ConflictFlag)
WHERE $video_id = '' OR c.video_id = $video_id
RETURN c.status AS status, count(c) AS count
`, map[string]any{"video_id": videoID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			switch domain.ConflictStatus(stringField(rec, "status")) {
			case domain.ConflictPendingReview:
				stats.PendingConflicts = intField(rec, "count")
			case domain.ConflictResolved:
				stats.ResolvedConflicts = intField(rec, "count")
			}
		}

		res, err = tx.Run(ctx, `
MATCH (v:Video)-[:MENTIONS]->(e:Entity)
WHERE $video_id = '' OR v.video_id = $video_id
RETURN count(DISTINCT e) AS count
`, map[string]any{"video_id": videoID})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		stats.MentionedEntities = intField(rec, "count")
		return nil, nil
	})
	if err != nil {
		return ResolutionStats{}, err
	}
	return stats, nil
}

// NormalizeRelationType converts a free-form relation label to the
// UPPER_SNAKE form used for dynamically-typed edges.
func NormalizeRelationType(relation string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(relation)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	if out == "" {
		out = "RELATED"
	}
	return out
}

func isMissingProcedure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "procedurenotfound") ||
		strings.Contains(msg, "there is no procedure") ||
		strings.Contains(msg, "apoc")
}

func stringField(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intField(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	i, _ := v.(int64)
	return i
}

func floatField(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func timeField(rec *neo4j.Record, key string) time.Time {
	raw := stringField(rec, key)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func flagFromRecord(rec *neo4j.Record) domain.ConflictFlag {
	flag := domain.ConflictFlag{
		ID:                   stringField(rec, "id"),
		VideoID:              stringField(rec, "video_id"),
		NewRelationship:      stringField(rec, "new_relationship"),
		ExistingRelationship: stringField(rec, "existing_relationship"),
		Reason:               stringField(rec, "reason"),
		Status:               domain.ConflictStatus(stringField(rec, "status")),
		Resolution:           domain.ConflictResolution(stringField(rec, "resolution")),
		ResolvedBy:           stringField(rec, "resolved_by"),
		CreatedAt:            timeField(rec, "created_at"),
	}
	if t := timeField(rec, "resolved_at"); !t.IsZero() {
		flag.ResolvedAt = &t
	}
	return flag
}
