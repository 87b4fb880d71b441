package resolution

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/videograph-backend/internal/data/graph"
	"github.com/yungbote/videograph-backend/internal/domain"
	"github.com/yungbote/videograph-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// memStore is an in-memory graph.Store with the same MERGE semantics as the
// real one: repeating a mutation with the same natural key reports
// created=false and changes nothing structural.
type memStore struct {
	videos   map[string]bool
	entities map[string]domain.Entity
	mentions map[string]map[string]bool
	rels     map[string][]domain.Triple
	flags    map[string]*domain.ConflictFlag

	relErr error // injected relationship lookup failure
}

func newMemStore() *memStore {
	return &memStore{
		videos:   map[string]bool{},
		entities: map[string]domain.Entity{},
		mentions: map[string]map[string]bool{},
		rels:     map[string][]domain.Triple{},
		flags:    map[string]*domain.ConflictFlag{},
	}
}

func relKey(subject, object string) string { return subject + "\x00" + object }
func flagKey(videoID, n, e string) string { return videoID + "\x00" + n + "\x00" + e }

func (s *memStore) InitSchema(ctx context.Context) error { return nil }

func (s *memStore) UpsertVideo(ctx context.Context, videoID string) error {
	s.videos[videoID] = true
	return nil
}

func (s *memStore) UpsertEntity(ctx context.Context, e domain.Entity) (bool, error) {
	_, exists := s.entities[e.Name]
	s.entities[e.Name] = e
	return !exists, nil
}

func (s *memStore) LinkVideoEntity(ctx context.Context, videoID, entityName string) error {
	if s.mentions[videoID] == nil {
		s.mentions[videoID] = map[string]bool{}
	}
	s.mentions[videoID][entityName] = true
	return nil
}

func (s *memStore) EntityExists(ctx context.Context, name string) (bool, error) {
	_, ok := s.entities[name]
	return ok, nil
}

func (s *memStore) ListEntities(ctx context.Context) ([]graph.EntityRef, error) {
	refs := make([]graph.EntityRef, 0, len(s.entities))
	for _, e := range s.entities {
		refs = append(refs, graph.EntityRef{Name: e.Name, Type: e.Type})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (s *memStore) SearchEntities(ctx context.Context, query string, limit int) ([]domain.Entity, error) {
	var out []domain.Entity
	q := strings.ToLower(query)
	for _, e := range s.entities {
		if strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UpsertRelationship(ctx context.Context, t domain.Triple, videoID string) (bool, error) {
	if _, ok := s.entities[t.Subject]; !ok {
		return false, graph.ErrEntityNotFound
	}
	if _, ok := s.entities[t.Object]; !ok {
		return false, graph.ErrEntityNotFound
	}
	key := relKey(t.Subject, t.Object)
	for _, ex := range s.rels[key] {
		if strings.EqualFold(ex.Relation, t.Relation) {
			return false, nil
		}
	}
	s.rels[key] = append(s.rels[key], t)
	return true, nil
}

func (s *memStore) RelationshipsSharingEndpoints(ctx context.Context, subject, object string) ([]domain.Triple, error) {
	if s.relErr != nil {
		return nil, s.relErr
	}
	var out []domain.Triple
	for _, triples := range s.rels {
		for _, t := range triples {
			if t.Subject == subject || t.Subject == object || t.Object == subject || t.Object == object {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serialize() < out[j].Serialize() })
	return out, nil
}

func (s *memStore) CreateConflictFlag(ctx context.Context, videoID string, newRel, existingRel domain.Triple, reason string) (bool, error) {
	key := flagKey(videoID, newRel.Serialize(), existingRel.Serialize())
	if _, ok := s.flags[key]; ok {
		return false, nil
	}
	s.flags[key] = &domain.ConflictFlag{
		ID:                   key,
		VideoID:              videoID,
		NewRelationship:      newRel.Serialize(),
		ExistingRelationship: existingRel.Serialize(),
		Reason:               reason,
		Status:               domain.ConflictPendingReview,
		CreatedAt:            time.Now(),
	}
	return true, nil
}

func (s *memStore) GetConflictFlags(ctx context.Context, status domain.ConflictStatus) ([]domain.ConflictFlag, error) {
	var out []domain.ConflictFlag
	for _, f := range s.flags {
		if status == "" || f.Status == status {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetConflictFlag(ctx context.Context, videoID, newRel, existingRel string) (*domain.ConflictFlag, error) {
	f, ok := s.flags[flagKey(videoID, newRel, existingRel)]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) UpdateConflictFlag(ctx context.Context, videoID, newRel, existingRel string, resolution domain.ConflictResolution, resolvedBy string) (bool, error) {
	f, ok := s.flags[flagKey(videoID, newRel, existingRel)]
	if !ok || f.Status != domain.ConflictPendingReview {
		return false, nil
	}
	now := time.Now()
	f.Status = domain.ConflictResolved
	f.Resolution = resolution
	f.ResolvedBy = resolvedBy
	f.ResolvedAt = &now
	return true, nil
}

func (s *memStore) Stats(ctx context.Context) (graph.GraphStats, error) {
	var relCount int64
	for _, v := range s.rels {
		relCount += int64(len(v))
	}
	return graph.GraphStats{
		TotalNodes:         int64(len(s.videos) + len(s.entities) + len(s.flags)),
		TotalRelationships: relCount,
		Videos:             int64(len(s.videos)),
		Entities:           int64(len(s.entities)),
		ConflictFlags:      int64(len(s.flags)),
	}, nil
}

func (s *memStore) ResolutionStats(ctx context.Context, videoID string) (graph.ResolutionStats, error) {
	var out graph.ResolutionStats
	for _, f := range s.flags {
		if videoID != "" && f.VideoID != videoID {
			continue
		}
		if f.Status == domain.ConflictResolved {
			out.ResolvedConflicts++
		} else {
			out.PendingConflicts++
		}
	}
	for vid, names := range s.mentions {
		if videoID != "" && vid != videoID {
			continue
		}
		out.MentionedEntities += int64(len(names))
	}
	return out, nil
}

// relationCount returns how many edges exist between the pair, for asserting
// that re-runs created nothing.
func (s *memStore) relationCount(subject, object string) int {
	return len(s.rels[relKey(subject, object)])
}

// stubJudge scripts the model's verdict per schema name and counts calls.
type stubJudge struct {
	calls   int
	perName map[string]map[string]any
	err     error
}

func (j *stubJudge) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	j.calls++
	if j.err != nil {
		return nil, j.err
	}
	if out, ok := j.perName[schemaName]; ok {
		return out, nil
	}
	return map[string]any{"resolutions": []any{}, "duplicates": []any{}, "conflicts": []any{}, "updates": []any{}}, nil
}
