package resolution

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/videograph-backend/internal/domain"
	"github.com/yungbote/videograph-backend/internal/modules/resolution/prompts"
)

func TestResolveEntitiesExactMatchSkipsJudge(t *testing.T) {
	judge := &stubJudge{}
	deps := MergeDeps{Log: testLogger(t), Store: newMemStore(), AI: judge}

	existing := refs("Machine Learning", "OpenAI")
	trace := map[string]any{}
	mappings := resolveEntities(context.Background(), deps,
		[]domain.Entity{
			{Name: "machine learning", Type: domain.EntityConcept},
			{Name: "OpenAI", Type: domain.EntityOrganization},
		},
		existing, trace)

	if judge.calls != 0 {
		t.Fatalf("judge calls = %d, want 0", judge.calls)
	}
	m, ok := mappings["machine learning"]
	if !ok {
		t.Fatal("expected case-variant mapping for machine learning")
	}
	if m.CanonicalName != "Machine Learning" || m.Confidence != 1.0 {
		t.Fatalf("mapping = %+v", m)
	}
	// Identical spelling needs no mapping; MERGE lands on the same node.
	if _, ok := mappings["OpenAI"]; ok {
		t.Fatal("exact same spelling should not be mapped")
	}
}

func TestResolveEntitiesAcceptsHighConfidenceVerdict(t *testing.T) {
	judge := &stubJudge{perName: map[string]map[string]any{
		string(prompts.EntityResolution): {
			"resolutions": []any{
				map[string]any{
					"new_entity":      "AI",
					"existing_entity": "Artificial Intelligence",
					"confidence":      0.95,
					"reason":          "common abbreviation",
				},
			},
		},
	}}
	deps := MergeDeps{Log: testLogger(t), Store: newMemStore(), AI: judge}

	trace := map[string]any{}
	mappings := resolveEntities(context.Background(), deps,
		[]domain.Entity{{Name: "AI", Type: domain.EntityConcept}},
		refs("Artificial Intelligence", "Biology"), trace)

	if judge.calls != 1 {
		t.Fatalf("judge calls = %d, want 1", judge.calls)
	}
	m, ok := mappings["AI"]
	if !ok {
		t.Fatal("expected mapping for AI")
	}
	if m.CanonicalName != "Artificial Intelligence" {
		t.Fatalf("canonical = %q", m.CanonicalName)
	}
	if got := trace["entity_judge_batches"]; got != 1 {
		t.Fatalf("entity_judge_batches = %v, want 1", got)
	}
}

func TestResolveEntitiesRejectsBadVerdicts(t *testing.T) {
	judge := &stubJudge{perName: map[string]map[string]any{
		string(prompts.EntityResolution): {
			"resolutions": []any{
				// At the floor, not above it.
				map[string]any{"new_entity": "AI", "existing_entity": "Artificial Intelligence", "confidence": 0.8, "reason": "maybe"},
				// Canonical target does not exist in the graph.
				map[string]any{"new_entity": "ML", "existing_entity": "Hallucinated Node", "confidence": 0.99, "reason": "made up"},
				// Entity we never asked about.
				map[string]any{"new_entity": "Quantum", "existing_entity": "Biology", "confidence": 0.99, "reason": "unsolicited"},
			},
		},
	}}
	deps := MergeDeps{Log: testLogger(t), Store: newMemStore(), AI: judge}

	mappings := resolveEntities(context.Background(), deps,
		[]domain.Entity{
			{Name: "AI", Type: domain.EntityConcept},
			{Name: "ML", Type: domain.EntityConcept},
		},
		refs("Artificial Intelligence", "Biology"), map[string]any{})

	if len(mappings) != 0 {
		t.Fatalf("mappings = %v, want none", mappings)
	}
}

func TestResolveEntitiesJudgeFailureYieldsNoMappings(t *testing.T) {
	judge := &stubJudge{err: errors.New("model unavailable")}
	deps := MergeDeps{Log: testLogger(t), Store: newMemStore(), AI: judge}

	trace := map[string]any{}
	mappings := resolveEntities(context.Background(), deps,
		[]domain.Entity{{Name: "AI", Type: domain.EntityConcept}},
		refs("Artificial Intelligence"), trace)

	if len(mappings) != 0 {
		t.Fatalf("mappings = %v, want none on judge failure", mappings)
	}
	if got := trace["entity_judge_failures"]; got != 1 {
		t.Fatalf("entity_judge_failures = %v, want 1", got)
	}
}

func TestResolveEntitiesEmptyGraphNeedsNoJudge(t *testing.T) {
	judge := &stubJudge{}
	deps := MergeDeps{Log: testLogger(t), Store: newMemStore(), AI: judge}

	mappings := resolveEntities(context.Background(), deps,
		[]domain.Entity{{Name: "AI", Type: domain.EntityConcept}}, nil, map[string]any{})

	if judge.calls != 0 || len(mappings) != 0 {
		t.Fatalf("calls = %d mappings = %v, want no work against empty graph", judge.calls, mappings)
	}
}
