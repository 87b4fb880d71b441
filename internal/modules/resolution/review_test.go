package resolution

import (
	"context"
	"testing"

	"github.com/yungbote/videograph-backend/internal/domain"
)

func seedConflict(t *testing.T, store *memStore) (newRel, existingRel string) {
	t.Helper()
	seedEntities(t, store, "Company A", "Company B")
	seedRelationship(t, store, "Company A", "ACQUIRED", "Company B")
	newT := domain.Triple{Subject: "Company A", Relation: "sold", Object: "Company B"}
	exT := domain.Triple{Subject: "Company A", Relation: "ACQUIRED", Object: "Company B"}
	if _, err := store.CreateConflictFlag(context.Background(), "vid-1", newT, exT, "contradiction"); err != nil {
		t.Fatalf("seed conflict: %v", err)
	}
	return newT.Serialize(), exT.Serialize()
}

func TestResolveConflictRecordsDecision(t *testing.T) {
	store := newMemStore()
	newRel, existingRel := seedConflict(t, store)
	deps := ReviewDeps{Log: testLogger(t), Store: store}

	out, err := ResolveConflict(context.Background(), deps, "vid-1", newRel, existingRel, domain.ResolutionUseNew, "reviewer-1")
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if !out.Found || out.AlreadyResolved {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Flag.Status != domain.ConflictResolved || out.Flag.Resolution != domain.ResolutionUseNew {
		t.Fatalf("flag = %+v", out.Flag)
	}
	if out.Flag.ResolvedBy != "reviewer-1" || out.Flag.ResolvedAt == nil {
		t.Fatalf("attribution missing: %+v", out.Flag)
	}

	pending, _ := PendingConflicts(context.Background(), deps)
	if len(pending) != 0 {
		t.Fatalf("pending = %d, want 0 after resolution", len(pending))
	}
}

func TestResolveConflictSecondDecisionIsNoOp(t *testing.T) {
	store := newMemStore()
	newRel, existingRel := seedConflict(t, store)
	deps := ReviewDeps{Log: testLogger(t), Store: store}

	if _, err := ResolveConflict(context.Background(), deps, "vid-1", newRel, existingRel, domain.ResolutionKeepExisting, "reviewer-1"); err != nil {
		t.Fatalf("first decision: %v", err)
	}
	out, err := ResolveConflict(context.Background(), deps, "vid-1", newRel, existingRel, domain.ResolutionUseNew, "reviewer-2")
	if err != nil {
		t.Fatalf("second decision: %v", err)
	}
	if !out.AlreadyResolved {
		t.Fatal("second decision should report the flag as already resolved")
	}
	if out.Flag.Resolution != domain.ResolutionKeepExisting || out.Flag.ResolvedBy != "reviewer-1" {
		t.Fatalf("first decision overwritten: %+v", out.Flag)
	}
}

func TestResolveConflictUnknownKeyNotFound(t *testing.T) {
	deps := ReviewDeps{Log: testLogger(t), Store: newMemStore()}
	out, err := ResolveConflict(context.Background(), deps, "vid-x", `["a","r","b"]`, `["a","q","b"]`, domain.ResolutionMerge, "reviewer-1")
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if out.Found {
		t.Fatalf("outcome = %+v, want not found", out)
	}
}

func TestResolveConflictRejectsBadInput(t *testing.T) {
	deps := ReviewDeps{Log: testLogger(t), Store: newMemStore()}
	if _, err := ResolveConflict(context.Background(), deps, "vid-1", "n", "e", domain.ConflictResolution("discard"), "reviewer-1"); err == nil {
		t.Fatal("expected error for unknown resolution value")
	}
	if _, err := ResolveConflict(context.Background(), deps, "vid-1", "n", "e", domain.ResolutionMerge, " "); err == nil {
		t.Fatal("expected error for blank resolved_by")
	}
}

func TestApplyResolutionWritesWithheldEdge(t *testing.T) {
	store := newMemStore()
	newRel, existingRel := seedConflict(t, store)
	deps := ReviewDeps{Log: testLogger(t), Store: store}

	out, err := ResolveConflict(context.Background(), deps, "vid-1", newRel, existingRel, domain.ResolutionUseNew, "reviewer-1")
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	created, err := ApplyResolution(context.Background(), deps, *out.Flag)
	if err != nil {
		t.Fatalf("ApplyResolution: %v", err)
	}
	if !created {
		t.Fatal("expected the withheld edge to be created")
	}
	if store.relationCount("Company A", "Company B") != 2 {
		t.Fatalf("edge count = %d, want both relations present", store.relationCount("Company A", "Company B"))
	}

	// Applying again merges onto the existing edge.
	created, err = ApplyResolution(context.Background(), deps, *out.Flag)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if created {
		t.Fatal("second apply must not create another edge")
	}
}

func TestApplyResolutionKeepExistingIsNoOp(t *testing.T) {
	store := newMemStore()
	newRel, existingRel := seedConflict(t, store)
	deps := ReviewDeps{Log: testLogger(t), Store: store}

	out, err := ResolveConflict(context.Background(), deps, "vid-1", newRel, existingRel, domain.ResolutionKeepExisting, "reviewer-1")
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	created, err := ApplyResolution(context.Background(), deps, *out.Flag)
	if err != nil {
		t.Fatalf("ApplyResolution: %v", err)
	}
	if created || store.relationCount("Company A", "Company B") != 1 {
		t.Fatal("keep_existing must not write the new relationship")
	}
}

func TestApplyResolutionPendingFlagIsNoOp(t *testing.T) {
	store := newMemStore()
	newRel, existingRel := seedConflict(t, store)
	deps := ReviewDeps{Log: testLogger(t), Store: store}

	flag, err := store.GetConflictFlag(context.Background(), "vid-1", newRel, existingRel)
	if err != nil || flag == nil {
		t.Fatalf("GetConflictFlag: %v %v", flag, err)
	}
	created, err := ApplyResolution(context.Background(), deps, *flag)
	if err != nil {
		t.Fatalf("ApplyResolution: %v", err)
	}
	if created {
		t.Fatal("pending flag must not be applied")
	}
}
