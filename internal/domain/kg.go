package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EntityType is the declared classification of an extracted entity.
type EntityType string

const (
	EntityPerson       EntityType = "Person"
	EntityOrganization EntityType = "Organization"
	EntityLocation     EntityType = "Location"
	EntityProduct      EntityType = "Product"
	EntityConcept      EntityType = "Concept"
	EntityEvent        EntityType = "Event"
	EntityOther        EntityType = "Other"
)

// NormalizeEntityType maps free-form extractor output onto the known set.
// Unknown values fall back to Other rather than failing the batch.
func NormalizeEntityType(raw string) EntityType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "person":
		return EntityPerson
	case "organization", "organisation", "org":
		return EntityOrganization
	case "location", "place":
		return EntityLocation
	case "product":
		return EntityProduct
	case "concept", "topic":
		return EntityConcept
	case "event":
		return EntityEvent
	default:
		return EntityOther
	}
}

// Entity is a node in the knowledge graph, keyed by canonical name.
// At most one Entity node exists per distinct name string post-resolution.
type Entity struct {
	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	Description string     `json:"description,omitempty"`
	Confidence  float64    `json:"confidence,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
}

// Triple is a directed relationship (subject, relation, object) between two
// entities, identified by the natural triple after entity canonicalization.
type Triple struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

func (t Triple) Valid() bool {
	return strings.TrimSpace(t.Subject) != "" &&
		strings.TrimSpace(t.Relation) != "" &&
		strings.TrimSpace(t.Object) != ""
}

// Serialize renders the triple as a stable JSON array. Conflict flags store
// both sides of a contradiction in this form, and it doubles as the flag's
// natural-key component.
func (t Triple) Serialize() string {
	raw, _ := json.Marshal([]string{t.Subject, t.Relation, t.Object})
	return string(raw)
}

func ParseTriple(s string) (Triple, error) {
	var parts []string
	if err := json.Unmarshal([]byte(s), &parts); err != nil {
		return Triple{}, fmt.Errorf("domain: parse triple: %w", err)
	}
	if len(parts) != 3 {
		return Triple{}, fmt.Errorf("domain: parse triple: want 3 elements, got %d", len(parts))
	}
	return Triple{Subject: parts[0], Relation: parts[1], Object: parts[2]}, nil
}

// EntityMapping is a transient resolution decision translating a newly seen
// entity name to an existing canonical name. It is consumed within one merge
// operation and never persisted as a node.
type EntityMapping struct {
	NewName       string  `json:"new_entity"`
	CanonicalName string  `json:"existing_entity"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
}

type ConflictStatus string

const (
	ConflictPendingReview ConflictStatus = "pending_review"
	ConflictResolved      ConflictStatus = "resolved"
)

type ConflictResolution string

const (
	ResolutionKeepExisting ConflictResolution = "keep_existing"
	ResolutionUseNew       ConflictResolution = "use_new"
	ResolutionMerge        ConflictResolution = "merge"
)

func ParseConflictResolution(raw string) (ConflictResolution, error) {
	switch ConflictResolution(strings.ToLower(strings.TrimSpace(raw))) {
	case ResolutionKeepExisting:
		return ResolutionKeepExisting, nil
	case ResolutionUseNew:
		return ResolutionUseNew, nil
	case ResolutionMerge:
		return ResolutionMerge, nil
	default:
		return "", fmt.Errorf("domain: unknown conflict resolution %q", raw)
	}
}

// ConflictFlag is a durable record of a contradiction between a new and an
// existing relationship, awaiting human adjudication. Its natural key is
// (video_id, new_relationship, existing_relationship), both sides serialized
// with Triple.Serialize.
type ConflictFlag struct {
	ID                   string             `json:"id,omitempty"`
	VideoID              string             `json:"video_id"`
	NewRelationship      string             `json:"new_relationship"`
	ExistingRelationship string             `json:"existing_relationship"`
	Reason               string             `json:"reason"`
	Status               ConflictStatus     `json:"status"`
	Resolution           ConflictResolution `json:"resolution,omitempty"`
	ResolvedBy           string             `json:"resolved_by,omitempty"`
	CreatedAt            time.Time          `json:"created_at,omitempty"`
	ResolvedAt           *time.Time         `json:"resolved_at,omitempty"`
}

// MergeStats is the result of one ResolveAndMergeVideoGraph call. Counts
// reflect exactly what reached storage: re-running the same video yields
// zero upserts because every MERGE matches instead of creating.
type MergeStats struct {
	VideoID                string            `json:"video_id"`
	EntityMappings         map[string]string `json:"entity_mappings"`
	UpsertedEntities       int               `json:"upserted_entities"`
	UpsertedRelationships  int               `json:"upserted_relationships"`
	DuplicateRelationships int               `json:"duplicate_relationships"`
	ConflictsCreated       int               `json:"conflicts_created"`
	SkippedRelationships   int               `json:"skipped_relationships"`
	Trace                  map[string]any    `json:"trace,omitempty"`
}
