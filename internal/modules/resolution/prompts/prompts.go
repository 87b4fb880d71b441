// Package prompts holds the judge prompts and JSON output schemas for
// knowledge-graph resolution. Schemas are enforced server-side (strict
// json_schema output); the resolvers still validate the decoded objects.
package prompts

import (
	"fmt"
	"strings"
)

type Name string

const (
	EntityResolution       Name = "graph_entity_resolution"
	RelationshipResolution Name = "relationship_resolution"
)

// Input is a superset of the fields any resolution prompt needs. Unused
// fields render as empty sections.
type Input struct {
	NewEntitiesJSON           string
	ExistingEntitiesJSON      string
	NewRelationshipsJSON      string
	ExistingRelationshipsJSON string
	EntityMappingsJSON        string
}

type Prompt struct {
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

func Build(name Name, in Input) (Prompt, error) {
	switch name {
	case EntityResolution:
		if strings.TrimSpace(in.NewEntitiesJSON) == "" || strings.TrimSpace(in.ExistingEntitiesJSON) == "" {
			return Prompt{}, fmt.Errorf("prompts: %s requires new and existing entities", name)
		}
		return Prompt{
			System:     entityResolutionSystem,
			User:       fmt.Sprintf("NEW_ENTITIES:\n%s\n\nEXISTING_ENTITIES:\n%s", in.NewEntitiesJSON, in.ExistingEntitiesJSON),
			SchemaName: string(EntityResolution),
			Schema:     entityResolutionSchema(),
		}, nil
	case RelationshipResolution:
		if strings.TrimSpace(in.NewRelationshipsJSON) == "" || strings.TrimSpace(in.ExistingRelationshipsJSON) == "" {
			return Prompt{}, fmt.Errorf("prompts: %s requires new and existing relationships", name)
		}
		mappings := strings.TrimSpace(in.EntityMappingsJSON)
		if mappings == "" {
			mappings = "{}"
		}
		return Prompt{
			System: relationshipResolutionSystem,
			User: fmt.Sprintf("NEW_RELATIONSHIPS:\n%s\n\nEXISTING_RELATIONSHIPS:\n%s\n\nENTITY_MAPPINGS:\n%s",
				in.NewRelationshipsJSON, in.ExistingRelationshipsJSON, mappings),
			SchemaName: string(RelationshipResolution),
			Schema:     relationshipResolutionSchema(),
		}, nil
	default:
		return Prompt{}, fmt.Errorf("prompts: unknown prompt %q", name)
	}
}

const entityResolutionSystem = `You are an expert entity resolution system for knowledge graph merging. Your task is to identify duplicate entities across different video knowledge graphs that refer to the same real-world entity.

Given two lists of entities:
1. NEW_ENTITIES: Entities from a new video being processed
2. EXISTING_ENTITIES: Entities already in the global knowledge graph

Your job is to identify which new entities are duplicates of existing entities and should be merged.

Consider these factors for entity matching:
- Exact name matches (case-insensitive)
- Abbreviations and full forms (e.g., "AI" and "Artificial Intelligence")
- Synonyms and alternative names (e.g., "NYC" and "New York City")
- Common variations (e.g., "Google Inc." and "Google")
- Context-aware matching based on entity types

Return a JSON object with a "resolutions" key containing a list of resolution mappings, each with "new_entity", "existing_entity", "confidence" and "reason".

Guidelines:
- Only suggest merges when you're confident (confidence > 0.8)
- Provide clear reasoning for each merge decision
- Consider entity types - don't merge entities of different types unless very confident
- Be conservative - false negatives are better than false positives
- If no matches are found, return an empty resolutions list`

const relationshipResolutionSystem = `You are an expert relationship resolution system for knowledge graph merging. Your task is to identify duplicate or conflicting relationships when merging knowledge graphs.

Given:
1. NEW_RELATIONSHIPS: Relationships from a new video, as [subject, relation, object] triples
2. EXISTING_RELATIONSHIPS: Relationships already in the global graph
3. ENTITY_MAPPINGS: How new entities map to existing entities

Your job is to:
1. Identify duplicate relationships (same semantic meaning)
2. Identify conflicting relationships (contradictory information)
3. Suggest relationship updates or merges

Return a JSON object with "duplicates", "conflicts" and "updates" lists.

Guidelines:
- Consider semantic similarity, not just exact matches
- Use entity mappings to translate relationships
- Identify true conflicts vs. different perspectives
- Suggest the strongest/most canonical relationship form
- Be conservative with conflict detection`
