package prompts

func tripleSchema() map[string]any {
	return map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "string"},
		"minItems": 3,
		"maxItems": 3,
	}
}

func entityResolutionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"resolutions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"new_entity":      map[string]any{"type": "string"},
						"existing_entity": map[string]any{"type": "string"},
						"confidence":      map[string]any{"type": "number"},
						"reason":          map[string]any{"type": "string"},
					},
					"required":             []string{"new_entity", "existing_entity", "confidence", "reason"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"resolutions"},
		"additionalProperties": false,
	}
}

func relationshipResolutionSchema() map[string]any {
	pair := func() map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"new_relationship":      tripleSchema(),
				"existing_relationship": tripleSchema(),
				"reason":                map[string]any{"type": "string"},
			},
			"required":             []string{"new_relationship", "existing_relationship", "reason"},
			"additionalProperties": false,
		}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duplicates": map[string]any{
				"type":  "array",
				"items": pair(),
			},
			"conflicts": map[string]any{
				"type":  "array",
				"items": pair(),
			},
			"updates": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"original_relationship": tripleSchema(),
						"updated_relationship":  tripleSchema(),
						"reason":                map[string]any{"type": "string"},
					},
					"required":             []string{"original_relationship", "updated_relationship", "reason"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"duplicates", "conflicts", "updates"},
		"additionalProperties": false,
	}
}
