package resolution

import (
	"encoding/json"
	"strings"

	"github.com/yungbote/videograph-backend/internal/domain"
)

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func floatFromAny(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

func sliceFromAny(v any) []any {
	s, _ := v.([]any)
	return s
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// tripleFromAny decodes a judge-emitted [subject, relation, object] array.
func tripleFromAny(v any) (domain.Triple, bool) {
	parts := sliceFromAny(v)
	if len(parts) != 3 {
		return domain.Triple{}, false
	}
	t := domain.Triple{
		Subject:  stringFromAny(parts[0]),
		Relation: stringFromAny(parts[1]),
		Object:   stringFromAny(parts[2]),
	}
	if !t.Valid() {
		return domain.Triple{}, false
	}
	return t, true
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
