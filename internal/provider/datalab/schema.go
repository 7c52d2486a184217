package datalab

import "github.com/joseph-ayodele/podcheck/internal/provider"

var lineSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text":       map[string]any{"type": []any{"string", "null"}},
		"confidence": map[string]any{},
		"bbox":       map[string]any{"type": []any{"array", "null"}},
		"polygon":    map[string]any{"type": []any{"array", "null"}},
	},
}

// finalSchema is the minimal shape normalization relies on.
var finalSchema = provider.MustCompileSchema("datalab_final.json", map[string]any{
	"type":     "object",
	"required": []any{"status"},
	"properties": map[string]any{
		"status":     map[string]any{"type": "string"},
		"success":    map[string]any{"type": []any{"boolean", "null"}},
		"page_count": map[string]any{"type": []any{"integer", "null"}},
		"pages": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"page":       map[string]any{"type": []any{"integer", "null"}},
					"text_lines": map[string]any{"type": []any{"array", "null"}, "items": lineSchema},
					"lines":      map[string]any{"type": []any{"array", "null"}, "items": lineSchema},
				},
			},
		},
	},
})
