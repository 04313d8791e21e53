package catalog

// Convenience terms accepted as top-level tool arguments.
const (
	termTitle       = "dcterms:title"
	termDescription = "dcterms:description"
)

// flattenConvenience folds the title and description shortcuts into the
// JSON-LD body as one-element literal value lists. An explicit term already
// present in data always wins; the input map is never mutated. The returned
// values omit property_id; the gateway resolves it from the term.
func flattenConvenience(data map[string]any, title, description string) map[string]any {
	out := make(map[string]any, len(data)+2)
	for k, v := range data {
		out[k] = v
	}
	if title != "" {
		if _, ok := out[termTitle]; !ok {
			out[termTitle] = []any{literal(title)}
		}
	}
	if description != "" {
		if _, ok := out[termDescription]; !ok {
			out[termDescription] = []any{literal(description)}
		}
	}
	return out
}

func literal(v string) map[string]any {
	return map[string]any{"type": "literal", "@value": v}
}
