package llm

// BuildBillJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic
// map. We use it locally to reject replies missing any of the four required
// top-level fields. Value types are deliberately loose (number or string):
// models return both, and billdata owns coercion.
func BuildBillJSONSchema() map[string]any {
	amount := map[string]any{"type": []string{"number", "string"}}

	return map[string]any{
		"type":     "object",
		"required": []string{"items", "subtotal", "tax", "total"},
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"name", "price"},
					"properties": map[string]any{
						"name":     map[string]any{"type": "string"},
						"quantity": map[string]any{"type": []string{"number", "string", "null"}},
						"price":    amount,
					},
				},
			},
			"subtotal": amount,
			"tax":      amount,
			"total":    amount,
		},
	}
}
