package model

import "sort"

func stringProp() map[string]any {
	return map[string]any{"type": "string"}
}

func stringList() map[string]any {
	return map[string]any{"type": "array", "items": stringProp()}
}

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// Schema returns the JSON schema every stored Formatted document satisfies.
// All fields are required; lists hold strings or the typed entry objects.
func Schema() map[string]any {
	experience := object(map[string]any{
		"jobTitle":         stringProp(),
		"company":          stringProp(),
		"startDate":        stringProp(),
		"endDate":          stringProp(),
		"responsibilities": stringList(),
	})
	education := object(map[string]any{
		"degree":      stringProp(),
		"institution": stringProp(),
		"startDate":   stringProp(),
		"endDate":     stringProp(),
		"details":     stringProp(),
	})
	root := object(map[string]any{
		"fullName":   stringProp(),
		"profession": stringProp(),
		"summary":    stringProp(),
		"contact": object(map[string]any{
			"address": stringProp(),
			"email":   stringProp(),
			"website": stringProp(),
		}),
		"expertise":       stringList(),
		"keyAchievements": stringList(),
		"experience":      map[string]any{"type": "array", "items": experience},
		"education":       map[string]any{"type": "array", "items": education},
		"languages":       stringList(),
		"certifications":  stringList(),
		"awards":          stringList(),
	})
	root["$schema"] = "http://json-schema.org/draft-07/schema#"
	root["title"] = "Formatted"
	return root
}

// FieldNames lists the top-level JSON keys in declaration order. Prompts and
// coercion use it to describe and fill the schema.
func FieldNames() []string {
	return []string{
		"fullName", "profession", "summary", "contact", "expertise", "keyAchievements",
		"experience", "education", "languages", "certifications", "awards",
	}
}
