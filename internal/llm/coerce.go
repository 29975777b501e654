package llm

import (
	"encoding/json"
	"strings"
)

var (
	stringFields     = []string{"fullName", "profession", "summary"}
	stringListFields = []string{"expertise", "keyAchievements", "languages", "certifications", "awards"}
	contactFields    = []string{"address", "email", "website"}
	experienceFields = []string{"jobTitle", "company", "startDate", "endDate"}
	educationFields  = []string{"degree", "institution", "startDate", "endDate", "details"}
)

// coerceFormatted projects decoded model output onto the schema's keys.
// null becomes "" or [], a bare string becomes a one-item list, a lone object
// becomes a one-item list and numbers become strings. Values that cannot be
// coerced are passed through unchanged so schema validation reports them.
func coerceFormatted(root map[string]any) map[string]any {
	out := make(map[string]any, 11)
	for _, name := range stringFields {
		out[name] = coerceString(root[name])
	}
	for _, name := range stringListFields {
		out[name] = coerceStringList(root[name])
	}

	switch contact := root["contact"].(type) {
	case nil:
		out["contact"] = projectObject(map[string]any{}, contactFields, nil)
	case map[string]any:
		out["contact"] = projectObject(contact, contactFields, nil)
	default:
		out["contact"] = contact
	}

	out["experience"] = coerceObjectList(root["experience"], func(item map[string]any) map[string]any {
		return projectObject(item, experienceFields, map[string]func(any) any{
			"responsibilities": func(v any) any { return coerceStringList(v) },
		})
	})
	out["education"] = coerceObjectList(root["education"], func(item map[string]any) map[string]any {
		return projectObject(item, educationFields, nil)
	})
	return out
}

func projectObject(src map[string]any, stringKeys []string, extra map[string]func(any) any) map[string]any {
	out := make(map[string]any, len(stringKeys)+len(extra))
	for _, key := range stringKeys {
		out[key] = coerceString(src[key])
	}
	for key, fn := range extra {
		out[key] = fn(src[key])
	}
	return out
}

func coerceString(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := coerceString(item).(string)
			if !ok {
				return v
			}
			if strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return v
	}
}

func coerceStringList(v any) any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case string:
		if strings.TrimSpace(t) == "" {
			return []any{}
		}
		return []any{t}
	case json.Number, bool:
		return []any{coerceString(t)}
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, coerceString(item))
		}
		return out
	default:
		return v
	}
}

func coerceObjectList(v any, project func(map[string]any) map[string]any) any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case map[string]any:
		return []any{project(t)}
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			switch obj := item.(type) {
			case nil:
				continue
			case map[string]any:
				out = append(out, project(obj))
			default:
				out = append(out, item)
			}
		}
		return out
	default:
		return v
	}
}
