package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"cvscanner-backend/internal/shared/apperr"
	"cvscanner-backend/resume/model"
)

// ParseFormatted turns model output into a complete Formatted document.
// Code fences are stripped, loosely typed values coerced, missing fields
// defaulted, and the result validated against model.Schema. Any failure is a
// StructuringParseError and no partial document is returned.
func ParseFormatted(content string) (model.Formatted, json.RawMessage, error) {
	payload := StripCodeFences(content)
	if payload == "" {
		return model.Formatted{}, nil, parseError("", "model returned empty content", nil)
	}

	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.UseNumber()
	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return model.Formatted{}, nil, parseError("", "model output is not valid JSON", err)
	}
	if decoder.More() {
		return model.Formatted{}, nil, parseError("", "model output has trailing data after the JSON object", nil)
	}

	root, ok := decoded.(map[string]any)
	if !ok {
		return model.Formatted{}, nil, parseError("", fmt.Sprintf("model output is %s, not an object", jsonType(decoded)), nil)
	}

	coerced := coerceFormatted(root)
	if err := validateFormatted(coerced); err != nil {
		return model.Formatted{}, nil, err
	}

	raw, err := json.Marshal(coerced)
	if err != nil {
		return model.Formatted{}, nil, parseError("", "re-encode coerced output", err)
	}
	var formatted model.Formatted
	decoderStrict := json.NewDecoder(bytes.NewReader(raw))
	decoderStrict.DisallowUnknownFields()
	if err := decoderStrict.Decode(&formatted); err != nil {
		return model.Formatted{}, nil, parseError("", "decode coerced output", err)
	}
	formatted = formatted.Normalize()

	normalized, err := json.Marshal(formatted)
	if err != nil {
		return model.Formatted{}, nil, parseError("", "encode normalized output", err)
	}
	return formatted, normalized, nil
}

// StripCodeFences removes a surrounding ``` or ```json fence, if present.
func StripCodeFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(s[:nl]); tag == "" || !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseError(field, message string, cause error) error {
	return &apperr.Error{Kind: apperr.KindStructuringParseError, Message: message, Field: field, Err: cause}
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
