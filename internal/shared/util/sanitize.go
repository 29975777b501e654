package util

import (
	"errors"
	"strings"
)

// SanitizeFileName removes path separators and rejects ".." path segments.
// Dots inside a name ("cv..final.png") are kept.
func SanitizeFileName(name string) (string, error) {
	s := strings.TrimSpace(name)
	segments := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' })
	for _, seg := range segments {
		if strings.TrimSpace(seg) == ".." {
			return "", errors.New("invalid file name")
		}
	}
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" || s == "." {
		return "", errors.New("invalid file name")
	}
	return s, nil
}

// FileLabel reduces an arbitrary label (an owner document number, a person's
// identity) to characters safe inside a download file name. It never fails;
// an empty result becomes "document".
func FileLabel(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "document"
	}
	return out
}
