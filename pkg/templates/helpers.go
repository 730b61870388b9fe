package templates

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// FuncMap is available to every template.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"json":    ToJSON,
		"join":    strings.Join,
		"bullets": Bullets,
		"upper":   strings.ToUpper,
	}
}

// ToJSON renders v as indented JSON for prompts. Strings that already hold
// JSON are passed through untouched.
func ToJSON(v any) (string, error) {
	if s, ok := v.(string); ok && json.Valid([]byte(s)) {
		return s, nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode template value: %w", err)
	}
	return string(b), nil
}

// Bullets renders one "- item" line per element.
func Bullets(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}
