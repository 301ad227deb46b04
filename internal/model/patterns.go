package model

import (
	"strings"

	"github.com/goccy/go-json"
)

// CleanPatterns trims every pattern and drops empty ones. The result is never nil.
func CleanPatterns(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParsePatternList decodes a stored pattern column. It accepts a JSON array,
// a JSON string, or legacy comma-separated text.
func ParsePatternList(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return []string{}
	}

	var list []any
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			if v == nil {
				continue
			}
			var s string
			switch x := v.(type) {
			case string:
				s = x
			default:
				b, err := json.Marshal(x)
				if err != nil {
					continue
				}
				s = string(b)
			}
			out = append(out, s)
		}
		return CleanPatterns(out)
	}

	var single string
	if err := json.Unmarshal([]byte(text), &single); err == nil {
		return CleanPatterns([]string{single})
	}

	var other any
	if err := json.Unmarshal([]byte(text), &other); err == nil {
		return []string{}
	}

	return CleanPatterns(strings.Split(text, ","))
}

// EncodePatternList encodes a pattern list for storage as a JSON array.
func EncodePatternList(values []string) string {
	b, err := json.Marshal(CleanPatterns(values))
	if err != nil {
		return "[]"
	}
	return string(b)
}
