package backend

import (
	"encoding/json"
	"strings"
)

// Best-effort structured parsing of backend responses. Backends wrap JSON in
// prose, code fences, or return the wrong shape entirely; these helpers
// extract what they can and report success instead of raising errors.

// ExtractObject returns the first well-formed JSON object in the text.
// When the first JSON value is an array, it falls back to the first object
// found after it.
func ExtractObject(text string) (map[string]any, bool) {
	raw := extractBalanced(text, '{')
	if raw != "" {
		var out map[string]any
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, true
		}
	}
	return nil, false
}

// ExtractArray returns the first well-formed JSON array in the text, trying
// an array before an object wrapper.
func ExtractArray(text string) ([]any, bool) {
	raw := extractBalanced(text, '[')
	if raw != "" {
		var out []any
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, true
		}
	}
	// Some backends wrap the list in an object; accept any array-valued key.
	if obj, ok := ExtractObject(text); ok {
		for _, v := range obj {
			if arr, ok := v.([]any); ok {
				return arr, true
			}
		}
	}
	return nil, false
}

// StringList coerces an arbitrary decoded value into a list of strings,
// truncated to max entries. Scalars become a single-element list.
func StringList(v any, max int) []string {
	var out []string
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		for _, item := range vv {
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, vv...)
	default:
		if s := stringify(vv); s != "" {
			out = append(out, s)
		}
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// Sanitize coerces decoded JSON into plain maps/slices/scalars so the value
// round-trips through storage without surprises.
func Sanitize(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, item := range vv {
			out[k] = Sanitize(item)
		}
		return out
	case []any:
		out := make([]any, 0, len(vv))
		for _, item := range vv {
			out = append(out, Sanitize(item))
		}
		return out
	case string, bool, float64, int, int64, nil:
		return vv
	default:
		return stringify(vv)
	}
}

// SanitizeMap is Sanitize constrained to an object shape.
func SanitizeMap(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out, _ := Sanitize(v).(map[string]any)
	return out
}

func stringify(v any) string {
	switch vv := v.(type) {
	case string:
		return strings.TrimSpace(vv)
	case nil:
		return ""
	default:
		data, err := json.Marshal(vv)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// extractBalanced finds the first balanced JSON value opening with the
// preferred delimiter, respecting strings and escapes.
func extractBalanced(text string, prefer byte) string {
	start := strings.IndexByte(text, prefer)
	if start == -1 {
		return ""
	}

	open := text[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if ch == '{' || ch == '[' {
			depth++
		} else if ch == '}' || ch == ']' {
			depth--
			if depth == 0 {
				if ch == closer {
					return text[start : i+1]
				}
				return ""
			}
		}
	}
	return ""
}
