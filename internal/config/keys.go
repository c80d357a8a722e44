package config

import "strings"

// normalizeKey converts a snake_case or kebab-case key segment to camelCase,
// so dotted-path and flat-config input can use either spelling.
func normalizeKey(key string) string {
	if !strings.ContainsAny(key, "_-") {
		return key
	}
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 {
		return key
	}
	out := strings.ToLower(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		out += strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return out
}

// normalizeKeysDeep recursively normalizes all map keys in a decoded JSON value
// (maps, slices of maps) so field lookups tolerate snake_case input.
func normalizeKeysDeep(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[normalizeKey(k)] = normalizeKeysDeep(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeKeysDeep(val)
		}
		return out
	default:
		return v
	}
}
