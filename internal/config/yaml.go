package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes accepts either JSON or YAML input and returns JSON bytes
// suitable for a strict json.Decoder. YAML documents are normalized so that
// map keys become strings before re-encoding.
func coerceToJSONBytes(path string, b []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(b, &v); err != nil {
			return nil, "", fmt.Errorf("parse yaml: %w", err)
		}
		v = normalizeYAML(v)
		jb, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("convert yaml to json: %w", err)
		}
		return jb, "yaml", nil
	default:
		return b, "json", nil
	}
}

// normalizeYAML converts map[any]any (as produced by older YAML decoders)
// into map[string]any recursively so the result is JSON-encodable.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
