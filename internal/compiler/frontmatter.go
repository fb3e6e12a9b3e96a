package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ParseFrontmatter decodes front-matter into JSON-compatible data: nested
// maps are map[string]any, numbers are float64 and dates are RFC 3339
// strings, so a payload parsed here compares equal to one that has crossed
// a JSON boundary.
func ParseFrontmatter(fm *RawFrontmatter) (map[string]any, error) {
	if fm == nil {
		return nil, nil
	}

	if len(fm.Data) > 0 {
		return decodeObject(fm.Data)
	}

	var (
		parsed any
		err    error
	)
	switch fm.Format {
	case FormatYAML, "":
		var m any
		err = yaml.Unmarshal([]byte(fm.Raw), &m)
		parsed = m
	case FormatTOML:
		var m map[string]any
		err = toml.Unmarshal([]byte(fm.Raw), &m)
		parsed = m
	default:
		return nil, fmt.Errorf("unsupported front-matter format %q", fm.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s front-matter: %w", formatName(fm.Format), err)
	}

	if parsed == nil && strings.TrimSpace(fm.Raw) == "" {
		return map[string]any{}, nil
	}

	normalized, err := jsonCompatible(parsed)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode front-matter: %w", err)
	}
	return decodeObject(data)
}

func formatName(f FrontmatterFormat) string {
	if f == "" {
		return string(FormatYAML)
	}
	return string(f)
}

func decodeObject(data []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode front-matter: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("front-matter must be a mapping, got %T", v)
	}
	return m, nil
}

// jsonCompatible rewrites the map[any]any values YAML can produce.
func jsonCompatible(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			conv, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			conv, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = conv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			conv, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}
