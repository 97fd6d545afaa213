package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CanonicalJSON renders v as deterministic JSON: object keys sorted, no
// insignificant whitespace, numbers in their encoding/json form. Seed
// provenance checks compare live data against expected seed content through
// this form, so row equality never depends on column storage quirks or map
// iteration order.
func CanonicalJSON(v interface{}) (string, error) {
	// Round-trip through encoding/json so structs, json.RawMessage and raw
	// database bytes all collapse to the same tree shape.
	var tree interface{}
	switch raw := v.(type) {
	case nil:
		return "null", nil
	case []byte:
		if len(raw) == 0 {
			return "null", nil
		}
		if err := json.Unmarshal(raw, &tree); err != nil {
			return "", fmt.Errorf("canonicalize: %w", err)
		}
	default:
		enc, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("canonicalize: %w", err)
		}
		if err := json.Unmarshal(enc, &tree); err != nil {
			return "", fmt.Errorf("canonicalize: %w", err)
		}
	}
	var b strings.Builder
	if err := writeCanonical(&b, tree); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeCanonical(b *strings.Builder, v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kj, err := json.Marshal(k)
			if err != nil {
				return err
			}
			b.Write(kj)
			b.WriteByte(':')
			if err := writeCanonical(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil
	case []interface{}:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil
	default:
		enc, err := json.Marshal(t)
		if err != nil {
			return err
		}
		b.Write(enc)
		return nil
	}
}

// CanonicalEqual reports whether two values have identical canonical forms.
func CanonicalEqual(a, b interface{}) (bool, error) {
	ca, err := CanonicalJSON(a)
	if err != nil {
		return false, err
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		return false, err
	}
	return ca == cb, nil
}
