package core

import "encoding/json"

// AttributeField describes one variant attribute an item can carry on its
// movements (e.g. color, size). Options, when present, constrain the value
// set; Default fills the value when a movement omits it.
type AttributeField struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Options []string `json:"options,omitempty"`
	Default string   `json:"default,omitempty"`
}

// parseAttributeSchema decodes a stored attribute schema. Payloads arrive
// from loosely-typed upstream forms; anything malformed is treated as an
// absent schema rather than an error, keeping ingestion total.
func parseAttributeSchema(raw []byte) []AttributeField {
	if len(raw) == 0 {
		return nil
	}
	var fields []AttributeField
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	out := fields[:0]
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseAttributeValues decodes stored movement attribute values with the
// same absent-on-malformed policy.
func parseAttributeValues(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

// applyAttributeDefaults fills values missing from a movement with the
// schema defaults. The input map is not mutated.
func applyAttributeDefaults(schema []AttributeField, values map[string]string) map[string]string {
	if len(schema) == 0 {
		return values
	}
	out := make(map[string]string, len(values)+len(schema))
	for k, v := range values {
		out[k] = v
	}
	for _, f := range schema {
		if f.Default == "" {
			continue
		}
		if _, ok := out[f.Key]; !ok {
			out[f.Key] = f.Default
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// marshalJSONOrNil serializes to JSON for storage, mapping empty input to a
// SQL NULL. Marshal failures cannot occur for the map/slice shapes used here.
func marshalJSONOrNil(v any) []byte {
	switch t := v.(type) {
	case map[string]string:
		if len(t) == 0 {
			return nil
		}
	case []AttributeField:
		if len(t) == 0 {
			return nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
