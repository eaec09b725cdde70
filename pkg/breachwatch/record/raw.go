package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RawExtraction is one notice as a source adapter produced it: arbitrary
// source-specific keys plus the source and, when known, the publisher's permalink.
type RawExtraction struct {
	SourceID  int
	OriginURL string
	Fields    map[string]any
}

// UnmarshalJSON reads the flat JSONL form: "source_id" and "origin_url" are lifted
// out of the object, every other key lands in Fields. Numbers decode as
// json.Number so counts keep their exact digits.
func (r *RawExtraction) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return err
	}

	*r = RawExtraction{Fields: make(map[string]any, len(obj))}
	for k, v := range obj {
		switch k {
		case "source_id":
			id, err := sourceIDOf(v)
			if err != nil {
				return err
			}
			r.SourceID = id
		case "origin_url":
			if s, ok := v.(string); ok {
				r.OriginURL = s
			}
		default:
			r.Fields[k] = v
		}
	}
	return nil
}

// MarshalJSON writes the flat form read by UnmarshalJSON.
func (r RawExtraction) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		obj[k] = v
	}
	if r.SourceID != 0 {
		obj["source_id"] = r.SourceID
	}
	if r.OriginURL != "" {
		obj["origin_url"] = r.OriginURL
	}
	return json.Marshal(obj)
}

func sourceIDOf(v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("source_id %q: %w", t, err)
		}
		return int(n), nil
	case float64:
		return int(t), nil
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("source_id %q: %w", t, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("source_id has unsupported type %T", v)
	}
}
