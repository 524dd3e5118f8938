package core

import (
	"encoding/json"

	"github.com/okatev/pulse/internal/domain"
)

// Encode flattens a payload struct into a wire frame with the event kind as
// the top-level "type" field, e.g. {"type":"typing","from":"a","to":"b"}.
func Encode(kind domain.EventKind, v any) (Frame, error) {
	m := make(map[string]any)
	if v != nil {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	}
	m["type"] = string(kind)
	out, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return Frame(out), nil
}
