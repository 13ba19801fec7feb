package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/livefetch/internal/ir"
)

// marshalFields converts record fields to canonical JSON TEXT for storage.
// Canonical form keeps json_extract comparisons and golden output stable.
func marshalFields(fields ir.IRObject) (string, error) {
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses stored fields JSON back to IRObject.
func unmarshalFields(data string) (ir.IRObject, error) {
	var fields ir.IRObject
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if fields == nil {
		fields = ir.IRObject{}
	}
	return fields, nil
}
