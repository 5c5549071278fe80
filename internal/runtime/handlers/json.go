// Package handlers holds the payload codecs behind the typed handler
// adapters: JSON payloads decode through jsoncodec, protobuf payloads through
// protojson.
package handlers

import (
	"encoding/json"
	"fmt"

	jsoncodec "github.com/drblury/ethermesh/internal/runtime/jsoncodec"
)

// DecodeJSON decodes a request payload into a fresh T. T may be a value or a
// pointer type; pointers are allocated.
func DecodeJSON[T any](data json.RawMessage) (T, error) {
	var typed T
	if jsoncodec.IsNull(data) {
		data = json.RawMessage("{}")
	}
	if err := jsoncodec.Unmarshal(data, &typed); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal %T payload: %w", typed, err)
	}
	return typed, nil
}

// EncodeJSON encodes a handler result.
func EncodeJSON(v any) (json.RawMessage, error) {
	raw, err := jsoncodec.Raw(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T result: %w", v, err)
	}
	return raw, nil
}
