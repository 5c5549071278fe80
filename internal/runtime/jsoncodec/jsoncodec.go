// Package jsoncodec is the single JSON entry point for envelopes and typed
// handlers. It is backed by sonic in std-compatible mode.
package jsoncodec

import (
	"encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

var null = json.RawMessage("null")

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}

// Raw encodes v as a raw JSON value. Values that already are raw JSON are
// passed through untouched and nil becomes JSON null.
func Raw(v any) (json.RawMessage, error) {
	switch typed := v.(type) {
	case nil:
		return null, nil
	case json.RawMessage:
		if len(typed) == 0 {
			return null, nil
		}
		return typed, nil
	}
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// IsNull reports whether raw is empty or the JSON null literal.
func IsNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
