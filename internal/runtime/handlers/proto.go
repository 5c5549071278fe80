package handlers

import (
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/ethermesh/internal/runtime/errors"
)

var protoMarshal = protojson.MarshalOptions{UseProtoNames: false, EmitUnpopulated: false}

var protoUnmarshal = protojson.UnmarshalOptions{DiscardUnknown: true}

// NewProto allocates an empty message of type T. T must be a pointer to a
// generated message struct.
func NewProto[T proto.Message]() (T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return zero, errspkg.ErrPayloadPointerRequired
	}

	typed, ok := reflect.New(typ.Elem()).Interface().(T)
	if !ok {
		return zero, fmt.Errorf("unexpected prototype type %s", typ)
	}
	return typed, nil
}

// DecodeProto decodes a JSON request payload into a fresh T with protojson.
// Unknown fields are ignored so older services accept newer payloads.
func DecodeProto[T proto.Message](data json.RawMessage) (T, error) {
	typed, err := NewProto[T]()
	if err != nil {
		return typed, err
	}
	if len(data) == 0 || string(data) == "null" {
		return typed, nil
	}
	if err := protoUnmarshal.Unmarshal(data, typed); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal %T payload: %w", typed, err)
	}
	return typed, nil
}

// EncodeProto renders msg as protojson. A nil message encodes as JSON null.
func EncodeProto(msg proto.Message) (json.RawMessage, error) {
	if isNilProto(msg) {
		return json.RawMessage("null"), nil
	}
	data, err := protoMarshal.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T result: %w", msg, err)
	}
	return json.RawMessage(data), nil
}

func isNilProto(msg proto.Message) bool {
	if msg == nil {
		return true
	}
	val := reflect.ValueOf(msg)
	switch val.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}
