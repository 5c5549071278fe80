package runtime

import (
	"context"
	"encoding/json"

	"google.golang.org/protobuf/proto"

	handlerpkg "github.com/drblury/ethermesh/internal/runtime/handlers"
)

// JSONHandlerFunc is the typed form of a JSON controller.
type JSONHandlerFunc[T any, O any] func(ctx context.Context, ether *Ether, req T, subject string) (O, error)

// JSONHandler decodes the request payload into T and encodes the returned O
// as the reply payload. A payload that does not decode fails the task.
func JSONHandler[T any, O any](fn JSONHandlerFunc[T, O]) Handler {
	return HandlerFunc(func(ctx context.Context, ether *Ether, data json.RawMessage, subject string) (any, error) {
		req, err := handlerpkg.DecodeJSON[T](data)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, ether, req, subject)
		if err != nil {
			return nil, err
		}
		return handlerpkg.EncodeJSON(out)
	})
}

// ProtoHandlerFunc is the typed form of a protobuf controller.
type ProtoHandlerFunc[T proto.Message, O proto.Message] func(ctx context.Context, ether *Ether, req T, subject string) (O, error)

// ProtoHandler is like JSONHandler but maps payloads with protojson, so the
// wire format follows the proto JSON mapping.
func ProtoHandler[T proto.Message, O proto.Message](fn ProtoHandlerFunc[T, O]) Handler {
	return HandlerFunc(func(ctx context.Context, ether *Ether, data json.RawMessage, subject string) (any, error) {
		req, err := handlerpkg.DecodeProto[T](data)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, ether, req, subject)
		if err != nil {
			return nil, err
		}
		return handlerpkg.EncodeProto(out)
	})
}
