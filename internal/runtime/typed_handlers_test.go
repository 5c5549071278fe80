package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type quoteRequest struct {
	Symbol string `json:"symbol"`
	Qty    int    `json:"qty"`
}

type quoteReply struct {
	Total int `json:"total"`
}

func TestJSONHandler(t *testing.T) {
	h := JSONHandler(func(_ context.Context, _ *Ether, req *quoteRequest, subject string) (quoteReply, error) {
		assert.Equal(t, "price.quote", subject)
		return quoteReply{Total: req.Qty * 10}, nil
	})

	out, err := h.Handle(context.Background(), nil, json.RawMessage(`{"symbol":"ACME","qty":3}`), "price.quote")
	require.NoError(t, err)
	raw, ok := out.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"total":30}`, string(raw))
}

func TestJSONHandlerDecodeFailure(t *testing.T) {
	called := false
	h := JSONHandler(func(context.Context, *Ether, quoteRequest, string) (quoteReply, error) {
		called = true
		return quoteReply{}, nil
	})

	_, err := h.Handle(context.Background(), nil, json.RawMessage(`{"qty":"many"}`), "price.quote")
	require.Error(t, err)
	assert.False(t, called)
}

func TestJSONHandlerPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	h := JSONHandler(func(context.Context, *Ether, quoteRequest, string) (quoteReply, error) {
		return quoteReply{}, boom
	})

	_, err := h.Handle(context.Background(), nil, json.RawMessage(`{}`), "price.quote")
	assert.ErrorIs(t, err, boom)
}

func TestProtoHandler(t *testing.T) {
	h := ProtoHandler(func(_ context.Context, _ *Ether, req *structpb.Struct, _ string) (*wrapperspb.StringValue, error) {
		return wrapperspb.String(req.GetFields()["name"].GetStringValue()), nil
	})

	out, err := h.Handle(context.Background(), nil, json.RawMessage(`{"name":"ada"}`), "greet")
	require.NoError(t, err)
	raw, ok := out.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `"ada"`, string(raw))
}

func TestProtoHandlerOverTransport(t *testing.T) {
	_, ether := startTestService(t, ControllerSpec{
		Subject: "greet",
		Handler: ProtoHandler(func(_ context.Context, _ *Ether, req *structpb.Struct, _ string) (*structpb.Struct, error) {
			return structpb.NewStruct(map[string]any{"hello": req.GetFields()["name"].GetStringValue()})
		}),
	})

	got, err := ether.Ask(context.Background(), "greet", map[string]string{"name": "ada"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"ada"}`, string(got))
}
