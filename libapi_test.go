package ethermesh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/ethermesh/transport/channel"
)

type greeting struct {
	Name string `json:"name"`
}

func TestServiceExportsRoundTrip(t *testing.T) {
	svc, err := NewService(&Config{ServiceName: "greeter", MetricsInterval: time.Hour}, NewNopLogger(), ServiceDependencies{})
	if err != nil {
		t.Fatalf("unexpected error creating service: %v", err)
	}
	defer svc.Close()

	svc.MustUse(ControllerSpec{
		Subject: "greet",
		Handler: JSONHandler(func(_ context.Context, _ *Ether, req greeting, _ string) (string, error) {
			return "hello " + req.Name, nil
		}),
	})

	conn, err := channel.New(watermill.NopLogger{})
	if err != nil {
		t.Fatalf("unexpected error creating connection: %v", err)
	}
	defer conn.Close()

	ether, err := svc.Start(context.Background(), conn)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	raw, err := ether.Ask(context.Background(), "greet", greeting{Name: "ada"}, WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("unexpected ask error: %v", err)
	}
	var reply string
	if err := Unmarshal(raw, &reply); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
	if reply != "hello ada" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestConstructorExportsPropagateErrors(t *testing.T) {
	if _, err := NewService(nil, NewNopLogger(), ServiceDependencies{}); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}

	svc := MustNewService(&Config{ServiceName: "svc"}, NewNopLogger(), ServiceDependencies{})
	defer svc.Close()
	if _, err := svc.Use(ControllerSpec{Subject: "x"}); !errors.Is(err, ErrHandlerRequired) {
		t.Fatalf("expected handler required error, got %v", err)
	}
}

func TestProtoHandlerExport(t *testing.T) {
	h := ProtoHandler(func(_ context.Context, _ *Ether, req *structpb.Struct, _ string) (*structpb.Struct, error) {
		return req, nil
	})
	out, err := h.Handle(context.Background(), nil, []byte(`{"a":1}`), "echo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatal("expected encoded proto result")
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata("key", "value")
	if md["key"] != "value" {
		t.Fatalf("expected metadata to contain key, got %#v", md)
	}
}

func TestTransportExports(t *testing.T) {
	if !DefaultTransportRegistry.Has("channel") {
		t.Fatal("expected channel transport to be registered")
	}
	if caps := GetCapabilities("nats"); !caps.SupportsQueueGroups {
		t.Fatalf("expected nats to support queue groups, got %+v", caps)
	}
}
