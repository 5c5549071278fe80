package runtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/ethermesh/internal/runtime/config"
	loggingpkg "github.com/drblury/ethermesh/internal/runtime/logging"
	"github.com/drblury/ethermesh/transport"
	"github.com/drblury/ethermesh/transport/channel"
)

const testServiceName = "svc"

func testConfig() *configpkg.Config {
	return &configpkg.Config{
		ServiceName:           testServiceName,
		Version:               "1.2.3",
		DefaultRequestTimeout: 2 * time.Second,
		MetricsInterval:       time.Hour,
	}
}

func newTestConn(t *testing.T) transport.Conn {
	t.Helper()
	conn, err := channel.New(watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTestService(t *testing.T, conf *configpkg.Config, deps ServiceDependencies) *Service {
	t.Helper()
	if conf == nil {
		conf = testConfig()
	}
	svc, err := NewService(conf, loggingpkg.NewNopLogger(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// startTestService registers specs and starts the service on a private bus.
func startTestService(t *testing.T, specs ...ControllerSpec) (*Service, *Ether) {
	t.Helper()
	svc := newTestService(t, nil, ServiceDependencies{})
	for _, spec := range specs {
		_, err := svc.Use(spec)
		require.NoError(t, err)
	}
	ether, err := svc.Start(context.Background(), newTestConn(t))
	require.NoError(t, err)
	return svc, ether
}

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, _ *Ether, data json.RawMessage, _ string) (any, error) {
		return data, nil
	})
}

func constHandler(v any) Handler {
	return HandlerFunc(func(context.Context, *Ether, json.RawMessage, string) (any, error) {
		return v, nil
	})
}

func errHandler(err error) Handler {
	return HandlerFunc(func(context.Context, *Ether, json.RawMessage, string) (any, error) {
		return nil, err
	})
}

// recorder collects values from handler goroutines.
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}
