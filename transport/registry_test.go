package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock config for testing
type mockConfig struct {
	pubSubSystem string
}

func (m *mockConfig) GetPubSubSystem() string       { return m.pubSubSystem }
func (m *mockConfig) GetServiceName() string        { return "test-service" }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string { return "" }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetNATSURL() string            { return "" }
func (m *mockConfig) GetAWSRegion() string          { return "" }
func (m *mockConfig) GetAWSAccountID() string       { return "" }
func (m *mockConfig) GetAWSAccessKeyID() string     { return "" }
func (m *mockConfig) GetAWSSecretAccessKey() string { return "" }
func (m *mockConfig) GetAWSEndpoint() string        { return "" }

func stubBuilder(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Conn, error) {
	return &stubConn{}, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg)
	assert.NotNil(t, reg.builders)
	assert.NotNil(t, reg.capabilities)
	assert.Empty(t, reg.Names())
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	reg.Register("test-transport", stubBuilder)
	assert.True(t, reg.Has("test-transport"))
	assert.Contains(t, reg.Names(), "test-transport")
}

func TestRegistry_RegisterWithCapabilities(t *testing.T) {
	reg := NewRegistry()

	caps := Capabilities{
		Name:                 "test-transport",
		SupportsQueueGroups:  true,
		SupportsRequestReply: true,
	}

	reg.RegisterWithCapabilities("test-transport", stubBuilder, caps)

	retrievedCaps := reg.GetCapabilities("test-transport")
	assert.Equal(t, "test-transport", retrievedCaps.Name)
	assert.True(t, retrievedCaps.SupportsQueueGroups)
	assert.True(t, retrievedCaps.SupportsRequestReply)
}

func TestRegistry_GetCapabilities_Unknown(t *testing.T) {
	reg := NewRegistry()
	caps := reg.GetCapabilities("unknown")
	assert.Equal(t, "unknown", caps.Name)
	assert.False(t, caps.SupportsQueueGroups)
	assert.False(t, caps.SupportsRequestReply)
}

func TestRegistry_Build(t *testing.T) {
	reg := NewRegistry()

	var gotLogger watermill.LoggerAdapter
	reg.Register("test-transport", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Conn, error) {
		gotLogger = logger
		return &stubConn{}, nil
	})

	cfg := &mockConfig{pubSubSystem: "test-transport"}

	conn, err := reg.Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &stubConn{}, conn)
	assert.NotNil(t, gotLogger, "nil logger is replaced with a no-op logger")
}

func TestRegistry_Build_NilConfig(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Build(context.Background(), nil, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestRegistry_Build_UnknownTransport(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", stubBuilder)
	reg.Register("a", stubBuilder)
	cfg := &mockConfig{pubSubSystem: "unknown-transport"}

	_, err := reg.Build(context.Background(), cfg, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
	assert.Contains(t, err.Error(), "[a b]")
}

func TestRegistry_Build_BuilderError(t *testing.T) {
	reg := NewRegistry()

	expectedErr := errors.New("builder error")
	reg.Register("failing-transport", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Conn, error) {
		return nil, expectedErr
	})
	cfg := &mockConfig{pubSubSystem: "failing-transport"}

	_, err := reg.Build(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, expectedErr)
	assert.Contains(t, err.Error(), "build failing-transport transport")
}

func TestRegistry_Has(t *testing.T) {
	reg := NewRegistry()

	assert.False(t, reg.Has("test-transport"))

	reg.Register("test-transport", stubBuilder)
	assert.True(t, reg.Has("test-transport"))
	assert.False(t, reg.Has("other-transport"))
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()

	assert.Empty(t, reg.Names())

	reg.Register("transport3", stubBuilder)
	reg.Register("transport1", stubBuilder)
	reg.Register("transport2", stubBuilder)

	assert.Equal(t, []string{"transport1", "transport2", "transport3"}, reg.Names())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	// Register multiple transports concurrently
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			for j := 0; j < 100; j++ {
				reg.Register("transport", stubBuilder)
				reg.Has("transport")
				reg.Names()
				reg.GetCapabilities("transport")
			}
			done <- true
		}(i)
	}

	// Wait for all goroutines to complete
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.True(t, reg.Has("transport"))
}

func TestBuildWithDefaultRegistry(t *testing.T) {
	cfg := &mockConfig{pubSubSystem: "nonexistent"}

	// Should fail with unknown transport
	_, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestPackageLevelRegisterWithCapabilities(t *testing.T) {
	caps := Capabilities{
		Name:                "test-pkg-caps-transport",
		SupportsQueueGroups: true,
	}

	RegisterWithCapabilities("test-pkg-caps-transport", stubBuilder, caps)

	assert.True(t, DefaultRegistry.Has("test-pkg-caps-transport"))
	retrievedCaps := DefaultRegistry.GetCapabilities("test-pkg-caps-transport")
	assert.Equal(t, "test-pkg-caps-transport", retrievedCaps.Name)
	assert.True(t, retrievedCaps.SupportsQueueGroups)

	Register("test-pkg-transport", stubBuilder)
	assert.True(t, DefaultRegistry.Has("test-pkg-transport"))
}
