// Package channel provides an in-memory transport backed by Watermill's Go
// channel pub/sub. It is useful for testing and local development: every
// service sharing the same PubSub instance sees the same subjects.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/ethermesh/transport"
	"github.com/drblury/ethermesh/transport/bridge"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

var (
	sharedMu sync.Mutex
	shared   *gochannel.GoChannel
)

func init() {
	Register()
}

// Register registers the channel transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build returns a connection on the process-wide in-memory bus, so services
// built from config in the same process can reach each other.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Conn, error) {
	sharedMu.Lock()
	if shared == nil {
		shared = Factory(gochannel.Config{}, logger)
	}
	pubSub := shared
	sharedMu.Unlock()

	conn, err := Connect(pubSub, logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// New returns a connection on its own private bus.
func New(logger watermill.LoggerAdapter) (*bridge.Conn, error) {
	pubSub := Factory(gochannel.Config{}, logger)
	return bridge.New(bridge.Config{
		Publisher:    pubSub,
		Subscriber:   pubSub,
		Capabilities: transport.ChannelCapabilities,
	}, logger)
}

// Connect returns a connection on an existing bus. Closing it leaves the bus
// running.
func Connect(pubSub *gochannel.GoChannel, logger watermill.LoggerAdapter) (*bridge.Conn, error) {
	return bridge.New(bridge.Config{
		Publisher:    nopCloser{pubSub},
		Subscriber:   nopCloser{pubSub},
		Capabilities: transport.ChannelCapabilities,
	}, logger)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

// nopCloser keeps a shared bus open when one of its connections closes.
type nopCloser struct {
	*gochannel.GoChannel
}

func (nopCloser) Close() error { return nil }
