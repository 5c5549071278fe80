// Package transport resolves the connection a Service runs on when it is
// started through Connect rather than handed a connection directly.
package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/ethermesh/internal/runtime/config"
	conntransport "github.com/drblury/ethermesh/transport"

	// Import all transport packages to register them.
	_ "github.com/drblury/ethermesh/transport/transports"
)

// Factory abstracts how ethermesh opens transport connections.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (conntransport.Conn, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (conntransport.Conn, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (conntransport.Conn, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the built-in factory backed by the transport
// registry.
func DefaultFactory() Factory {
	return registryFactory{registry: conntransport.DefaultRegistry}
}

// RegistryFactory builds connections from a specific registry.
func RegistryFactory(registry *conntransport.Registry) Factory {
	return registryFactory{registry: registry}
}

type registryFactory struct {
	registry *conntransport.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (conntransport.Conn, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is required")
	}
	registry := f.registry
	if registry == nil {
		registry = conntransport.DefaultRegistry
	}
	return registry.Build(ctx, conf, logger)
}
