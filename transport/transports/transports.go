// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/ethermesh/transport/aws"
	_ "github.com/drblury/ethermesh/transport/channel"
	_ "github.com/drblury/ethermesh/transport/kafka"
	_ "github.com/drblury/ethermesh/transport/nats"
	_ "github.com/drblury/ethermesh/transport/natswm"
	_ "github.com/drblury/ethermesh/transport/rabbitmq"
)
