package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsQueueGroups indicates the backend load-balances a queue group
	// itself. When false, grouping is emulated in-process.
	SupportsQueueGroups bool

	// SupportsRequestReply indicates the backend has a native correlated
	// request primitive. When false, Request subscribes to a fresh inbox and
	// waits for the first message on it.
	SupportsRequestReply bool

	// SupportsHeaders indicates message headers are carried on the wire.
	SupportsHeaders bool

	// SupportsOrdering indicates the transport preserves publish order per subject.
	SupportsOrdering bool

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsPersistence indicates published messages outlive the publisher.
	SupportsPersistence bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the transport.
	Name string

	// Version is the transport/driver version.
	Version string
}

// RequiresGroupEmulation returns true if queue groups must be balanced by the
// connection rather than the broker.
func (c Capabilities) RequiresGroupEmulation() bool {
	return !c.SupportsQueueGroups
}

// RequiresReplyEmulation returns true if Request is built from an inbox
// subscription plus a publish.
func (c Capabilities) RequiresReplyEmulation() bool {
	return !c.SupportsRequestReply
}

// Predefined capability sets for the bundled transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:                 "channel",
		SupportsQueueGroups:  false,
		SupportsRequestReply: false,
		SupportsHeaders:      true,
		SupportsOrdering:     true,
		SupportsAck:          true,
	}

	// NATSCapabilities for the native NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:                 "nats",
		SupportsQueueGroups:  true,
		SupportsRequestReply: true,
		SupportsHeaders:      true,
		SupportsOrdering:     true,
		MaxMessageSize:       1048576, // Default 1MB
	}

	// NATSWatermillCapabilities for NATS Core through watermill-nats.
	NATSWatermillCapabilities = Capabilities{
		Name:                "nats-watermill",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsOrdering:    true,
		SupportsAck:         true,
		MaxMessageSize:      1048576, // Default 1MB
	}

	// KafkaCapabilities for Apache Kafka transport.
	KafkaCapabilities = Capabilities{
		Name:                "kafka",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsOrdering:    true,
		SupportsAck:         true,
		SupportsPersistence: true,
		MaxMessageSize:      1048576, // Default 1MB
	}

	// RabbitMQCapabilities for RabbitMQ/AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:                "rabbitmq",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsOrdering:    true,
		SupportsAck:         true,
	}

	// AWSCapabilities for AWS SNS/SQS transport.
	AWSCapabilities = Capabilities{
		Name:                "aws",
		SupportsQueueGroups: true,
		SupportsHeaders:     true,
		SupportsAck:         true,
		SupportsPersistence: true,
		MaxMessageSize:      262144, // 256KB
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Uses the registry to look up capabilities registered by each transport package.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
