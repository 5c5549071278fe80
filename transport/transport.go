// Package transport defines the capability contract ethermesh needs from a
// pub/sub backend: publish, subscribe with an optional queue group, and a
// correlated request with timeout. Each implementation (nats, kafka,
// rabbitmq, aws, etc.) lives in its own sub-package and registers itself with
// the transport registry.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/ethermesh/internal/runtime/metadata"
)

// DefaultRequestTimeout is used by connections until the service overrides it.
const DefaultRequestTimeout = 10 * time.Second

var (
	// ErrTimeout is returned by Request when no reply arrives in time.
	ErrTimeout = errors.New("transport: request timed out")
	// ErrNoResponders is returned by Request when the backend knows nobody listens.
	ErrNoResponders = errors.New("transport: no responders")
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("transport: connection closed")
	// ErrSubjectRequired is returned when a message has no subject.
	ErrSubjectRequired = errors.New("transport: subject is required")
	// ErrStatusReply marks a control reply sent by the broker instead of a peer.
	ErrStatusReply = errors.New("transport: broker status reply")
)

// StatusHeader is set by brokers on body-less control replies, such as the
// "503" NATS sends to a reply inbox when a subject has no subscribers.
const StatusHeader = "Status"

const noRespondersStatus = "503"

// Msg is a single message on the wire.
type Msg struct {
	Subject string
	Reply   string
	Data    []byte
	Header  metadata.Metadata
}

// StatusErr returns the failure a broker control reply stands for, or nil
// when msg came from a peer.
func (m *Msg) StatusErr() error {
	if m == nil || len(m.Data) > 0 {
		return nil
	}
	switch status := m.Header[StatusHeader]; status {
	case "":
		return nil
	case noRespondersStatus:
		return ErrNoResponders
	default:
		return fmt.Errorf("%w %s", ErrStatusReply, status)
	}
}

// MsgHandler receives inbound messages. Implementations invoke it from their
// own delivery goroutine; handlers that block delay further deliveries on the
// same subscription.
type MsgHandler func(msg *Msg)

// Subscription is an open interest in a subject.
type Subscription interface {
	Subject() string
	Queue() string
	Unsubscribe() error
}

// Conn is the transport capability consumed by a Service.
type Conn interface {
	// Publish sends msg without waiting for any reply.
	Publish(ctx context.Context, msg *Msg) error
	// Subscribe delivers messages on subject to h. A non-empty queue makes the
	// subscription part of a load-balanced group.
	Subscribe(subject, queue string, h MsgHandler) (Subscription, error)
	// Request publishes msg with a fresh reply address and waits for exactly one
	// reply. A non-positive timeout selects the connection default.
	Request(ctx context.Context, msg *Msg, timeout time.Duration) (*Msg, error)
	// NewInbox returns a unique reply subject.
	NewInbox() string
	// SetDefaultRequestTimeout overrides the timeout used by Request.
	SetDefaultRequestTimeout(d time.Duration)
	Close() error
}

// Builder is the function signature for creating a connection from config.
// Each transport package should provide a Builder function that can be registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Conn, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetPubSubSystem returns the transport type name.
	GetPubSubSystem() string
	// GetServiceName is used to name connections and derive queue names.
	GetServiceName() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by connections that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// ResolveTimeout returns timeout when positive, otherwise fallback, otherwise
// DefaultRequestTimeout.
func ResolveTimeout(timeout, fallback time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultRequestTimeout
}
