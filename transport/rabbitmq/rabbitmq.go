// Package rabbitmq provides a RabbitMQ/AMQP transport for ethermesh. Every
// subject is a fanout exchange. A queue group shares one non-durable queue
// per subject, while each broadcast subscription gets its own queue.
package rabbitmq

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/ethermesh/internal/runtime/ids"
	"github.com/drblury/ethermesh/transport"
	"github.com/drblury/ethermesh/transport/bridge"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

// CloseConnection allows overriding how the shared connection is closed.
var CloseConnection = func(conn *amqp.ConnectionWrapper) error {
	return conn.Close()
}

func init() {
	Register()
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build creates a bridge connection over watermill-amqp sharing a single AMQP
// connection between the publisher and all subscribers.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Conn, error) {
	url := cfg.GetRabbitMQURL()

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := PublisherFactory(amqp.NewNonDurablePubSubConfig(url, nil), logger, conn)
	if err != nil {
		_ = CloseConnection(conn)
		return nil, err
	}

	bridged, err := bridge.New(bridge.Config{
		Publisher: &connPublisher{Publisher: publisher, conn: conn},
		NewSubscriber: func(group string) (message.Subscriber, error) {
			return SubscriberFactory(amqp.NewNonDurablePubSubConfig(url, QueueNameGenerator(group)), logger, conn)
		},
		Capabilities: transport.RabbitMQCapabilities,
	}, logger)
	if err != nil {
		return nil, err
	}
	return bridged, nil
}

// QueueNameGenerator names queues "<topic>_<group>" so members of a group
// compete for one queue. Without a group the suffix is unique, giving the
// subscription a private queue.
func QueueNameGenerator(group string) amqp.QueueNameGenerator {
	suffix := group
	if suffix == "" {
		suffix = ids.CreateULID()
	}
	return amqp.GenerateQueueNameTopicNameWithSuffix(suffix)
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

// connPublisher closes the shared AMQP connection together with the publisher.
type connPublisher struct {
	message.Publisher
	conn *amqp.ConnectionWrapper
}

func (p *connPublisher) Close() error {
	return errors.Join(p.Publisher.Close(), CloseConnection(p.conn))
}
