// Package kafka provides a Kafka transport for ethermesh. Queue groups map to
// Kafka consumer groups; subscriptions outside a group read every partition
// from the newest offset. Topics are created on first use, so the broker must
// allow automatic topic creation for reply inboxes.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/ethermesh/transport"
	"github.com/drblury/ethermesh/transport/bridge"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a bridge connection over watermill-kafka.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Conn, error) {
	brokers := cfg.GetKafkaBrokers()
	groupPrefix := cfg.GetKafkaConsumerGroup()

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	subscriberConfig := func(group string) kafka.SubscriberConfig {
		saramaConfig := kafka.DefaultSaramaSubscriberConfig()
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
		return kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			ConsumerGroup:         ConsumerGroupName(groupPrefix, group),
			OverwriteSaramaConfig: saramaConfig,
		}
	}

	broadcast, err := SubscriberFactory(subscriberConfig(""), logger)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	conn, err := bridge.New(bridge.Config{
		Publisher:  publisher,
		Subscriber: broadcast,
		NewSubscriber: func(group string) (message.Subscriber, error) {
			return SubscriberFactory(subscriberConfig(group), logger)
		},
		Capabilities: transport.KafkaCapabilities,
	}, logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ConsumerGroupName derives the consumer group for a queue group. An empty
// group yields no consumer group, which makes the subscription a broadcast.
func ConsumerGroupName(prefix, group string) string {
	if group == "" {
		return ""
	}
	if prefix == "" {
		return group
	}
	return prefix + "." + group
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
