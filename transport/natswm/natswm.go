// Package natswm provides a NATS Core transport built on watermill-nats. It
// trades the native request primitive for Watermill's delivery pipeline;
// queue groups map to watermill-nats queue group prefixes.
package natswm

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/ethermesh/transport"
	"github.com/drblury/ethermesh/transport/bridge"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-watermill"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the watermill-nats transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSWatermillCapabilities)
}

// Build creates a bridge connection over watermill-nats with JetStream
// disabled.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Conn, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	coreOnly := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:       url,
			Marshaler: marshaler,
			JetStream: coreOnly,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	subscriberConfig := func(group string) nats.SubscriberConfig {
		return nats.SubscriberConfig{
			URL:              url,
			QueueGroupPrefix: group,
			Unmarshaler:      marshaler,
			JetStream:        coreOnly,
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
		Capabilities: transport.NATSWatermillCapabilities,
	}, logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSWatermillCapabilities
}
