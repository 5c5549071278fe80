package aws

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/ethermesh/transport"
)

func swapFactories(t *testing.T) {
	t.Helper()
	originalConfigLoader := DefaultConfigLoader
	originalTopicResolver := TopicResolverFactory
	originalPubFactory := PublisherFactory
	originalSubFactory := SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader = originalConfigLoader
		TopicResolverFactory = originalTopicResolver
		PublisherFactory = originalPubFactory
		SubscriberFactory = originalSubFactory
	})

	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		return &sns.GenerateArnTopicResolver{}, nil
	}
	PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return &mockPublisher{}, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return &mockSubscriber{}, nil
	}
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })

	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "aws", caps.Name)
	assert.True(t, caps.SupportsPersistence)
	assert.False(t, caps.SupportsRequestReply)
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.AWSCapabilities, caps)
	assert.Equal(t, "aws", caps.Name)
}

func TestTransportName(t *testing.T) {
	assert.Equal(t, "aws", TransportName)
}

func TestBuild(t *testing.T) {
	t.Run("creates connection with mocked factories", func(t *testing.T) {
		swapFactories(t)

		var published []string
		PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return &mockPublisher{topics: &published}, nil
		}
		var subscribers int
		SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			subscribers++
			assert.NotNil(t, cfg.GenerateSqsQueueName)
			return &mockSubscriber{}, nil
		}

		cfg := &mockConfig{awsRegion: "us-east-1", awsAccountID: "123456789012"}
		conn, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.Publish(context.Background(), &transport.Msg{Subject: "orders.created"}))
		assert.Equal(t, []string{"orders-created"}, published)

		noop := func(*transport.Msg) {}
		_, err = conn.Subscribe("orders.created", "workers", noop)
		require.NoError(t, err)
		_, err = conn.Subscribe("orders.updated", "workers", noop)
		require.NoError(t, err)
		_, err = conn.Subscribe("orders.created", "", noop)
		require.NoError(t, err)
		assert.Equal(t, 2, subscribers, "one subscriber per group plus one per broadcast subscription")
	})

	t.Run("passes endpoint overrides to SNS and SQS", func(t *testing.T) {
		swapFactories(t)

		var snsOpts, sqsOpts int
		PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			snsOpts = len(cfg.OptFns)
			return &mockPublisher{}, nil
		}
		SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			sqsOpts = len(sqsCfg.OptFns)
			return &mockSubscriber{}, nil
		}

		cfg := &mockConfig{awsRegion: "us-east-1", awsEndpoint: "http://localhost:4566"}
		conn, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Subscribe("orders", "", func(*transport.Msg) {})
		require.NoError(t, err)
		assert.Equal(t, 1, snsOpts)
		assert.Equal(t, 1, sqsOpts)
	})

	t.Run("returns error when config loader fails", func(t *testing.T) {
		swapFactories(t)
		DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("config error")
		}

		_, err := Build(context.Background(), &mockConfig{awsRegion: "us-east-1"}, watermill.NopLogger{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config error")
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		swapFactories(t)
		PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), &mockConfig{awsRegion: "us-east-1", awsAccountID: "123456789012"}, watermill.NopLogger{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publisher error")
	})

	t.Run("surfaces subscriber factory errors on subscribe", func(t *testing.T) {
		swapFactories(t)
		SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		conn, err := Build(context.Background(), &mockConfig{awsRegion: "us-east-1", awsAccountID: "123456789012"}, watermill.NopLogger{})
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Subscribe("orders", "", func(*transport.Msg) {})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "subscriber error")
	})
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "orders-created", TopicName("orders.created"))
	assert.Equal(t, "_INBOX-abc", TopicName("_INBOX.abc"))
	assert.Equal(t, "a_b_c", TopicName("a*b>c"))
	assert.Len(t, TopicName(strings.Repeat("x", 300)), maxTopicNameLength)
}

func TestQueueNameGenerator(t *testing.T) {
	arn := sns.TopicArn("arn:aws:sns:us-east-1:123456789012:orders-created")

	name, err := QueueNameGenerator("workers")(context.Background(), arn)
	require.NoError(t, err)
	assert.Equal(t, "orders-created-workers", name)

	first, err := QueueNameGenerator("")(context.Background(), arn)
	require.NoError(t, err)
	second, err := QueueNameGenerator("")(context.Background(), arn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "orders-created-"))
	assert.NotEqual(t, first, second)

	long := sns.TopicArn("arn:aws:sns:us-east-1:123456789012:" + strings.Repeat("t", 200))
	name, err = QueueNameGenerator("workers")(context.Background(), long)
	require.NoError(t, err)
	assert.Len(t, name, maxQueueNameLength)
	assert.True(t, strings.HasSuffix(name, "-workers"))
}

func TestResolveAccountAndRegion(t *testing.T) {
	t.Run("uses config values", func(t *testing.T) {
		cfg := &mockConfig{awsAccountID: "123456789012", awsRegion: "us-west-2"}
		accountID, region := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, "123456789012", accountID)
		assert.Equal(t, "us-west-2", region)
	})

	t.Run("uses fallback region when config region empty", func(t *testing.T) {
		cfg := &mockConfig{awsAccountID: "123456789012"}
		_, region := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, "us-east-1", region)
	})

	t.Run("uses localstack default when endpoint set and account empty", func(t *testing.T) {
		cfg := &mockConfig{awsEndpoint: "http://localhost:4566"}
		accountID, _ := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, localstackAccountID, accountID)
	})

	t.Run("replaces malformed account id for localstack", func(t *testing.T) {
		cfg := &mockConfig{awsEndpoint: "http://localhost:4566", awsAccountID: "'123'"}
		accountID, _ := resolveAccountAndRegion(cfg, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, localstackAccountID, accountID)
	})

	t.Run("returns empty values for nil config", func(t *testing.T) {
		accountID, region := resolveAccountAndRegion(nil, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, "", accountID)
		assert.Equal(t, "us-east-1", region)
	})
}

func TestAwsEndpointURL(t *testing.T) {
	url, err := awsEndpointURL(nil)
	assert.NoError(t, err)
	assert.Nil(t, url)

	url, err = awsEndpointURL(&mockConfig{})
	assert.NoError(t, err)
	assert.Nil(t, url)

	url, err = awsEndpointURL(&mockConfig{awsEndpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:4566", url.Host)

	_, err = awsEndpointURL(&mockConfig{awsEndpoint: "http://[::1"})
	assert.Error(t, err)
}

type mockConfig struct {
	awsRegion          string
	awsAccountID       string
	awsAccessKeyID     string
	awsSecretAccessKey string
	awsEndpoint        string
}

func (m *mockConfig) GetPubSubSystem() string       { return "aws" }
func (m *mockConfig) GetServiceName() string        { return "test" }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string { return "" }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetNATSURL() string            { return "" }
func (m *mockConfig) GetAWSRegion() string          { return m.awsRegion }
func (m *mockConfig) GetAWSAccountID() string       { return m.awsAccountID }
func (m *mockConfig) GetAWSAccessKeyID() string     { return m.awsAccessKeyID }
func (m *mockConfig) GetAWSSecretAccessKey() string { return m.awsSecretAccessKey }
func (m *mockConfig) GetAWSEndpoint() string        { return m.awsEndpoint }

type mockPublisher struct {
	topics *[]string
}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error {
	if m.topics != nil {
		*m.topics = append(*m.topics, topic)
	}
	return nil
}
func (m *mockPublisher) Close() error { return nil }

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
func (m *mockSubscriber) Close() error { return nil }
