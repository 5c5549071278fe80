// Package nats provides a NATS Core transport for ethermesh built directly on
// nats.go. Queue groups and correlated requests use the native primitives.
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/nats-io/nats.go"

	"github.com/drblury/ethermesh/internal/runtime/metadata"
	"github.com/drblury/ethermesh/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

const (
	defaultMaxReconnects = -1
	defaultReconnectWait = 2 * time.Second
	defaultConnTimeout   = 5 * time.Second
)

// ConnectFactory allows overriding the NATS connection for testing.
var ConnectFactory = func(url string, opts ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, opts...)
}

func init() {
	Register()
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build connects to the server configured by cfg.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Conn, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := ConnectFactory(url, connectionOptions(cfg.GetServiceName(), logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return New(nc, logger), nil
}

func connectionOptions(name string, logger watermill.LoggerAdapter) []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(defaultMaxReconnects),
		nats.ReconnectWait(defaultReconnectWait),
		nats.Timeout(defaultConnTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrlRedacted()})
		}),
	}
	if name != "" {
		opts = append(opts, nats.Name(name))
	}
	return opts
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

// Conn implements transport.Conn on a nats.go connection.
type Conn struct {
	nc      *nats.Conn
	logger  watermill.LoggerAdapter
	timeout atomic.Int64
}

var _ transport.Conn = (*Conn)(nil)

// New wraps an established NATS connection. The Conn takes ownership of nc.
func New(nc *nats.Conn, logger watermill.LoggerAdapter) *Conn {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	c := &Conn{nc: nc, logger: logger.With(watermill.LogFields{"transport": TransportName})}
	c.timeout.Store(int64(transport.DefaultRequestTimeout))
	return c
}

// Capabilities reports the NATS capability set.
func (c *Conn) Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

func (c *Conn) Publish(ctx context.Context, msg *transport.Msg) error {
	if msg == nil || msg.Subject == "" {
		return transport.ErrSubjectRequired
	}
	if err := c.nc.PublishMsg(toNATS(msg)); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, mapError(err))
	}
	return nil
}

func (c *Conn) Subscribe(subject, queue string, h transport.MsgHandler) (transport.Subscription, error) {
	if subject == "" {
		return nil, transport.ErrSubjectRequired
	}
	if h == nil {
		return nil, errors.New("nats: handler is required")
	}

	cb := func(m *nats.Msg) { h(fromNATS(m)) }

	var (
		sub *nats.Subscription
		err error
	)
	if queue != "" {
		sub, err = c.nc.QueueSubscribe(subject, queue, cb)
	} else {
		sub, err = c.nc.Subscribe(subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, mapError(err))
	}
	return subscription{sub: sub}, nil
}

func (c *Conn) Request(ctx context.Context, msg *transport.Msg, timeout time.Duration) (*transport.Msg, error) {
	if msg == nil || msg.Subject == "" {
		return nil, transport.ErrSubjectRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timeout = transport.ResolveTimeout(timeout, time.Duration(c.timeout.Load()))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := c.nc.RequestMsgWithContext(ctx, toNATS(msg))
	if err != nil {
		return nil, mapError(err)
	}
	return fromNATS(reply), nil
}

func (c *Conn) NewInbox() string {
	return c.nc.NewInbox()
}

func (c *Conn) SetDefaultRequestTimeout(d time.Duration) {
	if d > 0 {
		c.timeout.Store(int64(d))
	}
}

// Close drains pending messages and closes the connection.
func (c *Conn) Close() error {
	if c.nc.IsClosed() {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return mapError(err)
	}
	return nil
}

func toNATS(msg *transport.Msg) *nats.Msg {
	return &nats.Msg{
		Subject: msg.Subject,
		Reply:   msg.Reply,
		Data:    msg.Data,
		Header:  metadata.ToNATS(msg.Header),
	}
}

func fromNATS(m *nats.Msg) *transport.Msg {
	return &transport.Msg{
		Subject: m.Subject,
		Reply:   m.Reply,
		Data:    m.Data,
		Header:  metadata.FromNATS(m.Header),
	}
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return transport.ErrTimeout
	case errors.Is(err, nats.ErrNoResponders):
		return transport.ErrNoResponders
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrConnectionDraining):
		return transport.ErrClosed
	}
	return err
}

type subscription struct {
	sub *nats.Subscription
}

func (s subscription) Subject() string { return s.sub.Subject }
func (s subscription) Queue() string   { return s.sub.Queue }

func (s subscription) Unsubscribe() error {
	if !s.sub.IsValid() {
		return nil
	}
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrBadSubscription) {
		return mapError(err)
	}
	return nil
}
