// Package bridge adapts a Watermill publisher/subscriber pair to the
// transport.Conn contract. Subjects map to topics, reply addresses travel in
// reserved metadata keys, and Request is built from a short-lived inbox
// subscription.
//
// Queue groups are delegated to the backend when a SubscriberFactory is
// configured (consumer groups, shared queues, NATS queue groups). Otherwise
// members of a group share one broadcast subscription and receive messages in
// round-robin order within the process.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/ethermesh/internal/runtime/ids"
	"github.com/drblury/ethermesh/internal/runtime/metadata"
	"github.com/drblury/ethermesh/transport"
)

// Reserved metadata keys. They are stripped from Msg.Header on delivery.
const (
	SubjectKey = "_ethermesh_subject"
	ReplyKey   = "_ethermesh_reply"
)

// SubscriberFactory creates a Watermill subscriber. A non-empty group must
// return a subscriber whose consumers share deliveries for that group. An
// empty group must return a subscriber that receives every message; it is
// owned by a single subscription and closed when that subscription ends.
type SubscriberFactory func(group string) (message.Subscriber, error)

// Config wires a backend into the bridge.
type Config struct {
	Publisher message.Publisher
	// Subscriber is a shared broadcast subscriber. Each Subscribe call on it
	// must receive every message published to the topic.
	Subscriber message.Subscriber
	// NewSubscriber creates subscribers on demand. Used for queue groups and,
	// when Subscriber is nil, for broadcast subscriptions.
	NewSubscriber SubscriberFactory
	Capabilities  transport.Capabilities
	// Topic maps a subject to a backend topic name. Defaults to the subject.
	Topic func(subject string) string
	// DefaultRequestTimeout is used until SetDefaultRequestTimeout is called.
	DefaultRequestTimeout time.Duration
}

// Conn implements transport.Conn over Watermill.
type Conn struct {
	cfg    Config
	logger watermill.LoggerAdapter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	timeout atomic.Int64

	mu        sync.Mutex
	closed    bool
	groupSubs map[string]message.Subscriber
	fanouts   map[string]*groupFanout
	subs      map[*subscription]struct{}
}

var _ transport.Conn = (*Conn)(nil)

// New creates a bridge connection.
func New(cfg Config, logger watermill.LoggerAdapter) (*Conn, error) {
	if cfg.Publisher == nil {
		return nil, errors.New("bridge: publisher is required")
	}
	if cfg.Subscriber == nil && cfg.NewSubscriber == nil {
		return nil, errors.New("bridge: subscriber or subscriber factory is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg.Topic == nil {
		cfg.Topic = func(subject string) string { return subject }
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		cfg:       cfg,
		logger:    logger.With(watermill.LogFields{"transport": cfg.Capabilities.Name}),
		ctx:       ctx,
		cancel:    cancel,
		groupSubs: make(map[string]message.Subscriber),
		fanouts:   make(map[string]*groupFanout),
		subs:      make(map[*subscription]struct{}),
	}
	c.timeout.Store(int64(transport.ResolveTimeout(cfg.DefaultRequestTimeout, 0)))
	return c, nil
}

// Capabilities reports the backend capabilities.
func (c *Conn) Capabilities() transport.Capabilities {
	return c.cfg.Capabilities
}

// NewInbox returns a unique reply subject.
func (c *Conn) NewInbox() string {
	return ids.NewInbox()
}

// SetDefaultRequestTimeout overrides the timeout used by Request.
func (c *Conn) SetDefaultRequestTimeout(d time.Duration) {
	if d > 0 {
		c.timeout.Store(int64(d))
	}
}

func (c *Conn) defaultTimeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// Publish sends msg to the topic mapped from its subject.
func (c *Conn) Publish(ctx context.Context, msg *transport.Msg) error {
	if msg == nil || msg.Subject == "" {
		return transport.ErrSubjectRequired
	}
	if c.isClosed() {
		return transport.ErrClosed
	}

	wm := message.NewMessage(watermill.NewUUID(), msg.Data)
	wm.Metadata = metadata.ToWatermill(msg.Header)
	wm.Metadata.Set(SubjectKey, msg.Subject)
	if msg.Reply != "" {
		wm.Metadata.Set(ReplyKey, msg.Reply)
	}
	if ctx != nil {
		wm.SetContext(ctx)
	}

	if err := c.cfg.Publisher.Publish(c.cfg.Topic(msg.Subject), wm); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Subscribe delivers messages on subject to h, load-balanced within queue
// when queue is non-empty.
func (c *Conn) Subscribe(subject, queue string, h transport.MsgHandler) (transport.Subscription, error) {
	if subject == "" {
		return nil, transport.ErrSubjectRequired
	}
	if h == nil {
		return nil, errors.New("bridge: handler is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, transport.ErrClosed
	}

	sub := &subscription{conn: c, subject: subject, queue: queue, handler: h}

	var err error
	switch {
	case queue == "":
		err = c.subscribeBroadcastLocked(sub)
	case c.cfg.NewSubscriber != nil:
		err = c.subscribeGroupLocked(sub)
	default:
		err = c.subscribeFanoutLocked(sub)
	}
	if err != nil {
		return nil, err
	}

	c.subs[sub] = struct{}{}
	c.logger.Debug("Subscribed", watermill.LogFields{"subject": subject, "queue": queue})
	return sub, nil
}

func (c *Conn) subscribeBroadcastLocked(sub *subscription) error {
	wsub := c.cfg.Subscriber
	var owned message.Subscriber
	if wsub == nil {
		created, err := c.cfg.NewSubscriber("")
		if err != nil {
			return fmt.Errorf("create subscriber for %s: %w", sub.subject, err)
		}
		wsub, owned = created, created
	}

	cancel, err := c.consumeLocked(wsub, sub.subject, sub.handler)
	if err != nil {
		if owned != nil {
			_ = owned.Close()
		}
		return err
	}
	sub.release = func() error {
		cancel()
		if owned != nil {
			return owned.Close()
		}
		return nil
	}
	return nil
}

func (c *Conn) subscribeGroupLocked(sub *subscription) error {
	wsub, ok := c.groupSubs[sub.queue]
	if !ok {
		created, err := c.cfg.NewSubscriber(sub.queue)
		if err != nil {
			return fmt.Errorf("create subscriber for group %s: %w", sub.queue, err)
		}
		c.groupSubs[sub.queue] = created
		wsub = created
	}

	cancel, err := c.consumeLocked(wsub, sub.subject, sub.handler)
	if err != nil {
		return err
	}
	sub.release = func() error {
		cancel()
		return nil
	}
	return nil
}

func (c *Conn) subscribeFanoutLocked(sub *subscription) error {
	key := sub.subject + "\x00" + sub.queue
	fanout, ok := c.fanouts[key]
	if !ok {
		fanout = &groupFanout{}
		probe := &subscription{conn: c, subject: sub.subject, handler: fanout.deliver}
		if err := c.subscribeBroadcastLocked(probe); err != nil {
			return err
		}
		fanout.stop = probe.release
		c.fanouts[key] = fanout
	}

	fanout.add(sub)
	sub.release = func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if fanout.remove(sub) > 0 {
			return nil
		}
		if c.fanouts[key] == fanout {
			delete(c.fanouts, key)
		}
		return fanout.stop()
	}
	return nil
}

// consumeLocked starts a delivery loop for subject on wsub and returns the
// function that stops it.
func (c *Conn) consumeLocked(wsub message.Subscriber, subject string, h transport.MsgHandler) (context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(c.ctx)
	messages, err := wsub.Subscribe(ctx, c.cfg.Topic(subject))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for wm := range messages {
			h(toMsg(subject, wm))
			wm.Ack()
		}
	}()
	return cancel, nil
}

func toMsg(subject string, wm *message.Message) *transport.Msg {
	header := metadata.FromWatermill(wm.Metadata)
	msg := &transport.Msg{
		Subject: subject,
		Reply:   header[ReplyKey],
		Data:    wm.Payload,
		Header:  header.Without(SubjectKey, ReplyKey),
	}
	if original := header[SubjectKey]; original != "" {
		msg.Subject = original
	}
	return msg
}

// Request publishes msg with a fresh inbox as its reply address and waits for
// the first message on that inbox.
func (c *Conn) Request(ctx context.Context, msg *transport.Msg, timeout time.Duration) (*transport.Msg, error) {
	if msg == nil || msg.Subject == "" {
		return nil, transport.ErrSubjectRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timeout = transport.ResolveTimeout(timeout, c.defaultTimeout())

	replies := make(chan *transport.Msg, 1)
	inbox := c.NewInbox()
	sub, err := c.Subscribe(inbox, "", func(reply *transport.Msg) {
		select {
		case replies <- reply:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = sub.Unsubscribe() }()

	req := *msg
	req.Reply = inbox
	if err := c.Publish(ctx, &req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		return nil, transport.ErrTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, transport.ErrTimeout
		}
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, transport.ErrClosed
	}
}

// Close stops every subscription and closes the underlying Watermill
// publisher and subscribers.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*subscription, 0, len(c.subs))
	for sub := range c.subs {
		subs = append(subs, sub)
	}
	groupSubs := c.groupSubs
	c.groupSubs = make(map[string]message.Subscriber)
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	c.cancel()
	c.wg.Wait()

	for group, wsub := range groupSubs {
		if err := wsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber for group %s: %w", group, err))
		}
	}
	if c.cfg.Subscriber != nil {
		if err := c.cfg.Subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if closer, ok := c.cfg.Publisher.(message.Subscriber); !ok || closer != c.cfg.Subscriber {
		if err := c.cfg.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) forget(sub *subscription) {
	c.mu.Lock()
	delete(c.subs, sub)
	c.mu.Unlock()
}

type subscription struct {
	conn    *Conn
	subject string
	queue   string
	handler transport.MsgHandler
	release func() error

	once sync.Once
	err  error
}

func (s *subscription) Subject() string { return s.subject }
func (s *subscription) Queue() string   { return s.queue }

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.conn.forget(s)
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

// groupFanout round-robins messages from one broadcast subscription across
// the members of a queue group.
type groupFanout struct {
	mu      sync.Mutex
	members []*subscription
	next    int
	stop    func() error
}

func (f *groupFanout) add(sub *subscription) {
	f.mu.Lock()
	f.members = append(f.members, sub)
	f.mu.Unlock()
}

// remove drops sub and returns the number of members left.
func (f *groupFanout) remove(sub *subscription) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, member := range f.members {
		if member == sub {
			f.members = append(f.members[:i], f.members[i+1:]...)
			break
		}
	}
	return len(f.members)
}

func (f *groupFanout) deliver(msg *transport.Msg) {
	f.mu.Lock()
	if len(f.members) == 0 {
		f.mu.Unlock()
		return
	}
	member := f.members[f.next%len(f.members)]
	f.next++
	f.mu.Unlock()

	member.handler(msg)
}
