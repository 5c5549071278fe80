package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drblury/ethermesh/internal/runtime/envelope"
	errspkg "github.com/drblury/ethermesh/internal/runtime/errors"
	"github.com/drblury/ethermesh/internal/runtime/metadata"
	"github.com/drblury/ethermesh/transport"
)

const (
	chainDelimiter = "->"
	chainEllipsis  = "..."
)

// Ether is the capability a handler uses to talk back into the mesh. A root
// Ether carries the service name as its chain; the Ether handed to a handler
// extends the chain of the request it serves.
type Ether struct {
	service *Service
	conn    transport.Conn
	chain   string
	task    *Task
}

func newRootEther(s *Service, conn transport.Conn) *Ether {
	return &Ether{service: s, conn: conn, chain: s.Name()}
}

// Chain returns the causal chain stamped on outbound envelopes.
func (e *Ether) Chain() string { return e.chain }

// Task returns the task this Ether is scoped to, or nil for the root Ether.
func (e *Ether) Task() *Task { return e.task }

// Child derives an Ether for task. The chain is the request's chain extended
// by the task subject, truncated to the service's maximum chain length.
func (e *Ether) Child(task *Task) *Ether {
	return &Ether{
		service: e.service,
		conn:    e.conn,
		chain:   extendChain(task.Chain(), task.Subject, e.service.Conf.MaxChainLength),
		task:    task,
	}
}

// extendChain appends "->"+subject to chain. When the result would exceed max
// the oldest part is cut and replaced by "..." so the result is exactly max
// long and still ends with the newest hop.
func extendChain(chain, subject string, max int) string {
	extended := chain + chainDelimiter + subject
	if len(extended) <= max {
		return extended
	}
	keep := max - len(chainEllipsis) - len(chainDelimiter) - len(subject)
	if keep < 0 {
		keep = 0
	}
	if keep > len(chain) {
		keep = len(chain)
	}
	return chain[:keep] + chainEllipsis + chainDelimiter + subject
}

// Die stops the owning service.
func (e *Ether) Die(reason string) {
	e.service.Stop(reason)
}

// RequestOption tunes a single tell, ask or sink call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout time.Duration
	header  metadata.Metadata
}

// WithTimeout overrides the default request timeout of an ask call.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// WithHeader adds a transport header to the outbound message.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) { o.header = o.header.With(key, value) }
}

func applyRequestOptions(opts []RequestOption) requestOptions {
	var o requestOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// RequestError annotates a failed ask with the subject that was asked.
type RequestError struct {
	Subject string
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s: %v", e.Subject, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *Ether) message(method envelope.Method, subject string, data any, o requestOptions) (*transport.Msg, error) {
	env, err := envelope.New(method, subject, e.chain, data)
	if err != nil {
		return nil, err
	}
	body, err := envelope.Encode(env)
	if err != nil {
		return nil, err
	}
	return &transport.Msg{Subject: subject, Data: body, Header: o.header}, nil
}

// Tell publishes data on subject without waiting for anything. Only
// transport-level publish failures are reported.
func (e *Ether) Tell(ctx context.Context, subject string, data any, opts ...RequestOption) error {
	msg, err := e.message(envelope.MethodTell, subject, data, applyRequestOptions(opts))
	if err != nil {
		return err
	}
	return e.conn.Publish(ctx, msg)
}

// reply publishes a task outcome to the caller's reply address.
func (e *Ether) reply(ctx context.Context, subject string, result TaskResult) error {
	if result.Err == nil {
		return e.Tell(ctx, subject, result.Result)
	}
	body, err := envelope.Encode(envelope.NewError(subject, e.chain, errspkg.NewRemoteError(result.Err)))
	if err != nil {
		return err
	}
	return e.conn.Publish(ctx, &transport.Msg{Subject: subject, Data: body})
}

// Ask sends data to subject and waits for exactly one reply. Every failure,
// including a remote handler error, is returned as a *RequestError; remote
// failures unwrap to *errors.RemoteError.
func (e *Ether) Ask(ctx context.Context, subject string, data any, opts ...RequestOption) (json.RawMessage, error) {
	o := applyRequestOptions(opts)
	msg, err := e.message(envelope.MethodAsk, subject, data, o)
	if err != nil {
		return nil, &RequestError{Subject: subject, Err: err}
	}

	reply, err := e.conn.Request(ctx, msg, o.timeout)
	if err != nil {
		return nil, &RequestError{Subject: subject, Err: err}
	}
	if err := reply.StatusErr(); err != nil {
		return nil, &RequestError{Subject: subject, Err: err}
	}

	env, err := envelope.Decode(reply.Data)
	if err != nil {
		return nil, &RequestError{Subject: subject, Err: err}
	}
	result, err := env.Result()
	if err != nil {
		return nil, &RequestError{Subject: subject, Err: err}
	}
	return result, nil
}

// SinkResult holds what a sink collected, in arrival order.
type SinkResult struct {
	Collected []json.RawMessage
	Errors    []error
}

// Sink broadcasts data on subject and gathers replies until max successful
// replies arrived (max <= 0 means no limit) or maxTime elapsed, whichever
// comes first. Running out of time is a normal completion. Failures reported
// by responders are collected, not returned. A non-positive maxTime fails with
// ErrMaxTimeRequired before anything is sent.
func (e *Ether) Sink(ctx context.Context, subject string, data any, maxTime time.Duration, max int, opts ...RequestOption) (SinkResult, error) {
	if maxTime <= 0 {
		return SinkResult{}, errspkg.ErrMaxTimeRequired
	}
	if ctx == nil {
		ctx = context.Background()
	}

	msg, err := e.message(envelope.MethodSink, subject, data, applyRequestOptions(opts))
	if err != nil {
		return SinkResult{}, &RequestError{Subject: subject, Err: err}
	}

	c := newSinkCollector(max)
	inbox := e.conn.NewInbox()
	sub, err := e.conn.Subscribe(inbox, "", func(reply *transport.Msg) {
		c.add(reply, e.service.recordSinkReply)
	})
	if err != nil {
		return SinkResult{}, &RequestError{Subject: subject, Err: err}
	}
	defer func() { _ = sub.Unsubscribe() }()

	msg.Reply = inbox
	if err := e.conn.Publish(ctx, msg); err != nil {
		return SinkResult{}, &RequestError{Subject: subject, Err: err}
	}

	timer := time.NewTimer(maxTime)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
	case <-ctx.Done():
	}
	return c.resolve(), nil
}

// sinkCollector accumulates sink replies. Resolution happens once; replies
// arriving afterwards are dropped.
type sinkCollector struct {
	max int

	mu       sync.Mutex
	resolved bool
	result   SinkResult
	done     chan struct{}
}

func newSinkCollector(max int) *sinkCollector {
	return &sinkCollector{max: max, done: make(chan struct{})}
}

func (c *sinkCollector) add(reply *transport.Msg, record func(outcome string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return
	}

	err := reply.StatusErr()
	var env *envelope.Envelope
	if err == nil {
		env, err = envelope.Decode(reply.Data)
	}
	if err == nil {
		var data json.RawMessage
		data, err = env.Result()
		if err == nil {
			c.result.Collected = append(c.result.Collected, data)
			record(outcomeSuccess)
			if c.max > 0 && len(c.result.Collected) == c.max {
				c.resolved = true
				close(c.done)
			}
			return
		}
	}
	c.result.Errors = append(c.result.Errors, err)
	record(outcomeError)
}

func (c *sinkCollector) resolve() SinkResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.resolved {
		c.resolved = true
		close(c.done)
	}
	return SinkResult{
		Collected: append([]json.RawMessage(nil), c.result.Collected...),
		Errors:    append([]error(nil), c.result.Errors...),
	}
}

// IsTimeout reports whether err is an ask that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, transport.ErrTimeout)
}
