package runtime

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/drblury/ethermesh/transport"
)

// Controller binds a subject to a handler and owns the subscription that
// feeds it.
type Controller struct {
	subject      string
	group        string
	handler      Handler
	sequentialID string

	tasksServed atomic.Uint64

	mu           sync.Mutex
	subscription transport.Subscription
}

func newController(spec ControllerSpec, ordinal int) *Controller {
	return &Controller{
		subject:      spec.Subject,
		group:        spec.Group,
		handler:      spec.Handler,
		sequentialID: spec.Subject + "#" + strconv.Itoa(ordinal),
	}
}

func (c *Controller) Subject() string      { return c.subject }
func (c *Controller) Group() string        { return c.group }
func (c *Controller) SequentialID() string { return c.sequentialID }
func (c *Controller) TasksServed() uint64  { return c.tasksServed.Load() }

// Subscribed reports whether the controller currently holds a subscription.
func (c *Controller) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscription != nil
}

// Handle forwards to the handler. Results and failures pass through as-is.
func (c *Controller) Handle(ctx context.Context, ether *Ether, data json.RawMessage, subject string) (any, error) {
	return c.handler.Handle(ctx, ether, data, subject)
}

// subscribe opens the subscription unless one is already open.
func (c *Controller) subscribe(conn transport.Conn, h transport.MsgHandler) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscription != nil {
		return false, nil
	}
	sub, err := conn.Subscribe(c.subject, c.group, h)
	if err != nil {
		return false, err
	}
	c.subscription = sub
	return true, nil
}

// unsubscribe closes and clears the subscription. It is a no-op when the
// controller is not subscribed.
func (c *Controller) unsubscribe() error {
	c.mu.Lock()
	sub := c.subscription
	c.subscription = nil
	c.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (c *Controller) nextTaskID() string {
	return c.sequentialID + " " + strconv.FormatUint(c.tasksServed.Add(1), 10)
}

// ControllerInfo is the read-only view of a controller exposed to observers
// and the web UI.
type ControllerInfo struct {
	Subject      string `json:"subject"`
	Group        string `json:"group,omitempty"`
	SequentialID string `json:"sequentialId"`
	TasksServed  uint64 `json:"tasksServed"`
	Subscribed   bool   `json:"subscribed"`
}

// Info snapshots the controller.
func (c *Controller) Info() ControllerInfo {
	return ControllerInfo{
		Subject:      c.subject,
		Group:        c.group,
		SequentialID: c.sequentialID,
		TasksServed:  c.TasksServed(),
		Subscribed:   c.Subscribed(),
	}
}
