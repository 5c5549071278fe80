package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/ethermesh/internal/runtime/envelope"
	"github.com/drblury/ethermesh/internal/runtime/jsoncodec"
)

const tracerName = "github.com/drblury/ethermesh"

// Task is one in-flight invocation of a controller against one inbound
// request.
type Task struct {
	ID         string
	Subject    string
	Request    *envelope.Envelope
	StartedAt  time.Time
	controller *Controller
}

func newTask(c *Controller, request *envelope.Envelope, subject string) *Task {
	return &Task{
		ID:         c.nextTaskID(),
		Subject:    subject,
		Request:    request,
		StartedAt:  time.Now(),
		controller: c,
	}
}

// Controller returns the controller serving the task.
func (t *Task) Controller() *Controller { return t.controller }

// Chain returns the causal chain the request arrived with.
func (t *Task) Chain() string { return t.Request.Chain() }

// Reply returns the caller's reply address, if any.
func (t *Task) Reply() string {
	if t.Request.Meta == nil {
		return ""
	}
	return t.Request.Meta.Reply
}

// TaskResult is the outcome of a Task. Exactly one of Result and Err is set.
type TaskResult struct {
	Result  json.RawMessage
	Err     error
	ID      string
	Subject string
	Took    time.Duration
}

// TookMs reports the elapsed time in milliseconds.
func (r TaskResult) TookMs() int64 { return r.Took.Milliseconds() }

// run invokes the handler with ether and converts the outcome, including a
// panic, into a TaskResult.
func (t *Task) run(ctx context.Context, ether *Ether) TaskResult {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ethermesh.task",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("ethermesh.subject", t.Subject),
			attribute.String("ethermesh.task_id", t.ID),
			attribute.String("ethermesh.chain", ether.Chain()),
		),
	)
	defer span.End()

	value, err := t.invoke(ctx, ether)

	result := TaskResult{ID: t.ID, Subject: t.Subject}
	if err == nil {
		result.Result, err = jsoncodec.Raw(value)
		if err != nil {
			err = fmt.Errorf("encode result of %s: %w", t.Subject, err)
			result.Result = nil
		}
	}
	result.Err = err
	result.Took = time.Since(t.StartedAt)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result
}

func (t *Task) invoke(ctx context.Context, ether *Ether) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			if rerr, ok := r.(error); ok {
				err = errors.WithStack(rerr)
				return
			}
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return t.controller.Handle(ctx, ether, t.Request.Data, t.Subject)
}
