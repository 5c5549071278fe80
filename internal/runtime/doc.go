/*
Package runtime provides the request dispatch infrastructure for ethermesh.

# Architecture Overview

A Service owns a set of controllers, one per subject handler, and binds them
to a transport connection. Every inbound message becomes a Task that runs on
its own goroutine; the handler result is published back to the caller's reply
address. Handlers talk back into the mesh through an Ether, which carries the
causal chain of the request it serves.

# Package Structure

## Core Service (service.go)

The Service struct wires together:
  - Controller registry and subscriptions
  - Transport connection (given to Start or built by Connect)
  - Rolling metrics window and Prometheus collectors
  - HTTP servers for metrics and WebUI
  - Observers and the exit handler

## Controllers and Tasks (controller.go, task.go, handler.go)

  - controller.go: subscription state and sequential task ids
  - task.go: handler invocation, panic recovery and tracing spans
  - handler.go: the Handler contract and ControllersFromMap
  - typed_handlers.go: JSON and Protocol Buffer handler wrappers

## Request Patterns (ether.go)

  - Tell: fire and forget
  - Ask: one correlated reply
  - Sink: scatter-gather bounded by time and reply count

## Monitoring (metrics.go, task_metrics.go, instance.go, resources.go)

The built-in "instance" controller reports the service identity, resource
usage and the traffic and latency of the last metrics interval.

## WebUI (webui.go)

HTTP API for introspecting controllers.

# Sub-packages

  - config/: Service configuration with validation
  - envelope/: Request and reply documents
  - errors/: Sentinel errors and the wire error type
  - handlers/: Typed payload decoding
  - ids/: ULID generation for inboxes
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Message header utilities
  - transport/: Transport factory over the transport registry

# Usage Example

	svc := ethermesh.MustNewService(&ethermesh.Config{
		ServiceName:  "pricing",
		PubSubSystem: "nats",
		NATSURL:      "nats://localhost:4222",
	}, logger, ethermesh.ServiceDependencies{})

	svc.MustUse(ethermesh.ControllerSpec{
		Subject: "price.quote",
		Group:   "pricing",
		Handler: ethermesh.JSONHandler(quote),
	})

	ether, err := svc.Connect(ctx)
*/
package runtime
