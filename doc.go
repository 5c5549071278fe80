// Package ethermesh is a small service framework for request-driven
// microservices on top of a publish/subscribe transport. Controllers bind a
// subject to a handler; a Service subscribes them, dispatches every inbound
// message as a task on its own goroutine and publishes the outcome to the
// caller's reply address.
//
// Handlers receive an Ether through which they talk back into the mesh with
// three request patterns: Tell (fire and forget), Ask (one correlated reply)
// and Sink (scatter-gather bounded by time and reply count). Every request
// carries a causal chain such as "gateway->orders->billing" so a failure can
// be traced back through the hops that led to it. Handler failures travel as
// structured RemoteError values with a stable identity hash.
//
// # Transports
//
// ethermesh supports 6 transports out of the box:
//   - channel: In-memory Go channels for testing
//   - nats: NATS Core through nats.go, with native queue groups and requests
//   - nats-watermill: NATS Core through watermill-nats
//   - kafka: Kafka with consumer groups as queue groups
//   - rabbitmq: AMQP with shared queues as queue groups
//   - aws: AWS SNS/SQS with LocalStack support
//
// Transports built on Watermill go through a bridge that emulates request
// correlation with inbox subjects. Pick one with Config.PubSubSystem and call
// Service.Connect, or hand a connection to Service.Start yourself.
//
// # Observability
//
// The built-in "instance" controller reports identity, resource usage and the
// traffic of the last metrics interval. Prometheus collectors, OpenTelemetry
// task spans, Observers and a controller WebUI are available through Config
// and ServiceDependencies.
package ethermesh
