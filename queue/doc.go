// Package queue connects the eventbus dispatch core to job queues.
//
// A Handlable describes itself with a Spec: its job name, its queue, its
// delivery Options and its Kind.
//
//   - KindQueue: written to Spec.Queue
//   - KindFlow: written as a job tree (the handlable and its children)
//     through a FlowProducer
//   - KindFanout: copied to every destination of the Route registered for
//     its type in a Router
//
// # Publishing
//
// AtomicPublisher writes each job with its own call, so one failure does
// not stop the others. BulkPublisher groups jobs per destination queue and
// per flow producer and makes one AddBulk call per group. Both implement
// eventbus.Publisher:
//
//	queues := queue.NewQueueRegistry(emails, billing, audit)
//	router, err := queue.NewRouter(
//	    queue.RouteDefinitionFor[OrderPlaced](queue.Route{Destinations: []queue.Destination{
//	        {Name: "billing", Options: queue.Options{queue.OptAttempts: 5}},
//	        {Name: "audit"},
//	    }}),
//	)
//	bus.SetPublisher(queue.NewBulkPublisher(queues, queue.WithRouter(router)))
//
// # Fanout Options
//
// Each destination's options combine with the handlable's own options
// according to its Strategy. StrategyOverride (the default) merges
// field by field with destination values winning; StrategyRewrite replaces
// them.
//
// # Consuming
//
// A Consumer rebuilds handlables from delivered Messages using a
// TypeRegistry, records delivery-time data in a Delivery, and dispatches to
// exactly one handler registered under the handlable's RoutingMetadata:
//
//	queue.Register[ResizeImage, *Thumbnail](reg, &Resizer{})
//
//	types := queue.NewTypeRegistry()
//	_ = types.FromSignatures(reg.Signatures())
//
//	c := queue.NewConsumer(bus, types)
//	v, err := c.Handle(ctx, msg)
//
// Transports that carry raw bytes use Consumer.Process, which decodes the
// bytes with a Decoder. The Decoder matches messages against Formats using
// gjson-backed Discriminators, trying the last matching format first.
//
// MemoryQueue, MemoryFlowProducer and Worker provide an in-process
// transport with delayed jobs and retries.
package queue
