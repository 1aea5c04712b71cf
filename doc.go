// Package eventbus is the dispatch core of an event and task framework.
//
// Publishers push handlables (events and tasks) onto a transport. When a
// handlable comes back, the Bus resolves the handlers registered for it and
// invokes them, returning an explicit Result per handler instead of raising.
//
// # Quick Start
//
// Define a handlable and a handler:
//
//	type UserCreated struct {
//	    UserID string `json:"user_id"`
//	    Email  string `json:"email"`
//	}
//
//	type SendWelcomeEmail struct {
//	    mailer Mailer
//	}
//
//	func (p *SendWelcomeEmail) Run(ctx context.Context, e UserCreated) error {
//	    return p.mailer.Send(ctx, e.Email, "welcome")
//	}
//
// Register it and consume:
//
//	reg := eventbus.NewRegistry()
//	eventbus.RegisterProc[UserCreated](reg, nil, &SendWelcomeEmail{mailer})
//
//	bus := eventbus.New(reg)
//	results, err := bus.ConsumeByMultipleHandlers(ctx, UserCreated{UserID: "42"})
//
// # Signatures and Routing Metadata
//
// Handlers are registered under a Signature: the handlable's Go type plus
// optional routing metadata. Type identity is exact. Metadata is compared
// structurally through KeyMap, so a metadata value rebuilt on the consumer
// side matches the one used at registration:
//
//	eventbus.Register[ResizeTask, *Thumbnail](reg,
//	    queue.RoutingMetadata{Queue: "images", Name: "resize"}, resizer)
//
//	bus.ConsumeByStrictlySingleHandler(ctx, task,
//	    eventbus.WithRoutingMetadata(queue.RoutingMetadata{Queue: "images", Name: "resize"}))
//
// # Singleton and Scoped Handlers
//
// Singletons (Register, RegisterProc, Registry.AddHandler) are shared by
// every dispatch. Scoped handlers (RegisterScoped, RegisterScopedProc,
// Registry.AddScopedHandler) are built fresh for each dispatch from the call
// context passed with WithCallContext. Resolution returns singletons first,
// then scoped instances, each group in registration order.
//
// # Dispatch Strategies
//
//   - ConsumeByStrictlySingleHandler: exactly one handler must be registered.
//     Tasks use this.
//   - ConsumeByMultipleHandlers: every handler runs concurrently and gets its
//     own Result. Events use this.
//
// Failures are typed and can be matched with errors.Is and errors.As:
//
//	res := bus.ConsumeByStrictlySingleHandler(ctx, task)
//	var thrown *eventbus.HandlerThrownError
//	switch {
//	case errors.Is(res.Err(), eventbus.ErrHandlerNotFound):
//	case errors.As(res.Err(), &thrown):
//	    log.Println(thrown.Err)
//	}
//
// # Hooks
//
// Hooks observe the dispatch lifecycle without changing it:
//
//   - WithOnResolve: before resolution, may enrich the context
//   - WithOnDispatch: before each handler, may enrich the context
//   - WithOnSuccess, WithOnFailure: after each handler
//   - WithOnNoHandler, WithOnMultipleHandlers: on resolution failures
//
// The observe package builds Prometheus and OpenTelemetry hooks on top of
// these.
//
// # Publishing
//
// Bus.Publish and Bus.PublishAll forward to the Publisher attached with
// SetPublisher. The queue package provides AtomicPublisher and BulkPublisher
// for queue, flow and fanout delivery.
package eventbus
