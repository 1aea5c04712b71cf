package eventbus

import "context"

// CallOption configures a single consume call.
type CallOption func(*callConfig)

type callConfig struct {
	metadata any
	callCtx  any
}

func newCallConfig(opts []CallOption) callConfig {
	var cfg callConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithRoutingMetadata selects the handlers registered under metadata.
// Metadata is matched structurally.
func WithRoutingMetadata(metadata any) CallOption {
	return func(c *callConfig) {
		c.metadata = metadata
	}
}

// WithCallContext passes v to scoped handler constructors. Handlers can read
// it back with CallContext.
func WithCallContext(v any) CallOption {
	return func(c *callConfig) {
		c.callCtx = v
	}
}

type callContextKey struct{}

func withCallContext(ctx context.Context, v any) context.Context {
	if v == nil {
		return ctx
	}
	return context.WithValue(ctx, callContextKey{}, v)
}

// CallContext returns the call context of the dispatch running under ctx.
func CallContext(ctx context.Context) any {
	return ctx.Value(callContextKey{})
}
