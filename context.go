package lumetric

import (
	"context"
	"sync"
)

type contextKey int

const (
	traceKey contextKey = iota
	spanKey
)

var (
	globalClient *Client
	globalMu     sync.RWMutex
)

// SetGlobalClient sets the global Lumetric client.
func SetGlobalClient(c *Client) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalClient = c
}

// GetGlobalClient returns the global Lumetric client, or nil if none is set.
func GetGlobalClient() *Client {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalClient
}

// WithTrace returns a new context carrying the trace.
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, traceKey, trace)
}

// TraceFromContext returns the trace carried by the context, or nil.
func TraceFromContext(ctx context.Context) *Trace {
	if trace, ok := ctx.Value(traceKey).(*Trace); ok {
		return trace
	}
	return nil
}

// WithSpan returns a new context carrying the span.
func WithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext returns the span carried by the context, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// StartTrace creates a new trace using the global client and returns a
// context carrying it. If no client is configured, returns nil.
func StartTrace(ctx context.Context, opts TraceOptions) (*Trace, context.Context) {
	client := GetGlobalClient()
	if client == nil {
		return nil, ctx
	}

	trace := client.Trace(ctx, opts)
	return trace, WithTrace(ctx, trace)
}

// StartSpan creates a new span within the current trace and returns a
// context carrying it. The span is parented to the currently active span
// when one is in the context, otherwise to the trace root. If no trace is
// in context, returns nil.
func StartSpan(ctx context.Context, opts SpanOptions) (*Span, context.Context) {
	trace := TraceFromContext(ctx)
	if trace == nil {
		return nil, ctx
	}

	if opts.ParentSpanID == "" {
		if parent := SpanFromContext(ctx); parent != nil {
			opts.ParentSpanID = parent.ID()
		}
	}

	span := trace.Span(opts)
	return span, WithSpan(ctx, span)
}
