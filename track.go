package lumetric

import (
	"context"
)

// TrackedFunc is a function instrumented by Track. It receives a context
// carrying the span created for the call.
type TrackedFunc func(ctx context.Context, input any) (any, error)

// TrackOptions configures how Track records a function call.
type TrackOptions struct {
	// Type tags the created span. Defaults to SpanTypeGeneral.
	Type SpanType

	// ProjectName overrides the destination project when Track has to
	// create a root trace. Falls back to the client configuration, which
	// itself falls back to LUMETRIC_PROJECT_NAME.
	ProjectName string

	// DisableInputCapture suppresses logging the function input.
	DisableInputCapture bool

	// DisableOutputCapture suppresses logging the function output.
	DisableOutputCapture bool

	Tags     []string
	Metadata map[string]any
}

// Track wraps a function call in a span, auto-logging its input and output.
// When no trace is active in the context, Track opens a root trace for the
// call and ends it when the function returns. Nested Track calls parent
// their spans to the currently active span.
func Track(ctx context.Context, name string, input any, fn TrackedFunc) (any, error) {
	return TrackWithOptions(ctx, name, input, fn, TrackOptions{})
}

// TrackWithOptions is Track with explicit capture and destination options.
func TrackWithOptions(ctx context.Context, name string, input any, fn TrackedFunc, opts TrackOptions) (any, error) {
	client := GetGlobalClient()
	if client == nil || !client.Enabled() {
		return fn(ctx, input)
	}

	var capturedInput any
	if !opts.DisableInputCapture {
		capturedInput = input
	}

	trace := TraceFromContext(ctx)
	ownsTrace := false
	if trace == nil {
		trace = client.Trace(ctx, TraceOptions{
			Name:        name,
			ProjectName: opts.ProjectName,
			Input:       capturedInput,
			Tags:        opts.Tags,
			Metadata:    opts.Metadata,
		})
		ownsTrace = true
		ctx = WithTrace(ctx, trace)
	}

	span, ctx := StartSpan(ctx, SpanOptions{
		Name:     name,
		Type:     opts.Type,
		Input:    capturedInput,
		Tags:     opts.Tags,
		Metadata: opts.Metadata,
	})

	output, err := fn(ctx, input)

	var capturedOutput any
	if !opts.DisableOutputCapture {
		capturedOutput = output
	}

	if err != nil {
		span.Update(SpanUpdateOptions{
			Metadata: map[string]any{"error": err.Error()},
		})
	}
	span.End(&SpanEndOptions{Output: capturedOutput})

	if ownsTrace {
		if err != nil {
			trace.Update(TraceUpdateOptions{
				Metadata: map[string]any{"error": err.Error()},
			})
		}
		trace.End(&TraceEndOptions{Output: capturedOutput})
	}

	return output, err
}
