package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the voicelay tracer.
const tracerName = "github.com/voicelay/voicelay"

// Tracer returns the voicelay tracer from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartRun starts the root span for one utterance pipeline run. The stage
// spans started inside it nest under this span, so one trace shows the whole
// chunk-to-reply path for a session.
func StartRun(ctx context.Context, session string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("voicelay.session", session)),
	)
}

// StartStage starts a child span for one pipeline stage: assemble,
// transcribe, complete or synthesize.
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pipeline."+stage,
		trace.WithAttributes(attribute.String("voicelay.stage", stage)),
	)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
// The trace ID doubles as the X-Correlation-ID header value.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
