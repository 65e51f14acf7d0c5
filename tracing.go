package relay

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type otelSpans struct {
	tracer trace.Tracer
}

// OTelSpanStarter returns a SpanStarter that opens a server span per request
// with tracer.
func OTelSpanStarter(tracer trace.Tracer) SpanStarter {
	return otelSpans{tracer: tracer}
}

func (o otelSpans) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func()) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	kv := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		kv = append(kv, attribute.String(k, attrs[k]))
	}

	ctx, span := o.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(kv...),
	)
	return ctx, func() { span.End() }
}
