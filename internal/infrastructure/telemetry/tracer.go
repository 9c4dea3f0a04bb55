package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/davidleathers/causal-correlation-engine"

// StartStoreSpan starts a client span for a persistence call
func StartStoreSpan(ctx context.Context, system, operation, table string) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, fmt.Sprintf("%s.%s %s", system, operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.table", table),
		))
}

// StartServiceSpan starts an internal span for a service operation
func StartServiceSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("service.name", service),
		attribute.String("service.operation", operation),
	)
	return Tracer(instrumentationName).Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// WithSpanError is a helper to record errors and set span status
func WithSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
