package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/srg/nearbyhal/pkg/hal"
)

const instrumentationName = "github.com/srg/nearbyhal"

// ServiceResource identifies spans as coming from serviceName.
func ServiceResource(serviceName string) *resource.Resource {
	return resource.NewSchemaless(semconv.ServiceName(serviceName))
}

// SetupOtel installs a global tracer provider and returns its shutdown function.
// Exporter "stdout" pretty-prints spans; "noop" or "" installs a noop provider.
func SetupOtel(ctx context.Context, exporter, serviceName string) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	switch exporter {
	case "noop", "":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(ServiceResource(serviceName)),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", exporter)
	}
}

// OtelTracer records one span per capability call.
type OtelTracer struct {
	tracer oteltrace.Tracer
}

// NewOtelTracer uses tp, or the global provider when tp is nil.
func NewOtelTracer(tp oteltrace.TracerProvider) *OtelTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OtelTracer{tracer: tp.Tracer(instrumentationName)}
}

func (t *OtelTracer) Begin(capability, op string) Call {
	_, span := t.tracer.Start(context.Background(), capability+"."+op,
		oteltrace.WithAttributes(
			attribute.String("hal.capability", capability),
			attribute.String("hal.op", op),
		))
	return &otelCall{span: span}
}

type otelCall struct {
	span oteltrace.Span
}

func (c *otelCall) Return(v any) {
	c.span.SetAttributes(attribute.String("hal.result", formatResult(v)))
	if s, ok := v.(hal.Status); ok && !s.OK() {
		c.span.SetStatus(codes.Error, s.String())
	} else {
		c.span.SetStatus(codes.Ok, "")
	}
	c.span.End()
}

func (c *otelCall) ReturnVoid() {
	c.span.SetStatus(codes.Ok, "")
	c.span.End()
}
