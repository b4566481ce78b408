package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the region pipeline.
const TracerName = "github.com/opentraffic/analyst"

// Span names for the region pipeline stages.
const (
	SpanRegion   = "region.analyze"
	SpanRoute    = "region.route"
	SpanTiles    = "region.tiles"
	SpanClip     = "region.clip"
	SpanSegments = "region.segments"
	SpanSpeeds   = "region.speeds"
	SpanAnnotate = "region.annotate"
	SpanPublish  = "region.publish"
)

// Span attribute keys.
const (
	AttrQueryID    = attribute.Key("analyst.query_id")
	AttrGeneration = attribute.Key("analyst.generation")
	AttrBounds     = attribute.Key("analyst.bounds")
	AttrTiles      = attribute.Key("analyst.tiles")
	AttrFeatures   = attribute.Key("analyst.features")
	AttrSegments   = attribute.Key("analyst.segments")
	AttrSkipped    = attribute.Key("analyst.skipped_segments")
	AttrState      = attribute.Key("analyst.state")
)

// Tracer returns the pipeline tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracer installs a global tracer provider exporting spans over
// OTLP/gRPC to addr. The returned func flushes and stops the exporter.
func InitTracer(ctx context.Context, service, addr string) (func(), error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(addr),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", service),
	))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}
