package transport

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tomyedwab/cratedb/types"
)

const instrumentationName = "github.com/tomyedwab/cratedb/transport"

// instruments wraps the otel tracer and meters used per exchange. They come
// from the global providers, so they are no-ops until the application
// installs an SDK.
type instruments struct {
	tracer    trace.Tracer
	exchanges metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments(logger *zap.Logger) *instruments {
	meter := otel.Meter(instrumentationName)

	exchanges, err := meter.Int64Counter("cratedb.client.exchanges",
		metric.WithDescription("Request/response exchanges by outcome"))
	if err != nil {
		logger.Warn("failed to create exchange counter", zap.Error(err))
		exchanges = noop.Int64Counter{}
	}
	duration, err := meter.Float64Histogram("cratedb.client.exchange.duration",
		metric.WithDescription("Wall time of one exchange"),
		metric.WithUnit("ms"))
	if err != nil {
		logger.Warn("failed to create exchange duration histogram", zap.Error(err))
		duration = noop.Float64Histogram{}
	}

	return &instruments{
		tracer:    otel.Tracer(instrumentationName),
		exchanges: exchanges,
		duration:  duration,
	}
}

func (i *instruments) startSpan(ctx context.Context, addr string, frameLen int) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "cratedb.exchange",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "cratedb"),
			attribute.String("server.address", addr),
			attribute.Int("cratedb.request.size", frameLen),
		))
}

func (i *instruments) record(ctx context.Context, span trace.Span, elapsed time.Duration, rowCount int64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = types.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Int("cratedb.error.code", types.Info(err).Code))
	} else {
		span.SetAttributes(attribute.Int64("cratedb.rowcount", rowCount))
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	i.exchanges.Add(ctx, 1, attrs)
	i.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}
