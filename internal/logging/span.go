package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/f1v3nt5/poketroid"

// Span represents a logical unit of client work, such as one coordinated request.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	inner  trace.Span
}

// StartSpan opens an OpenTelemetry span and derives a logger that carries its
// identifiers. When no tracer provider is installed the span is a no-op and
// random identifiers are used so log lines can still be correlated.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	parent := trace.SpanContextFromContext(ctx)
	ctx, inner := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))

	traceID, spanID := "", ""
	if sc := inner.SpanContext(); sc.IsValid() {
		traceID, spanID = sc.TraceID().String(), sc.SpanID().String()
	} else {
		traceID, spanID = uuid.NewString(), uuid.NewString()
	}

	logger := FromContext(ctx).With(
		slog.String("trace_id", traceID),
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parent.IsValid() {
		logger = logger.With(slog.String("parent_span_id", parent.SpanID().String()))
	}

	ctx = WithLogger(ctx, logger)

	return ctx, &Span{name: name, logger: logger, start: time.Now(), inner: inner}
}

// Logger returns the span-scoped logger.
func (s *Span) Logger() *slog.Logger {
	if s == nil {
		return slog.Default()
	}
	return s.logger
}

// End finalizes the span, recording err when non-nil.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.inner.RecordError(err)
		s.inner.SetStatus(codes.Error, err.Error())
	}
	s.inner.End()
	s.logger.Debug("span completed", slog.Duration("duration", time.Since(s.start)), slog.Bool("failed", err != nil))
}
