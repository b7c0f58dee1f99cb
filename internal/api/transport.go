package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"github.com/f1v3nt5/poketroid/internal/logging"
)

// RequestIDHeader carries the client-generated request identifier.
const RequestIDHeader = "X-Request-ID"

var tracePropagator = propagation.TraceContext{}

// loggingTransport decorates outgoing requests with a request id and trace
// context and logs their completion.
type loggingTransport struct {
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	out := req.Clone(ctx)
	out.Header.Set(RequestIDHeader, requestID)
	tracePropagator.Inject(ctx, propagation.HeaderCarrier(out.Header))

	logger := logging.FromContext(ctx).With(
		slog.String("request_id", requestID),
		slog.String("method", out.Method),
		slog.String("path", out.URL.Path),
	)

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		logger.Warn("request failed",
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "request completed",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, nil
}
