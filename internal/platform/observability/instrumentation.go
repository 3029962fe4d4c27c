package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "moodify-server-go"

// Enabled reports whether span logging has been toggled on.
func Enabled() bool {
	_, cfg := currentLogger()
	return cfg.Enabled
}

// StartSpan opens an OpenTelemetry span around an operation and, when enabled,
// mirrors its lifecycle into the debug log.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, operation,
		trace.WithAttributes(attribute.String("component", component)),
	)

	logger, cfg := currentLogger()
	logSpan := logger != nil && cfg.Enabled
	start := time.Now()
	if logSpan {
		logger.LogAttrs(ctx, slog.LevelDebug, "[OBS] span start",
			slog.String("component", component),
			slog.String("operation", operation),
		)
	}

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if !logSpan {
			return
		}
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.Any("error", err))
		}
		logger.LogAttrs(ctx, level, "[OBS] span end", attrs...)
	}
}

// RecordMetric emits a best-effort metric datapoint via the configured logger.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for k, v := range labels {
		attrs = append(attrs, slog.String(k, v))
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "[OBS] metric", attrs...)
}
