package telemetry

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to log entries that carry a span context.
type OTELHook struct{}

// Run implements zerolog.Hook.
func (h OTELHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())
}

// SetupLogging configures the global zerolog logger.
// format is "console" for humans or "json" for machines.
func SetupLogging(w io.Writer, level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var logger zerolog.Logger
	switch format {
	case "json":
		logger = zerolog.New(w)
	case "console", "":
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.Logger = logger.With().Timestamp().Logger().Hook(OTELHook{})
	return nil
}
