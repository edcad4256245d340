package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/lien/plugin"
	"github.com/xraph/lien/types"
)

// TracerName is the instrumentation scope used for lien spans.
const TracerName = "github.com/xraph/lien"

var (
	_ plugin.Plugin               = (*TracingExtension)(nil)
	_ plugin.OnJournalReplayed    = (*TracingExtension)(nil)
	_ plugin.OnOperationCompleted = (*TracingExtension)(nil)
)

// TracingExtension emits one OpenTelemetry span per controller operation and
// one for the journal replay on start. Spans are recorded after the fact with
// the operation's measured start and end.
type TracingExtension struct {
	tracer trace.Tracer
}

// NewTracingExtension creates a TracingExtension. A nil provider uses the
// global one.
func NewTracingExtension(tp trace.TracerProvider) *TracingExtension {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingExtension{tracer: tp.Tracer(TracerName)}
}

// Name implements plugin.Plugin.
func (t *TracingExtension) Name() string { return "observability-tracing" }

// OnJournalReplayed implements plugin.OnJournalReplayed.
func (t *TracingExtension) OnJournalReplayed(ctx context.Context, events int, elapsed time.Duration) error {
	end := time.Now()
	_, span := t.tracer.Start(ctx, "lien.replay",
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithAttributes(attribute.Int("lien.replay.events", events)),
	)
	span.End(trace.WithTimestamp(end))
	return nil
}

// OnOperationCompleted implements plugin.OnOperationCompleted.
func (t *TracingExtension) OnOperationCompleted(ctx context.Context, op string, caller types.Address, elapsed time.Duration, err error) error {
	end := time.Now()
	_, span := t.tracer.Start(ctx, "lien."+op,
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("lien.operation", op),
			attribute.String("lien.caller", caller.String()),
		),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
	return nil
}
