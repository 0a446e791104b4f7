package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for KICKAI spans — one span per processed
// update (§4.5), tagged with the routing/agent context that decided how
// it was handled.
var (
	AttrTeamID     = attribute.Key("kickai.team.id")
	AttrChatKind   = attribute.Key("kickai.chat.kind")
	AttrChatID     = attribute.Key("kickai.chat.id")
	AttrAgentName  = attribute.Key("kickai.agent.name")
	AttrToolName   = attribute.Key("kickai.tool.name")
	AttrModel      = attribute.Key("kickai.llm.model")
	AttrFinalState = attribute.Key("kickai.update.final_state")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartServerSpan starts a span for an inbound request (Gateway).
func StartServerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartClientSpan starts a span for an outbound call (LLM API, MCP).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
