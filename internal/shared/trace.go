package shared

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}
type runKey struct{}
type chatKey struct{}

// ChatContext identifies the chat an update arrived on, carried end-to-end
// through the orchestrator so every log line and tool call can be scoped
// back to (team, chat_kind, chat_id) without threading extra parameters.
type ChatContext struct {
	TeamID     string
	ChatKind   string
	ChatID     int64
	TelegramID int64
}

// WithTraceID attaches a trace_id to the context. A trace_id spans one
// inbound update end-to-end: router, agent, tools, reply.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID extracts trace_id from context. Returns "-" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewTraceID generates a new trace_id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithRunID attaches a run_id, scoped to a single agent invocation within a
// trace (an update can involve at most one run in the current design, but
// the two IDs are kept distinct so retries don't reuse a stale run_id).
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runID)
}

// RunID extracts run_id from context. Returns "-" if absent.
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(runKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewRunID generates a new run_id.
func NewRunID() string {
	return uuid.NewString()
}

// WithChatContext attaches the chat scope an update belongs to.
func WithChatContext(ctx context.Context, cc ChatContext) context.Context {
	return context.WithValue(ctx, chatKey{}, cc)
}

// FromChatContext extracts the chat scope. The zero value is returned if
// absent; callers that require a chat scope should treat a zero ChatID as
// a programmer error, not a valid value.
func FromChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(chatKey{}).(ChatContext); ok {
		return v
	}
	return ChatContext{}
}
