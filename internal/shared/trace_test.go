package shared

import (
	"context"
	"testing"
)

func TestTraceID_DefaultDash(t *testing.T) {
	ctx := context.Background()
	if got := TraceID(ctx); got != "-" {
		t.Fatalf("expected -, got %q", got)
	}
	ctx = WithTraceID(ctx, "trace-1")
	if got := TraceID(ctx); got != "trace-1" {
		t.Fatalf("expected trace-1, got %q", got)
	}
}

func TestRunID_DefaultDash(t *testing.T) {
	ctx := context.Background()
	if got := RunID(ctx); got != "-" {
		t.Fatalf("expected -, got %q", got)
	}
	ctx = WithRunID(ctx, "run-1")
	if got := RunID(ctx); got != "run-1" {
		t.Fatalf("expected run-1, got %q", got)
	}
}

func TestChatContext_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := FromChatContext(ctx); got != (ChatContext{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
	cc := ChatContext{TeamID: "team-1", ChatKind: "main", ChatID: 42, TelegramID: 7}
	ctx = WithChatContext(ctx, cc)
	if got := FromChatContext(ctx); got != cc {
		t.Fatalf("expected %+v, got %+v", cc, got)
	}
}
