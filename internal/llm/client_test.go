package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kickai/kickai/internal/llm"
)

func TestCompleteReturnsUnavailableWithoutAPIKey(t *testing.T) {
	client := llm.NewGenkitClient(context.Background(), llm.Config{Provider: "google", APIKey: ""})
	_, err := client.Complete(context.Background(), "system", "hello", nil, time.Now().Add(time.Second))
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCompleteReturnsUnavailableForUnknownProvider(t *testing.T) {
	client := llm.NewGenkitClient(context.Background(), llm.Config{Provider: "not-a-real-provider"})
	_, err := client.Complete(context.Background(), "system", "hello", nil, time.Now().Add(time.Second))
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
