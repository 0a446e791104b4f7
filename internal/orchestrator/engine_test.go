package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/kickai/kickai/internal/agent"
	"github.com/kickai/kickai/internal/authz"
	"github.com/kickai/kickai/internal/command"
	"github.com/kickai/kickai/internal/entity"
	"github.com/kickai/kickai/internal/invite"
	"github.com/kickai/kickai/internal/storage"
	"github.com/kickai/kickai/internal/tool"
)

func TestEngineDrainsQueuedUpdateInOrder(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "kickai.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	seedTeam(t, store)
	ctx := context.Background()

	memberID, err := store.CreateMember(ctx, entity.Member{TeamID: "team-1", Name: "Admin", Phone: "+15551230009", Role: "manager", IsAdmin: true})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if err := store.ActivateMember(ctx, "team-1", memberID, 42); err != nil {
		t.Fatalf("activate member: %v", err)
	}

	checker, err := authz.NewChecker(filepath.Join(t.TempDir(), "capabilities.csv"))
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	commands := command.NewRegistry()
	invites := invite.NewService(store, "test-secret", time.Hour)
	tools, err := tool.NewRegistry(tool.StorageDefinitions(store, commands, invites, nil))
	if err != nil {
		t.Fatalf("new tool registry: %v", err)
	}
	roster := agent.NewRoster()
	router := NewRouter(store, checker, commands, roster, tools, &stubLLM{}, invites, nil, time.Second)

	payload, err := json.Marshal(UpdatePayload{TelegramID: 42, Text: "/help"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	taskID, err := store.EnqueueInboxTask(ctx, "team-1", string(entity.ChatKindMain), 100, "trace-1", string(payload))
	if err != nil {
		t.Fatalf("enqueue inbox task: %v", err)
	}

	engine := NewEngine(store, router, EngineConfig{PollInterval: 10 * time.Millisecond, TaskTimeout: time.Second})
	runCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	engine.Start(runCtx)

	deadline := time.Now().Add(time.Second)
	var task storage.InboxTask
	for time.Now().Before(deadline) {
		task, err = store.GetInboxTask(ctx, taskID)
		if err != nil {
			t.Fatalf("get inbox task: %v", err)
		}
		if task.Status == storage.InboxSucceeded || task.Status == storage.InboxFailed {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	engine.Wait()

	if task.Status != storage.InboxSucceeded {
		t.Fatalf("expected the update to complete successfully, got status %q (error %q)", task.Status, task.Error)
	}
	if task.Result == "" {
		t.Fatal("expected a non-empty reply recorded on the task")
	}
}
