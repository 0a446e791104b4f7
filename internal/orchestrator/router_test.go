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
	"github.com/kickai/kickai/internal/llm"
	"github.com/kickai/kickai/internal/storage"
	"github.com/kickai/kickai/internal/tool"
)

// stubLLM is a scripted llm.Client: each call pops the next queued
// response (or error), so a test can script a multi-turn tool-call
// exchange deterministically without a real provider.
type stubLLM struct {
	responses []llm.Response
	errs      []error
	calls     int
}

func (s *stubLLM) Complete(ctx context.Context, systemPrompt, userPrompt string, toolsCatalog []llm.ToolSpec, deadline time.Time) (llm.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return llm.Response{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return llm.Response{Text: "done"}, nil
}

func newTestRouter(t *testing.T, llmc llm.Client) (*Router, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "kickai.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	checker, err := authz.NewChecker(filepath.Join(t.TempDir(), "capabilities.csv"))
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}

	commands := command.NewRegistry()
	invites := invite.NewService(store, "test-secret", 72*time.Hour)
	tools, err := tool.NewRegistry(tool.StorageDefinitions(store, commands, invites, nil))
	if err != nil {
		t.Fatalf("new tool registry: %v", err)
	}
	roster := agent.NewRoster()

	r := NewRouter(store, checker, commands, roster, tools, llmc, invites, nil, time.Second)
	return r, store
}

func TestProcessBootstrapsFirstAdminInEmptyLeadershipChat(t *testing.T) {
	r, store := newTestRouter(t, &stubLLM{})
	seedTeam(t, store)
	ctx := context.Background()

	reply := r.Process(ctx, Update{TeamID: "team-1", ChatKind: entity.ChatKindLeadership, ChatID: 200, TelegramID: 1, Text: "/help"})
	if reply == "" {
		t.Fatal("expected a bootstrap prompt")
	}

	reply = r.Process(ctx, Update{TeamID: "team-1", ChatKind: entity.ChatKindLeadership, ChatID: 200, TelegramID: 1, Text: "/register Alex Smith +447911123456 manager"})
	if reply == "" {
		t.Fatal("expected a welcome reply")
	}

	member, err := store.GetMemberByTelegramID(ctx, "team-1", 1)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if !member.IsAdmin {
		t.Fatalf("expected the bootstrapped member to be admin, got %+v", member)
	}
}

func TestProcessUnregisteredGetsGuidanceInMainChat(t *testing.T) {
	r, store := newTestRouter(t, &stubLLM{})
	seedTeam(t, store)

	// Seed one member so the leadership-chat bootstrap path doesn't fire
	// and mask the main-chat unregistered path this test targets.
	if _, err := store.CreateMember(context.Background(), entity.Member{TeamID: "team-1", Name: "Admin", Phone: "+15551230009", Role: "manager", IsAdmin: true}); err != nil {
		t.Fatalf("seed member: %v", err)
	}

	reply := r.Process(context.Background(), Update{TeamID: "team-1", ChatKind: entity.ChatKindMain, ChatID: 100, TelegramID: 999, Text: "/help"})
	if reply == "" {
		t.Fatal("expected guidance reply")
	}
}

func TestProcessUnknownCommandListsVisibleCommands(t *testing.T) {
	r, store := newTestRouter(t, &stubLLM{})
	seedTeam(t, store)
	ctx := context.Background()

	playerID, err := store.CreatePlayer(ctx, entity.Player{TeamID: "team-1", Name: "Alex", Phone: "+15551230001", Status: entity.StatusPending})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	if err := store.ActivatePlayer(ctx, "team-1", playerID, 42); err != nil {
		t.Fatalf("activate player: %v", err)
	}

	reply := r.Process(ctx, Update{TeamID: "team-1", ChatKind: entity.ChatKindMain, ChatID: 100, TelegramID: 42, Text: "/nosuchcommand"})
	if reply == "" {
		t.Fatal("expected unrecognized-command reply")
	}
}

func TestProcessDeniesLeadershipOnlyCommandFromMainChat(t *testing.T) {
	r, store := newTestRouter(t, &stubLLM{})
	seedTeam(t, store)
	ctx := context.Background()

	memberID, err := store.CreateMember(ctx, entity.Member{TeamID: "team-1", Name: "Admin", Phone: "+15551230009", Role: "manager", IsAdmin: true})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if err := store.ActivateMember(ctx, "team-1", memberID, 42); err != nil {
		t.Fatalf("activate member: %v", err)
	}

	reply := r.Process(ctx, Update{TeamID: "team-1", ChatKind: entity.ChatKindMain, ChatID: 100, TelegramID: 42, Text: "/addplayer Alex +447911123456"})
	if reply != "You don't have permission to do that here." {
		t.Fatalf("expected permission denial, got %q", reply)
	}
}

func TestProcessRunsAgentAndAppliesToolCall(t *testing.T) {
	toolArgs, _ := json.Marshal(map[string]string{"team_id": "team-1"})
	llmc := &stubLLM{
		responses: []llm.Response{
			{ToolCalls: []llm.ToolCall{{Name: "get_active_players", Arguments: toolArgs}}},
			{Text: "Here are the active players."},
		},
	}
	r, store := newTestRouter(t, llmc)
	seedTeam(t, store)
	ctx := context.Background()

	memberID, err := store.CreateMember(ctx, entity.Member{TeamID: "team-1", Name: "Admin", Phone: "+15551230009", Role: "manager", IsAdmin: true})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if err := store.ActivateMember(ctx, "team-1", memberID, 42); err != nil {
		t.Fatalf("activate member: %v", err)
	}

	reply := r.Process(ctx, Update{TeamID: "team-1", ChatKind: entity.ChatKindMain, ChatID: 100, TelegramID: 42, Text: "/list"})
	if reply != "Here are the active players." {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if llmc.calls != 2 {
		t.Fatalf("expected a tool-call turn followed by a final turn, got %d calls", llmc.calls)
	}
}

func TestProcessAgentUnavailableRepliesGracefully(t *testing.T) {
	llmc := &stubLLM{errs: []error{llm.ErrUnavailable}}
	r, store := newTestRouter(t, llmc)
	seedTeam(t, store)
	ctx := context.Background()

	memberID, err := store.CreateMember(ctx, entity.Member{TeamID: "team-1", Name: "Admin", Phone: "+15551230009", Role: "manager", IsAdmin: true})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if err := store.ActivateMember(ctx, "team-1", memberID, 42); err != nil {
		t.Fatalf("activate member: %v", err)
	}

	reply := r.Process(ctx, Update{TeamID: "team-1", ChatKind: entity.ChatKindMain, ChatID: 100, TelegramID: 42, Text: "/list"})
	if reply == "" {
		t.Fatal("expected a DependencyUnavailable reply, got empty string")
	}
}
