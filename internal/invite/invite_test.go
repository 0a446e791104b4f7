package invite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
	"github.com/kickai/kickai/internal/invite"
	"github.com/kickai/kickai/internal/storage"
)

func newTestService(t *testing.T) (*invite.Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "kickai.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	svc := invite.NewService(store, "test-secret-key", 72*time.Hour)
	return svc, store
}

func TestIssueAndRedeemActivatesPlayer(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if err := store.CreateTeam(ctx, entity.Team{TeamID: "team-1", Name: "Dynamos FC", MainChatID: 100, LeadershipChatID: 200, BotMainToken: "tok-main", BotLeadershipToken: "tok-leadership"}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	playerID, err := store.CreatePlayer(ctx, entity.Player{TeamID: "team-1", Name: "Alex", Phone: "+15551234567", Status: entity.StatusPending})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}

	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	token, err := svc.Issue(ctx, "team-1", entity.ChatKindMain, entity.SubjectPlayer, playerID, "member-admin", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	redeemed, err := svc.Redeem(ctx, token, 555, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redeemed.UsedBy != 555 {
		t.Fatalf("expected used_by 555, got %d", redeemed.UsedBy)
	}

	player, err := store.GetPlayer(ctx, "team-1", playerID)
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if player.Status != entity.StatusActive || player.TelegramID != 555 {
		t.Fatalf("expected player activated to 555, got %+v", player)
	}
}

func TestRedeemTwiceFails(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if err := store.CreateTeam(ctx, entity.Team{TeamID: "team-1", Name: "Dynamos FC", MainChatID: 100, LeadershipChatID: 200, BotMainToken: "tok-main", BotLeadershipToken: "tok-leadership"}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	playerID, err := store.CreatePlayer(ctx, entity.Player{TeamID: "team-1", Name: "Alex", Phone: "+15551234567", Status: entity.StatusPending})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	token, err := svc.Issue(ctx, "team-1", entity.ChatKindMain, entity.SubjectPlayer, playerID, "member-admin", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Redeem(ctx, token, 555, now.Add(time.Hour)); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if _, err := svc.Redeem(ctx, token, 999, now.Add(2*time.Hour)); !apperr.Is(err, apperr.InviteAlreadyUsed) {
		t.Fatalf("expected InviteAlreadyUsed on second redeem, got %v", err)
	}
}

func TestRedeemRejectsTamperedToken(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Redeem(context.Background(), "not-a-real-token", 555, time.Now())
	if !apperr.Is(err, apperr.InvalidInput) {
		t.Fatalf("expected InvalidInput for a malformed token, got %v", err)
	}
}

func TestRedeemRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if err := store.CreateTeam(ctx, entity.Team{TeamID: "team-1", Name: "Dynamos FC", MainChatID: 100, LeadershipChatID: 200, BotMainToken: "tok-main", BotLeadershipToken: "tok-leadership"}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	playerID, err := store.CreatePlayer(ctx, entity.Player{TeamID: "team-1", Name: "Alex", Phone: "+15551234567", Status: entity.StatusPending})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	token, err := svc.Issue(ctx, "team-1", entity.ChatKindMain, entity.SubjectPlayer, playerID, "member-admin", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := invite.NewService(store, "a-different-secret", 72*time.Hour)
	if _, err := other.Redeem(ctx, token, 555, now.Add(time.Hour)); !apperr.Is(err, apperr.InvalidInput) {
		t.Fatalf("expected InvalidInput for a token signed with a different secret, got %v", err)
	}
}

func TestRedemptionURL(t *testing.T) {
	got := invite.RedemptionURL("https://kickai.example/redeem", "abc123", entity.SubjectPlayer, 100, "team-1")
	want := "https://kickai.example/redeem?invite=abc123&type=player&chat=100&team=team-1"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestParseRedemptionPayload(t *testing.T) {
	full := invite.RedemptionURL("https://kickai.example/redeem", "abc123", entity.SubjectPlayer, 100, "team-1")
	query := full[len("https://kickai.example/redeem?"):]
	if got := invite.ParseRedemptionPayload(query); got != "abc123" {
		t.Fatalf("expected abc123, got %q", got)
	}
	if got := invite.ParseRedemptionPayload("bare-token"); got != "bare-token" {
		t.Fatalf("expected bare token passthrough, got %q", got)
	}
}

func TestIssueAndIssueURLRoundTrip(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	if err := store.CreateTeam(ctx, entity.Team{TeamID: "team-1", Name: "Dynamos FC", MainChatID: 100, LeadershipChatID: 200, BotMainToken: "tok-main", BotLeadershipToken: "tok-leadership"}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	playerID, err := store.CreatePlayer(ctx, entity.Player{TeamID: "team-1", Name: "Alex", Phone: "+15551234567", Status: entity.StatusPending})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	token, err := svc.Issue(ctx, "team-1", entity.ChatKindMain, entity.SubjectPlayer, playerID, "member-admin", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	full := invite.RedemptionURL("https://kickai.example/redeem", token, entity.SubjectPlayer, 100, "team-1")
	query := full[len("https://kickai.example/redeem?"):]
	parsed := invite.ParseRedemptionPayload(query)

	if _, err := svc.Redeem(ctx, parsed, 555, now.Add(time.Hour)); err != nil {
		t.Fatalf("redeem from parsed payload: %v", err)
	}
}
