package storage_test

import (
	"context"
	"testing"

	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
)

func TestMatchAvailabilityAndSquadSelection(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.CreateTeam(ctx, entity.Team{TeamID: "team-1", Name: "Dynamos FC", MainChatID: 100, LeadershipChatID: 200, BotMainToken: "tok-main", BotLeadershipToken: "tok-leadership"}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	p1, err := store.CreatePlayer(ctx, entity.Player{TeamID: "team-1", Name: "Alex", Phone: "+15551230001", Status: entity.StatusActive})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	p2, err := store.CreatePlayer(ctx, entity.Player{TeamID: "team-1", Name: "Sam", Phone: "+15551230002", Status: entity.StatusActive})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}

	matchID, err := store.CreateMatch(ctx, entity.Match{TeamID: "team-1", Opponent: "Rovers"})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}

	if err := store.RecordAvailability(ctx, entity.Availability{MatchID: matchID, PlayerID: p1, Response: entity.AvailabilityAvailable}); err != nil {
		t.Fatalf("record availability: %v", err)
	}
	if err := store.RecordAvailability(ctx, entity.Availability{MatchID: matchID, PlayerID: p2, Response: entity.AvailabilityUnavailable}); err != nil {
		t.Fatalf("record availability: %v", err)
	}

	avail, err := store.ListAvailability(ctx, matchID)
	if err != nil {
		t.Fatalf("list availability: %v", err)
	}
	if len(avail) != 2 {
		t.Fatalf("expected 2 availability rows, got %d", len(avail))
	}

	if err := store.SelectSquad(ctx, "team-1", matchID, []string{p1}); err != nil {
		t.Fatalf("select squad: %v", err)
	}
	match, err := store.GetMatch(ctx, "team-1", matchID)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if match.Status != entity.MatchSquadSelected {
		t.Fatalf("expected squad_selected status, got %s", match.Status)
	}
	if len(match.SelectedPlayerIDs) != 1 || match.SelectedPlayerIDs[0] != p1 {
		t.Fatalf("unexpected selected players: %v", match.SelectedPlayerIDs)
	}

	if err := store.SelectSquad(ctx, "team-1", matchID, []string{p2}); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("expected Conflict re-selecting squad, got %v", err)
	}
}
