package storage_test

import (
	"context"
	"testing"

	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
)

func TestCreateMemberRejectsMalformedPhone(t *testing.T) {
	store := openTestStore(t)
	_, err := store.CreateMember(context.Background(), entity.Member{
		TeamID: "team-1",
		Name:   "Jo Bloggs",
		Phone:  "not-a-number",
		Role:   "manager",
	})
	if err == nil {
		t.Fatal("expected validation error for malformed phone")
	}
	if !apperr.Is(err, apperr.InvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestCreateMemberRejectsUnknownCallingCode(t *testing.T) {
	store := openTestStore(t)
	_, err := store.CreateMember(context.Background(), entity.Member{
		TeamID: "team-1",
		Name:   "Jo Bloggs",
		Phone:  "+9999999999",
		Role:   "manager",
	})
	if err == nil {
		t.Fatal("expected validation error for unrecognized calling code")
	}
	if !apperr.Is(err, apperr.InvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestCreatePlayerAcceptsValidE164Phone(t *testing.T) {
	store := openTestStore(t)
	if err := store.CreateTeam(context.Background(), entity.Team{
		TeamID:             "te",
		Name:               "Test FC",
		MainChatID:         1,
		LeadershipChatID:   2,
		BotMainToken:       "tok-main",
		BotLeadershipToken: "tok-leadership",
	}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	_, err := store.CreatePlayer(context.Background(), entity.Player{
		TeamID: "te",
		Name:   "Alex Player",
		Phone:  "+447911123456",
	})
	if err != nil {
		t.Fatalf("expected valid phone to pass validation, got %v", err)
	}
}

func TestCreateReminderRejectsEmptyBody(t *testing.T) {
	store := openTestStore(t)
	_, err := store.CreateReminder(context.Background(), entity.Reminder{
		TeamID:   "team-1",
		Body:     "",
		CronExpr: "0 9 * * *",
	})
	if err == nil {
		t.Fatal("expected validation error for empty reminder body")
	}
	if !apperr.Is(err, apperr.InvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}
