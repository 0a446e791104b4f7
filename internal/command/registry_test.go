package command_test

import (
	"testing"

	"github.com/kickai/kickai/internal/agent"
	"github.com/kickai/kickai/internal/command"
	"github.com/kickai/kickai/internal/entity"
)

func TestNewRegistryRegistersKnownCommands(t *testing.T) {
	r := command.NewRegistry()
	for _, name := range []string{"/help", "/myinfo", "/addplayer", "/selectsquad", "/register"} {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("expected %s to be registered", name)
		}
	}
}

func TestGetUnknownCommand(t *testing.T) {
	r := command.NewRegistry()
	if _, ok := r.Get("/doesnotexist"); ok {
		t.Fatalf("expected unknown command to be absent")
	}
}

func TestMyInfoIsChatAware(t *testing.T) {
	r := command.NewRegistry()
	d, ok := r.Get("/myinfo")
	if !ok {
		t.Fatalf("expected /myinfo to be registered")
	}
	if d.AgentForChat(entity.ChatKindMain) != agent.MessageProcessor {
		t.Fatalf("expected MessageProcessor in main chat, got %s", d.AgentForChat(entity.ChatKindMain))
	}
	if d.AgentForChat(entity.ChatKindLeadership) != agent.TeamAdministrator {
		t.Fatalf("expected TeamAdministrator in leadership chat, got %s", d.AgentForChat(entity.ChatKindLeadership))
	}
}

func TestListForChatExcludesLeadershipOnlyFromMain(t *testing.T) {
	r := command.NewRegistry()
	mainCommands := r.ListForChat(entity.ChatKindMain)
	for _, d := range mainCommands {
		if d.Name == "/addplayer" {
			t.Fatalf("expected /addplayer to be excluded from main chat listing")
		}
	}
	leadershipCommands := r.ListForChat(entity.ChatKindLeadership)
	found := false
	for _, d := range leadershipCommands {
		if d.Name == "/addplayer" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected /addplayer in leadership chat listing")
	}
}

func TestUninitializedRegistryPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected use of a zero-value registry to panic")
		}
	}()
	var r *command.Registry
	r.Get("/help")
}
