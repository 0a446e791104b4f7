package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/command"
	"github.com/kickai/kickai/internal/entity"
	"github.com/kickai/kickai/internal/invite"
	"github.com/kickai/kickai/internal/shared"
	"github.com/kickai/kickai/internal/storage"
)

// Notifier delivers a chat-bound message through whichever transport
// owns that team's chat. Implemented by internal/fleet.Manager; declared
// here (rather than imported) so this package never depends on the
// Telegram transport, mirroring internal/reminder's own Notifier seam.
type Notifier interface {
	Notify(ctx context.Context, teamID string, chatKind entity.ChatKind, text string) error
}

// StorageDefinitions builds the representative tool list from §4.4, bound
// to store. This is the concrete wiring layer NewRegistry compiles
// against — definitions themselves stay pure data (name/description/
// schema), handlers live here where they can close over collaborators.
func StorageDefinitions(store *storage.Store, commands *command.Registry, invites *invite.Service, notifier Notifier) []RawDefinition {
	return []RawDefinition{
		{
			Name:            "list_team_members_and_players",
			Description:     "List active players and members for a team",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"}},"required":["team_id"]}`,
			Handler:         listTeamMembersAndPlayers(store),
		},
		{
			Name:            "get_my_status",
			Description:     "Look up the requesting sender's own player or member record",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"telegram_id":{"type":"integer"}},"required":["team_id","telegram_id"]}`,
			Handler:         getMyStatus(store),
		},
		{
			Name:            "ping",
			Description:     "Health check with no side effects",
			InputSchemaJSON: `{"type":"object"}`,
			Handler:         ping(),
		},
		{
			Name:            "get_available_commands",
			Description:     "List commands visible in a chat kind",
			InputSchemaJSON: `{"type":"object","properties":{"chat_kind":{"type":"string","enum":["main","leadership"]}},"required":["chat_kind"]}`,
			Handler:         getAvailableCommands(commands),
		},
		{
			Name:            "get_active_players",
			Description:     "List active players for a team",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"}},"required":["team_id"]}`,
			Handler:         getActivePlayers(store),
		},
		{
			Name:            "get_player_status",
			Description:     "Look up one player by id",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"player_id":{"type":"string"}},"required":["team_id","player_id"]}`,
			Handler:         getPlayerStatus(store),
		},
		{
			Name:            "update_player_field",
			Description:     "Update one mutable field on a player's own record",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"player_id":{"type":"string"},"field":{"type":"string"},"value":{"type":"string"}},"required":["team_id","player_id","field","value"]}`,
			Handler:         updatePlayerField(store),
		},
		{
			Name:            "update_member_field",
			Description:     "Update one mutable field on a member's record",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"member_id":{"type":"string"},"field":{"type":"string"},"value":{"type":"string"}},"required":["team_id","member_id","field","value"]}`,
			Handler:         updateMemberField(store),
		},
		{
			Name:            "create_player",
			Description:     "Register a new pending player",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"name":{"type":"string"},"phone":{"type":"string"},"position":{"type":"string"}},"required":["team_id","name","phone"]}`,
			Handler:         createPlayer(store, invites),
		},
		{
			Name:            "create_member",
			Description:     "Register a new pending team member",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"name":{"type":"string"},"phone":{"type":"string"},"role":{"type":"string"}},"required":["team_id","name","phone","role"]}`,
			Handler:         createMember(store, invites),
		},
		{
			Name:            "approve_player",
			Description:     "Activate a pending player once leadership approves",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"player_id":{"type":"string"},"telegram_id":{"type":"integer"}},"required":["team_id","player_id","telegram_id"]}`,
			Handler:         approvePlayer(store),
		},
		{
			Name:            "list_matches",
			Description:     "List a team's matches",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"}},"required":["team_id"]}`,
			Handler:         listMatches(store),
		},
		{
			Name:            "get_available_players_for_match",
			Description:     "List players who reported available for a match",
			InputSchemaJSON: `{"type":"object","properties":{"match_id":{"type":"string"}},"required":["match_id"]}`,
			Handler:         getAvailablePlayersForMatch(store),
		},
		{
			Name:            "select_squad",
			Description:     "Finalize a match's squad from a list of player ids",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"match_id":{"type":"string"},"player_ids":{"type":"array","items":{"type":"string"}}},"required":["team_id","match_id","player_ids"]}`,
			Handler:         selectSquad(store),
		},
		{
			Name:            "create_match",
			Description:     "Schedule a new fixture",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"opponent":{"type":"string"},"kickoff_at":{"type":"string"},"venue":{"type":"string"}},"required":["team_id","opponent","kickoff_at"]}`,
			Handler:         createMatch(store),
		},
		{
			Name:            "create_reminder",
			Description:     "Schedule a recurring or one-shot reminder for a chat",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"chat_kind":{"type":"string","enum":["main","leadership"]},"body":{"type":"string"},"cron_expr":{"type":"string"}},"required":["team_id","chat_kind","body","cron_expr"]}`,
			Handler:         createReminder(store),
		},
		{
			Name:            "create_poll",
			Description:     "Open a poll in a chat",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"chat_kind":{"type":"string","enum":["main","leadership"]},"question":{"type":"string"},"options":{"type":"array","items":{"type":"string"}}},"required":["team_id","chat_kind","question","options"]}`,
			Handler:         createPoll(store),
		},
		{
			Name:            "announce",
			Description:     "Broadcast a one-off announcement to a team's main chat",
			InputSchemaJSON: `{"type":"object","properties":{"team_id":{"type":"string"},"message":{"type":"string"}},"required":["team_id","message"]}`,
			Handler:         announce(notifier),
		},
		{
			Name:            "get_command_help",
			Description:     "Describe one command's purpose, chat scope, and required permission",
			InputSchemaJSON: `{"type":"object","properties":{"command_name":{"type":"string"}},"required":["command_name"]}`,
			Handler:         getCommandHelp(commands),
		},
		{
			Name:            "get_welcome_message",
			Description:     "Return the onboarding welcome text for a chat kind",
			InputSchemaJSON: `{"type":"object","properties":{"chat_kind":{"type":"string","enum":["main","leadership"]}},"required":["chat_kind"]}`,
			Handler:         getWelcomeMessage(),
		},
	}
}

func listTeamMembersAndPlayers(store *storage.Store) Handler {
	type args struct {
		TeamID string `json:"team_id"`
	}
	type result struct {
		Players []entity.Player `json:"players"`
		Members []entity.Member `json:"members"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		players, err := store.ListPlayers(ctx, a.TeamID)
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		members, err := store.ListMembers(ctx, a.TeamID)
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(result{Players: players, Members: members})
	}
}

func getMyStatus(store *storage.Store) Handler {
	type args struct {
		TeamID     string `json:"team_id"`
		TelegramID int64  `json:"telegram_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		if p, err := store.GetPlayerByTelegramID(ctx, a.TeamID, a.TelegramID); err == nil {
			return OK(p)
		}
		if m, err := store.GetMemberByTelegramID(ctx, a.TeamID, a.TelegramID); err == nil {
			return OK(m)
		}
		return Err(string(apperr.NotFound), "no player or member record for this sender")
	}
}

func ping() Handler {
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		return OK(map[string]string{"status": "pong"})
	}
}

func getAvailableCommands(commands *command.Registry) Handler {
	type args struct {
		ChatKind string `json:"chat_kind"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		descs := commands.ListForChat(entity.ChatKind(a.ChatKind))
		names := make([]string, 0, len(descs))
		for _, d := range descs {
			names = append(names, d.Name)
		}
		return OK(map[string][]string{"commands": names})
	}
}

func getActivePlayers(store *storage.Store) Handler {
	type args struct {
		TeamID string `json:"team_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		players, err := store.ListPlayers(ctx, a.TeamID)
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		active := make([]entity.Player, 0, len(players))
		for _, p := range players {
			if p.Status == entity.StatusActive {
				active = append(active, p)
			}
		}
		return OK(active)
	}
}

func getPlayerStatus(store *storage.Store) Handler {
	type args struct {
		TeamID   string `json:"team_id"`
		PlayerID string `json:"player_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		p, err := store.GetPlayer(ctx, a.TeamID, a.PlayerID)
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(p)
	}
}

func updatePlayerField(store *storage.Store) Handler {
	type args struct {
		TeamID   string `json:"team_id"`
		PlayerID string `json:"player_id"`
		Field    string `json:"field"`
		Value    string `json:"value"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		if !entity.ValidUpdateField(a.Field) {
			return Err(string(apperr.InvalidInput), fmt.Sprintf("field %q is not updatable", a.Field))
		}
		if err := store.UpdatePlayerField(ctx, a.TeamID, a.PlayerID, entity.UpdatableField(a.Field), a.Value); err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(map[string]string{"player_id": a.PlayerID, "field": a.Field})
	}
}

func updateMemberField(store *storage.Store) Handler {
	type args struct {
		TeamID   string `json:"team_id"`
		MemberID string `json:"member_id"`
		Field    string `json:"field"`
		Value    string `json:"value"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		if !entity.ValidUpdateField(a.Field) {
			return Err(string(apperr.InvalidInput), fmt.Sprintf("field %q is not updatable", a.Field))
		}
		if err := store.UpdateMemberField(ctx, a.TeamID, a.MemberID, entity.UpdatableField(a.Field), a.Value); err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(map[string]string{"member_id": a.MemberID, "field": a.Field})
	}
}

func createPlayer(store *storage.Store, invites *invite.Service) Handler {
	type args struct {
		TeamID   string `json:"team_id"`
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Position string `json:"position"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		id, err := store.CreatePlayer(ctx, entity.Player{
			TeamID: a.TeamID, Name: a.Name, Phone: a.Phone,
			Position: entity.Position(a.Position), Status: entity.StatusPending,
		})
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		inviteURL, err := issueSubjectInvite(ctx, store, invites, a.TeamID, entity.SubjectPlayer, id)
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(map[string]string{"player_id": id, "invite_url": inviteURL})
	}
}

func createMember(store *storage.Store, invites *invite.Service) Handler {
	type args struct {
		TeamID string `json:"team_id"`
		Name   string `json:"name"`
		Phone  string `json:"phone"`
		Role   string `json:"role"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		id, err := store.CreateMember(ctx, entity.Member{
			TeamID: a.TeamID, Name: a.Name, Phone: a.Phone,
			Role: a.Role, Status: entity.StatusPending,
		})
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		inviteURL, err := issueSubjectInvite(ctx, store, invites, a.TeamID, entity.SubjectMember, id)
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(map[string]string{"member_id": id, "invite_url": inviteURL})
	}
}

// issueSubjectInvite mints the invite (§3, §4.8) that makes a freshly
// created pending player/member actionable: it resolves the issuing
// leader's member_id from the chat context the router attached to ctx,
// looks up the team's chat IDs, and returns the redemption URL to hand
// back in the tool's reply. A player invite targets the main chat a
// player redeems in; a member invite targets leadership, since only
// leadership chat members ever reach pending-member status.
func issueSubjectInvite(ctx context.Context, store *storage.Store, invites *invite.Service, teamID string, subject entity.SubjectKind, subjectID string) (string, error) {
	if invites == nil {
		return "", apperr.New(apperr.DependencyUnavailable, "invite issuance is unavailable")
	}
	cc := shared.FromChatContext(ctx)
	issuer, err := store.GetMemberByTelegramID(ctx, teamID, cc.TelegramID)
	if err != nil {
		return "", err
	}
	team, err := store.GetTeam(ctx, teamID)
	if err != nil {
		return "", err
	}
	chatKind, chatID := entity.ChatKindMain, team.MainChatID
	if subject == entity.SubjectMember {
		chatKind, chatID = entity.ChatKindLeadership, team.LeadershipChatID
	}
	token, err := invites.Issue(ctx, teamID, chatKind, subject, subjectID, issuer.MemberID, time.Now())
	if err != nil {
		return "", err
	}
	return invites.URL(token, subject, chatID, teamID), nil
}

func approvePlayer(store *storage.Store) Handler {
	type args struct {
		TeamID     string `json:"team_id"`
		PlayerID   string `json:"player_id"`
		TelegramID int64  `json:"telegram_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		if err := store.ActivatePlayer(ctx, a.TeamID, a.PlayerID, a.TelegramID); err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(map[string]string{"player_id": a.PlayerID, "status": string(entity.StatusActive)})
	}
}

func listMatches(store *storage.Store) Handler {
	type args struct {
		TeamID string `json:"team_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		matches, err := store.ListMatches(ctx, a.TeamID)
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(matches)
	}
}

func getAvailablePlayersForMatch(store *storage.Store) Handler {
	type args struct {
		MatchID string `json:"match_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		avail, err := store.ListAvailability(ctx, a.MatchID)
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		available := make([]string, 0, len(avail))
		for _, a := range avail {
			if a.Response == entity.AvailabilityAvailable {
				available = append(available, a.PlayerID)
			}
		}
		return OK(map[string][]string{"available_player_ids": available})
	}
}

func selectSquad(store *storage.Store) Handler {
	type args struct {
		TeamID    string   `json:"team_id"`
		MatchID   string   `json:"match_id"`
		PlayerIDs []string `json:"player_ids"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		if err := store.SelectSquad(ctx, a.TeamID, a.MatchID, a.PlayerIDs); err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(map[string]any{"match_id": a.MatchID, "selected": a.PlayerIDs})
	}
}

func createMatch(store *storage.Store) Handler {
	type args struct {
		TeamID    string `json:"team_id"`
		Opponent  string `json:"opponent"`
		KickoffAt string `json:"kickoff_at"`
		Venue     string `json:"venue"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		kickoff, err := time.Parse(time.RFC3339, a.KickoffAt)
		if err != nil {
			return Err(string(apperr.InvalidInput), fmt.Sprintf("kickoff_at must be RFC3339, got %q", a.KickoffAt))
		}
		id, err := store.CreateMatch(ctx, entity.Match{
			TeamID: a.TeamID, Opponent: a.Opponent, KickoffAt: kickoff, Venue: a.Venue,
		})
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(map[string]string{"match_id": id})
	}
}

func createReminder(store *storage.Store) Handler {
	type args struct {
		TeamID   string `json:"team_id"`
		ChatKind string `json:"chat_kind"`
		Body     string `json:"body"`
		CronExpr string `json:"cron_expr"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		createdBy := issuerMemberID(ctx, store, a.TeamID)
		id, err := store.CreateReminder(ctx, entity.Reminder{
			TeamID: a.TeamID, ChatKind: entity.ChatKind(a.ChatKind), Body: a.Body,
			CronExpr: a.CronExpr, CreatedBy: createdBy,
		})
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(map[string]string{"reminder_id": id})
	}
}

func createPoll(store *storage.Store) Handler {
	type args struct {
		TeamID   string   `json:"team_id"`
		ChatKind string   `json:"chat_kind"`
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		createdBy := issuerMemberID(ctx, store, a.TeamID)
		id, err := store.CreatePoll(ctx, entity.Poll{
			TeamID: a.TeamID, ChatKind: entity.ChatKind(a.ChatKind), Question: a.Question,
			Options: a.Options, CreatedBy: createdBy,
		})
		if err != nil {
			kind, msg := apperr.As(err)
			return Err(string(kind), msg)
		}
		return OK(map[string]string{"poll_id": id})
	}
}

// issuerMemberID resolves the sending leader's member_id from the chat
// context the router attached to ctx, for CreatedBy columns that record
// who ran an admin-only comms command. A lookup failure degrades to an
// empty CreatedBy rather than failing the whole mutation — the reminder
// or poll itself is what matters, and CreatedBy is audit metadata, not a
// foreign key anything depends on.
func issuerMemberID(ctx context.Context, store *storage.Store, teamID string) string {
	cc := shared.FromChatContext(ctx)
	member, err := store.GetMemberByTelegramID(ctx, teamID, cc.TelegramID)
	if err != nil {
		return ""
	}
	return member.MemberID
}

func announce(notifier Notifier) Handler {
	type args struct {
		TeamID  string `json:"team_id"`
		Message string `json:"message"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		if notifier == nil {
			return Err(string(apperr.DependencyUnavailable), "announcement delivery is unavailable")
		}
		if err := notifier.Notify(ctx, a.TeamID, entity.ChatKindMain, a.Message); err != nil {
			return Err(string(apperr.DependencyUnavailable), err.Error())
		}
		return OK(map[string]string{"team_id": a.TeamID, "status": "sent"})
	}
}

func getCommandHelp(commands *command.Registry) Handler {
	type args struct {
		CommandName string `json:"command_name"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		d, ok := commands.Get(a.CommandName)
		if !ok {
			return Err(string(apperr.NotFound), fmt.Sprintf("no such command %q", a.CommandName))
		}
		return OK(map[string]string{
			"name":        d.Name,
			"description": d.Description,
			"chat_scope":  string(d.ChatScope),
			"permission":  string(d.Permission),
		})
	}
}

func getWelcomeMessage() Handler {
	type args struct {
		ChatKind string `json:"chat_kind"`
	}
	return func(ctx context.Context, raw json.RawMessage) Envelope {
		var a args
		if err := json.Unmarshal(raw, &a); err != nil {
			return Err(string(apperr.InvalidInput), err.Error())
		}
		if entity.ChatKind(a.ChatKind) == entity.ChatKindLeadership {
			return OK(map[string]string{"message": "Welcome to your team's leadership chat. Use /addplayer or /addmember to bring people in, /help to see every admin command."})
		}
		return OK(map[string]string{"message": "Welcome! Send /myinfo to see your own record, or /help to see what you can do here."})
	}
}
