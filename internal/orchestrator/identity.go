package orchestrator

import (
	"context"

	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
	"github.com/kickai/kickai/internal/storage"
)

// classify resolves a sender's standing for one update (§4.3, §9's
// chat-aware identity decision): the same Telegram account classifies
// differently depending on which of a team's two chats it messaged
// from — a staff member is ClassMember in the main chat (player-level
// standing only) but ClassLeader or ClassAdmin in the leadership chat,
// since leader/admin permissions are gated on ChatKindLeadership by
// entity.UserContext.HasPermission regardless of classification.
func classify(ctx context.Context, store *storage.Store, teamID string, chatKind entity.ChatKind, telegramID int64) (entity.UserContext, error) {
	uc := entity.UserContext{TelegramID: telegramID, TeamID: teamID, ChatKind: chatKind}

	member, err := store.GetMemberByTelegramID(ctx, teamID, telegramID)
	hasMember := err == nil && member.Status == entity.StatusActive
	if err != nil && !apperr.Is(err, apperr.NotFound) {
		return entity.UserContext{}, err
	}

	player, err := store.GetPlayerByTelegramID(ctx, teamID, telegramID)
	hasPlayer := err == nil && player.Status == entity.StatusActive
	if err != nil && !apperr.Is(err, apperr.NotFound) {
		return entity.UserContext{}, err
	}

	if hasMember {
		uc.MemberID = member.MemberID
	}
	if hasPlayer {
		uc.PlayerID = player.PlayerID
	}

	switch {
	case hasMember && chatKind == entity.ChatKindLeadership && member.IsAdmin:
		uc.Classification = entity.ClassAdmin
	case hasMember && chatKind == entity.ChatKindLeadership:
		uc.Classification = entity.ClassLeader
	case hasMember:
		uc.Classification = entity.ClassMember
	case hasPlayer:
		uc.Classification = entity.ClassPlayer
	default:
		uc.Classification = entity.ClassUnregistered
	}
	return uc, nil
}
