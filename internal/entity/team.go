// Package entity holds the domain types shared across KICKAI's repositories,
// authorization layer, and tool implementations. Types here carry validator
// struct tags; nothing in this package talks to storage directly.
package entity

import "time"

// ChatKind distinguishes a team's two Telegram chats.
type ChatKind string

const (
	ChatKindMain       ChatKind = "main"
	ChatKindLeadership ChatKind = "leadership"
)

func (k ChatKind) Valid() bool {
	return k == ChatKindMain || k == ChatKindLeadership
}

// Team is the tenant root. It owns exactly two chats and two bot identities;
// disabling a team cascades to its players, members, and invites.
type Team struct {
	TeamID             string `validate:"required,min=2,max=32"`
	Name               string `validate:"required,min=1,max=120"`
	MainChatID         int64  `validate:"required"`
	LeadershipChatID   int64  `validate:"required"`
	BotMainToken       string `validate:"required"`
	BotLeadershipToken string `validate:"required"`
	Disabled           bool
	CreatedAt          time.Time
}

// ChatOf returns the chat ID for the given chat kind.
func (t Team) ChatOf(kind ChatKind) (int64, bool) {
	switch kind {
	case ChatKindMain:
		return t.MainChatID, true
	case ChatKindLeadership:
		return t.LeadershipChatID, true
	default:
		return 0, false
	}
}

// KindOfChat classifies a chat ID as main, leadership, or unknown to this team.
func (t Team) KindOfChat(chatID int64) (ChatKind, bool) {
	switch chatID {
	case t.MainChatID:
		return ChatKindMain, true
	case t.LeadershipChatID:
		return ChatKindLeadership, true
	default:
		return "", false
	}
}
