package entity

import "time"

// SubjectKind is who an invite promotes: a player or a member.
type SubjectKind string

const (
	SubjectPlayer SubjectKind = "player"
	SubjectMember SubjectKind = "member"
)

// Invite is a single-use token that binds a pending Player/Member row to a
// Telegram identity on first use (§3, §4.8). Retained after redemption for
// audit; never deleted.
type Invite struct {
	InviteID  string `validate:"required,uuid4"`
	TeamID    string `validate:"required"`
	ChatKind  ChatKind
	Subject   SubjectKind
	SubjectID string `validate:"required"`
	IssuerID  string `validate:"required"` // member_id of the issuer
	IssuedAt  time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    int64 // telegram_id of redeemer, 0 until used
}

// Expired reports whether the invite's TTL has elapsed as of now.
func (i Invite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Used reports whether the invite has already been redeemed.
func (i Invite) Used() bool {
	return i.UsedAt != nil
}
