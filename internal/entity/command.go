package entity

// ChatScope restricts which chat kind a command is visible/executable in.
type ChatScope string

const (
	ScopeMainOnly       ChatScope = "main_only"
	ScopeLeadershipOnly ChatScope = "leadership_only"
	ScopeAny            ChatScope = "any"
)

// Admits reports whether a command with this scope may run in the given chat.
func (s ChatScope) Admits(kind ChatKind) bool {
	switch s {
	case ScopeMainOnly:
		return kind == ChatKindMain
	case ScopeLeadershipOnly:
		return kind == ChatKindLeadership
	case ScopeAny:
		return true
	default:
		return false
	}
}

// Permission is the minimum classification required to run a command.
type Permission string

const (
	PermissionPublic Permission = "public"
	PermissionPlayer Permission = "player"
	PermissionLeader Permission = "leader"
	PermissionAdmin  Permission = "admin"
)

// Classification is a resolved sender's standing for one update (§4.3).
type Classification string

const (
	ClassUnregistered Classification = "unregistered"
	ClassPlayer       Classification = "player"
	ClassMember       Classification = "member"
	ClassLeader       Classification = "leader"
	ClassAdmin        Classification = "admin"
)

// CommandDescriptor is immutable metadata for one slash command, registered
// once at startup (§4.1, C2).
type CommandDescriptor struct {
	Name        string // slash-prefixed, e.g. "/addplayer"
	Description string
	FeatureTag  string
	ChatScope   ChatScope
	Permission  Permission

	// RequiredCapability, if set, gates the command behind an explicit
	// per-team grant on top of Permission — e.g. a leader who isn't the
	// team's admin can still be handed "invite:issue" individually. Empty
	// means Permission alone decides.
	RequiredCapability string
}

// UserContext is the transient, per-update classification of a sender. It is
// constructed fresh for every update and never persisted or cached across
// chats (§3, §9 "chat-aware identity").
type UserContext struct {
	TelegramID     int64
	TeamID         string
	ChatKind       ChatKind
	Classification Classification
	PlayerID       string // set iff the sender has a player row
	MemberID       string // set iff the sender has a member row
}

// HasPermission reports whether this context satisfies perm for chatKind,
// per the grid in §4.3.
func (u UserContext) HasPermission(perm Permission, chatKind ChatKind) bool {
	switch perm {
	case PermissionPublic:
		return true
	case PermissionPlayer:
		switch u.Classification {
		case ClassPlayer, ClassMember, ClassLeader, ClassAdmin:
			return true
		default:
			return false
		}
	case PermissionLeader:
		return (u.Classification == ClassLeader || u.Classification == ClassAdmin) && chatKind == ChatKindLeadership
	case PermissionAdmin:
		return u.Classification == ClassAdmin && chatKind == ChatKindLeadership
	default:
		return false
	}
}
