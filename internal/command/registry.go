// Package command holds KICKAI's declarative command table (§4.1, C2):
// every slash command's chat scope, required permission, and owning
// agent, registered once at startup. Follows a fail-fast-if-uninitialized
// discipline: the table is built once in main.go and panics on error
// rather than limping along with a partial command set.
package command

import (
	"sync"

	"github.com/kickai/kickai/internal/agent"
	"github.com/kickai/kickai/internal/entity"
)

// Descriptor extends entity.CommandDescriptor with the agent that owns
// it. A command can name two owners — one per chat kind — when its
// behavior is chat-aware (§4.1's `/myinfo`/`/list` split); AgentForChat
// resolves which one applies.
type Descriptor struct {
	entity.CommandDescriptor
	MainAgent       agent.Name
	LeadershipAgent agent.Name // zero value means "same as MainAgent"
}

// AgentForChat resolves the owning agent for the chat kind the command
// was invoked in.
func (d Descriptor) AgentForChat(kind entity.ChatKind) agent.Name {
	if kind == entity.ChatKindLeadership && d.LeadershipAgent != "" {
		return d.LeadershipAgent
	}
	return d.MainAgent
}

// Registry is the startup-built, read-only command table. It is never
// mutated after Registered() is called, so lookups need no locking
// beyond guarding against use-before-initialization.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Descriptor
	ready bool
}

// NewRegistry builds and freezes the standard command table. Call this
// once at startup; a nil or zero-value Registry used before this panics
// on first lookup, by design — a missing command table is a programmer
// error, not a recoverable runtime condition.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]Descriptor)}
	for _, d := range defaultDescriptors() {
		r.byID[d.Name] = d
	}
	r.ready = true
	return r
}

// Get returns the descriptor for name (slash-prefixed), or false if no
// such command is registered.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mustBeReady()
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[name]
	return d, ok
}

// ListForChat returns every command visible in the given chat kind, the
// set HelpAssistant draws its context-aware help text from (§4.1).
func (r *Registry) ListForChat(kind entity.ChatKind) []Descriptor {
	r.mustBeReady()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		if d.ChatScope.Admits(kind) {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) mustBeReady() {
	if r == nil || !r.ready {
		panic("command: registry used before NewRegistry")
	}
}

func defaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/help", Description: "List available commands", FeatureTag: "help", ChatScope: entity.ScopeAny, Permission: entity.PermissionPublic},
			MainAgent:         agent.HelpAssistant,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/version", Description: "Show bot version", FeatureTag: "help", ChatScope: entity.ScopeAny, Permission: entity.PermissionPublic},
			MainAgent:         agent.HelpAssistant,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/ping", Description: "Health check", FeatureTag: "help", ChatScope: entity.ScopeAny, Permission: entity.PermissionPublic},
			MainAgent:         agent.HelpAssistant,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/myinfo", Description: "Show your own record", FeatureTag: "profile", ChatScope: entity.ScopeAny, Permission: entity.PermissionPlayer},
			MainAgent:         agent.MessageProcessor,
			LeadershipAgent:   agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/status", Description: "Show your own status", FeatureTag: "profile", ChatScope: entity.ScopeAny, Permission: entity.PermissionPlayer},
			MainAgent:         agent.MessageProcessor,
			LeadershipAgent:   agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/list", Description: "List players (or players and members in leadership)", FeatureTag: "roster", ChatScope: entity.ScopeAny, Permission: entity.PermissionPlayer},
			MainAgent:         agent.PlayerCoordinator,
			LeadershipAgent:   agent.MessageProcessor,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/addplayer", Description: "Register a new player", FeatureTag: "roster", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionAdmin},
			MainAgent:         agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/addmember", Description: "Register a new team member", FeatureTag: "roster", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionAdmin},
			MainAgent:         agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/approve", Description: "Approve a pending player", FeatureTag: "roster", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionAdmin},
			MainAgent:         agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/update", Description: "Update your own record", FeatureTag: "profile", ChatScope: entity.ScopeAny, Permission: entity.PermissionPlayer},
			MainAgent:         agent.PlayerCoordinator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/updateplayer", Description: "Update another player's record", FeatureTag: "roster", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionAdmin},
			MainAgent:         agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/updatemember", Description: "Update another member's record", FeatureTag: "roster", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionAdmin},
			MainAgent:         agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/creatematch", Description: "Schedule a new match", FeatureTag: "matches", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader},
			MainAgent:         agent.SquadSelector,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/listmatches", Description: "List upcoming matches", FeatureTag: "matches", ChatScope: entity.ScopeAny, Permission: entity.PermissionPlayer},
			MainAgent:         agent.SquadSelector,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/selectsquad", Description: "Finalize a match squad", FeatureTag: "matches", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader},
			MainAgent:         agent.SquadSelector,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/announce", Description: "Broadcast an announcement to the main chat", FeatureTag: "comms", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader, RequiredCapability: "announce:send"},
			MainAgent:         agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/poll", Description: "Run a poll in the main chat", FeatureTag: "comms", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader},
			MainAgent:         agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/remind", Description: "Schedule a recurring reminder", FeatureTag: "comms", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader},
			MainAgent:         agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/background", Description: "Send a leadership digest of recent activity", FeatureTag: "comms", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader},
			MainAgent:         agent.TeamAdministrator,
		},
		{
			CommandDescriptor: entity.CommandDescriptor{Name: "/register", Description: "Redeem an invite link", FeatureTag: "onboarding", ChatScope: entity.ScopeAny, Permission: entity.PermissionPublic},
			MainAgent:         agent.HelpAssistant,
		},
	}
}
