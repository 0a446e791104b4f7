// Package agent defines KICKAI's fixed roster of specialist agents (§4.4).
// The six agents are a static, startup-time table: no agent is ever
// created, removed, or persisted, and concurrency lives one layer up in
// internal/orchestrator's per-chat workers. A definition's shape (name,
// backstory, permitted tools, LLM backend) is looked up from a
// mutex-guarded name map.
package agent

import (
	"fmt"
	"sync"
)

// Name identifies one of the six fixed specialists.
type Name string

const (
	MessageProcessor  Name = "MessageProcessor"
	HelpAssistant     Name = "HelpAssistant"
	PlayerCoordinator Name = "PlayerCoordinator"
	TeamAdministrator Name = "TeamAdministrator"
	SquadSelector     Name = "SquadSelector"
	NLPProcessor      Name = "NLPProcessor"
)

// Spec is the immutable definition of one specialist: its role, its
// anti-hallucination backstory discipline, and the tools it may invoke.
// Backstories are deliberately blunt about what the agent must NOT
// invent — §4.6's hallucination guard depends on the agent never
// asserting a fact its tool output didn't return.
type Spec struct {
	Name        Name
	Role        string
	Goal        string
	Backstory   string
	Tools       []string // tool names from internal/tool's registry
	CanMutate   bool     // false for NLPProcessor: recommends, never acts
}

// Roster is the full fixed set, keyed by Name, built once at startup.
type Roster struct {
	mu    sync.RWMutex
	specs map[Name]Spec
}

// NewRoster builds the standard six-agent roster (§4.4).
func NewRoster() *Roster {
	r := &Roster{specs: make(map[Name]Spec, 6)}
	for _, s := range defaultSpecs() {
		r.specs[s.Name] = s
	}
	return r
}

// Get returns the spec for name, or false if name isn't one of the six.
func (r *Roster) Get(name Name) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// All returns every registered spec, stable order by Name.
func (r *Roster) All() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.specs))
	for _, name := range []Name{MessageProcessor, HelpAssistant, PlayerCoordinator, TeamAdministrator, SquadSelector, NLPProcessor} {
		if s, ok := r.specs[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// MustGet panics if name isn't registered — used at startup wiring time
// where a missing specialist is a programmer error, not a runtime one.
func (r *Roster) MustGet(name Name) Spec {
	s, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("agent: no such specialist %q", name))
	}
	return s
}

func defaultSpecs() []Spec {
	return []Spec{
		{
			Name:      MessageProcessor,
			Role:      "Primary triage for ambiguous or low-stakes requests",
			Goal:      "Answer simple lookups directly and route everything else to the right specialist",
			Backstory: "You handle roster listings, status checks, and pings. You never invent a player's status, phone number, or team membership — every fact you state must come from a tool call you just made. If a tool returns nothing, say so plainly.",
			Tools:     []string{"list_team_members_and_players", "get_my_status", "ping"},
			CanMutate: false,
		},
		{
			Name:      HelpAssistant,
			Role:      "Context-aware help for commands and onboarding",
			Goal:      "Explain available commands and how to use them, tailored to the asking chat",
			Backstory: "Help text changes between the main chat and the leadership chat — never describe a leadership-only command as available in the main chat. You only describe commands the tool catalog actually returns for this chat.",
			Tools:     []string{"get_available_commands", "get_command_help", "get_welcome_message"},
			CanMutate: false,
		},
		{
			Name:      PlayerCoordinator,
			Role:      "Player-side lookups and self-service updates",
			Goal:      "Answer a player's questions about their own status and apply their own self-updates",
			Backstory: "You act only on the requesting player's own record unless a tool explicitly scopes wider. You never approve, activate, or change another player's data — that belongs to TeamAdministrator.",
			Tools:     []string{"get_active_players", "get_player_status", "update_player_field"},
			CanMutate: true,
		},
		{
			Name:      TeamAdministrator,
			Role:      "Admin actions on players and members",
			Goal:      "Register, approve, and amend player and member records on behalf of team leadership",
			Backstory: "Every mutation you perform is leadership-authorized before it reaches you — you don't re-derive permission, but you never perform an action beyond the one named tool call the request maps to.",
			Tools:     []string{"create_player", "create_member", "approve_player", "update_player_field", "update_member_field", "create_reminder", "create_poll", "announce"},
			CanMutate: true,
		},
		{
			Name:      SquadSelector,
			Role:      "Match scheduling, availability, and squad selection",
			Goal:      "Track match availability and finalize squad selections from it",
			Backstory: "A squad selection must be built only from players a tool reported as available for that exact match — never from memory of a previous match or a player's general status.",
			Tools:     []string{"list_matches", "get_available_players_for_match", "select_squad", "create_match"},
			CanMutate: true,
		},
		{
			Name:      NLPProcessor,
			Role:      "Intent disambiguation for natural-language messages",
			Goal:      "Classify an unstructured message into (intent, suggested_agent, extracted_parameters) without acting on it",
			Backstory: "You never call a mutating tool and never claim an action was taken. Your only output is a classification for another agent to act on.",
			Tools:     nil,
			CanMutate: false,
		},
	}
}
