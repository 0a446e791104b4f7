package authz_test

import (
	"testing"

	"github.com/kickai/kickai/internal/authz"
	"github.com/kickai/kickai/internal/entity"
)

func TestAuthorizeDeniesWrongScope(t *testing.T) {
	c := newTestChecker(t)
	cmd := entity.CommandDescriptor{Name: "/approve", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader}
	uc := entity.UserContext{Classification: entity.ClassLeader, ChatKind: entity.ChatKindMain}

	d, err := c.Authorize(uc, cmd)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected denial for wrong chat scope, got %+v", d)
	}
}

func TestAuthorizeDeniesInsufficientClassification(t *testing.T) {
	c := newTestChecker(t)
	cmd := entity.CommandDescriptor{Name: "/approve", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader}
	uc := entity.UserContext{Classification: entity.ClassPlayer, ChatKind: entity.ChatKindLeadership}

	d, err := c.Authorize(uc, cmd)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected denial for insufficient classification, got %+v", d)
	}
}

func TestAuthorizeAllowsOnClassificationAlone(t *testing.T) {
	c := newTestChecker(t)
	cmd := entity.CommandDescriptor{Name: "/myinfo", ChatScope: entity.ScopeAny, Permission: entity.PermissionPlayer}
	uc := entity.UserContext{Classification: entity.ClassPlayer, ChatKind: entity.ChatKindMain, PlayerID: "player-1"}

	d, err := c.Authorize(uc, cmd)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !d.Allowed || d.Reason != "allowed_classification" {
		t.Fatalf("expected classification-only allow, got %+v", d)
	}
}

func TestAuthorizeGatesOnUngrantedCapability(t *testing.T) {
	c := newTestChecker(t)
	cmd := entity.CommandDescriptor{
		Name: "/announce", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader,
		RequiredCapability: "announce:send",
	}
	uc := entity.UserContext{Classification: entity.ClassLeader, ChatKind: entity.ChatKindLeadership, MemberID: "member-1"}

	d, err := c.Authorize(uc, cmd)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected denial for ungranted capability, got %+v", d)
	}
	if d.Reason != "denied_capability" {
		t.Fatalf("expected denied_capability reason, got %q", d.Reason)
	}
}

func TestAuthorizeAllowsGrantedCapability(t *testing.T) {
	c := newTestChecker(t)
	if err := c.GrantCapability("team-1", "member-1", "announce:send"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	cmd := entity.CommandDescriptor{
		Name: "/announce", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader,
		RequiredCapability: "announce:send",
	}
	uc := entity.UserContext{
		Classification: entity.ClassLeader, ChatKind: entity.ChatKindLeadership,
		TeamID: "team-1", MemberID: "member-1",
	}

	d, err := c.Authorize(uc, cmd)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !d.Allowed || d.Reason != "allowed_capability" {
		t.Fatalf("expected capability-granted allow, got %+v", d)
	}
}

func TestAuthorizeCapabilityGateAppliesEvenToAdmin(t *testing.T) {
	c := newTestChecker(t)
	cmd := entity.CommandDescriptor{
		Name: "/announce", ChatScope: entity.ScopeLeadershipOnly, Permission: entity.PermissionLeader,
		RequiredCapability: "announce:send",
	}
	uc := entity.UserContext{
		Classification: entity.ClassAdmin, ChatKind: entity.ChatKindLeadership,
		TeamID: "team-1", MemberID: "member-admin",
	}

	d, err := c.Authorize(uc, cmd)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Allowed {
		t.Fatalf("admin without an explicit capability grant should still be gated, got %+v", d)
	}
	if err := c.GrantCapability("team-1", "member-admin", "announce:send"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	d, err = c.Authorize(uc, cmd)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected admin to pass once granted, got %+v", d)
	}
}
