package entity_test

import (
	"testing"

	"github.com/kickai/kickai/internal/entity"
)

func TestChatScopeAdmits(t *testing.T) {
	cases := []struct {
		scope entity.ChatScope
		kind  entity.ChatKind
		want  bool
	}{
		{entity.ScopeMainOnly, entity.ChatKindMain, true},
		{entity.ScopeMainOnly, entity.ChatKindLeadership, false},
		{entity.ScopeLeadershipOnly, entity.ChatKindLeadership, true},
		{entity.ScopeLeadershipOnly, entity.ChatKindMain, false},
		{entity.ScopeAny, entity.ChatKindMain, true},
		{entity.ScopeAny, entity.ChatKindLeadership, true},
	}
	for _, c := range cases {
		if got := c.scope.Admits(c.kind); got != c.want {
			t.Errorf("%s.Admits(%s) = %v, want %v", c.scope, c.kind, got, c.want)
		}
	}
}

func TestUserContextHasPermission(t *testing.T) {
	leaderInMain := entity.UserContext{Classification: entity.ClassLeader, ChatKind: entity.ChatKindMain}
	if leaderInMain.HasPermission(entity.PermissionLeader, entity.ChatKindMain) {
		t.Fatalf("leader permission must require leadership chat")
	}
	leaderInLeadership := entity.UserContext{Classification: entity.ClassLeader}
	if !leaderInLeadership.HasPermission(entity.PermissionLeader, entity.ChatKindLeadership) {
		t.Fatalf("leader in leadership chat should satisfy leader permission")
	}
	if !leaderInLeadership.HasPermission(entity.PermissionPlayer, entity.ChatKindLeadership) {
		t.Fatalf("leader should also satisfy the weaker player permission")
	}
	unregistered := entity.UserContext{Classification: entity.ClassUnregistered}
	if unregistered.HasPermission(entity.PermissionPlayer, entity.ChatKindMain) {
		t.Fatalf("unregistered sender must not satisfy player permission")
	}
	if !unregistered.HasPermission(entity.PermissionPublic, entity.ChatKindMain) {
		t.Fatalf("public permission must admit anyone")
	}
	admin := entity.UserContext{Classification: entity.ClassAdmin}
	if !admin.HasPermission(entity.PermissionAdmin, entity.ChatKindLeadership) {
		t.Fatalf("admin in leadership chat should satisfy admin permission")
	}
	if admin.HasPermission(entity.PermissionAdmin, entity.ChatKindMain) {
		t.Fatalf("admin permission must require leadership chat even for admins")
	}
}

func TestValidPositionAndUpdateField(t *testing.T) {
	if !entity.ValidPosition("goalkeeper") {
		t.Fatalf("goalkeeper should be a valid position")
	}
	if entity.ValidPosition("manager") {
		t.Fatalf("manager should not be a valid position")
	}
	if !entity.ValidUpdateField("phone") {
		t.Fatalf("phone should be an updatable field")
	}
	if entity.ValidUpdateField("name") {
		t.Fatalf("name should not be an updatable field (not in the safe contract)")
	}
}
