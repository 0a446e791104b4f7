package authz_test

import (
	"path/filepath"
	"testing"

	"github.com/kickai/kickai/internal/authz"
)

func newTestChecker(t *testing.T) *authz.Checker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capabilities.csv")
	c, err := authz.NewChecker(path)
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	return c
}

func TestGrantAndCheckCapability(t *testing.T) {
	c := newTestChecker(t)

	ok, err := c.HasCapability("team-1", "member-1", "invite:issue")
	if err != nil {
		t.Fatalf("has capability: %v", err)
	}
	if ok {
		t.Fatalf("expected no capability before grant")
	}

	if err := c.GrantCapability("team-1", "member-1", "invite:issue"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	ok, err = c.HasCapability("team-1", "member-1", "invite:issue")
	if err != nil {
		t.Fatalf("has capability: %v", err)
	}
	if !ok {
		t.Fatalf("expected capability after grant")
	}
}

func TestCapabilityIsScopedPerTeam(t *testing.T) {
	c := newTestChecker(t)
	if err := c.GrantCapability("team-1", "member-1", "match:manage"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	ok, err := c.HasCapability("team-2", "member-1", "match:manage")
	if err != nil {
		t.Fatalf("has capability: %v", err)
	}
	if ok {
		t.Fatalf("expected grant in team-1 not to leak into team-2")
	}
}

func TestRevokeCapability(t *testing.T) {
	c := newTestChecker(t)
	if err := c.GrantCapability("team-1", "member-1", "invite:issue"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := c.RevokeCapability("team-1", "member-1", "invite:issue"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err := c.HasCapability("team-1", "member-1", "invite:issue")
	if err != nil {
		t.Fatalf("has capability: %v", err)
	}
	if ok {
		t.Fatalf("expected no capability after revoke")
	}
}

func TestCapabilitiesForListsGrants(t *testing.T) {
	c := newTestChecker(t)
	if err := c.GrantCapability("team-1", "member-1", "invite:issue"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := c.GrantCapability("team-1", "member-1", "match:manage"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	caps := c.CapabilitiesFor("team-1", "member-1")
	if len(caps) != 2 {
		t.Fatalf("expected 2 capabilities, got %v", caps)
	}
}

func TestRevokeUngrantedCapabilityIsNoop(t *testing.T) {
	c := newTestChecker(t)
	if err := c.RevokeCapability("team-1", "member-1", "invite:issue"); err != nil {
		t.Fatalf("expected revoking an ungranted capability to be a no-op, got %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.csv")
	first, err := authz.NewChecker(path)
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	if err := first.GrantCapability("team-1", "member-1", "invite:issue"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	second, err := authz.NewChecker(path)
	if err != nil {
		t.Fatalf("reopen checker: %v", err)
	}
	ok, err := second.HasCapability("team-1", "member-1", "invite:issue")
	if err != nil {
		t.Fatalf("has capability: %v", err)
	}
	if !ok {
		t.Fatalf("expected grant to persist across reopen")
	}
}
