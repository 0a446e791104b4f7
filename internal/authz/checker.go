// Package authz resolves whether a classified sender may run a command.
//
// Authorization happens in two stages (§4.3). The coarse stage is the
// classification grid already carried on entity.UserContext — public,
// player, leader, admin — and costs nothing beyond a struct field
// comparison. The fine stage is a per-team capability grant, for commands
// that name one, so a team's leadership can hand an individual leader a
// narrow power (issuing invites, managing a match) without promoting them
// to admin. That second stage is backed by casbin, the way
// orris-inc-orris's permission package wraps it, but with casbin's built-in
// CSV file adapter instead of a GORM adapter — KICKAI already owns its
// sqlite connection for domain data and has no other reason to pull in an
// ORM just to persist a handful of capability grants.
package authz

import (
	"fmt"
	"os"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// capabilityModel is a casbin RBAC-with-domains model. Roles and
// capabilities share a namespace on purpose: granting memberID the
// "invite:issue" capability in teamID adds them to a role named
// "invite:issue" scoped to that team, and a single static policy line
// admits that role to the object of the same name.
const capabilityModel = `
[request_definition]
r = sub, dom, obj

[policy_definition]
p = sub, dom, obj

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && r.dom == p.dom && r.obj == p.obj
`

// Checker is the per-team capability enforcer. One Checker is shared by the
// whole process; casbin's own enforcer is not safe for concurrent use so
// every call is serialized behind mu.
type Checker struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

// NewChecker opens (creating if absent) a CSV-backed capability store at
// path. An empty file is a valid, empty policy set.
func NewChecker(path string) (*Checker, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, fmt.Errorf("create capability store %s: %w", path, err)
		}
	}
	m, err := model.NewModelFromString(capabilityModel)
	if err != nil {
		return nil, fmt.Errorf("parse capability model: %w", err)
	}
	e, err := casbin.NewEnforcer(m, path)
	if err != nil {
		return nil, fmt.Errorf("open capability enforcer at %s: %w", path, err)
	}
	return &Checker{enforcer: e}, nil
}

// HasCapability reports whether memberID holds capability within teamID.
func (c *Checker) HasCapability(teamID, memberID, capability string) (bool, error) {
	if memberID == "" || capability == "" {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ok, err := c.enforcer.Enforce(memberID, teamID, capability)
	if err != nil {
		return false, fmt.Errorf("enforce capability %q for %s/%s: %w", capability, teamID, memberID, err)
	}
	return ok, nil
}

// GrantCapability hands memberID the named capability within teamID.
func (c *Checker) GrantCapability(teamID, memberID, capability string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.enforcer.AddPolicy(capability, teamID, capability); err != nil {
		return fmt.Errorf("grant capability policy: %w", err)
	}
	if _, err := c.enforcer.AddGroupingPolicy(memberID, capability, teamID); err != nil {
		return fmt.Errorf("grant capability role: %w", err)
	}
	return c.enforcer.SavePolicy()
}

// RevokeCapability withdraws a previously granted capability. Revoking a
// grant that was never made is a no-op, not an error.
func (c *Checker) RevokeCapability(teamID, memberID, capability string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.enforcer.RemoveGroupingPolicy(memberID, capability, teamID); err != nil {
		return fmt.Errorf("revoke capability: %w", err)
	}
	return c.enforcer.SavePolicy()
}

// CapabilitiesFor lists every capability granted to memberID within teamID,
// for /myinfo and admin review.
func (c *Checker) CapabilitiesFor(teamID, memberID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enforcer.GetRolesForUserInDomain(memberID, teamID)
}
