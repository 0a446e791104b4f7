package authz

import (
	"fmt"

	"github.com/kickai/kickai/internal/entity"
)

// Decision is the outcome of one authorization check, carried through to
// the audit log so a denial's reason survives past the request.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	reasonScope            = "denied_scope"
	reasonClassification   = "allowed_classification"
	reasonDeniedClass      = "denied_classification"
	reasonCapability       = "allowed_capability"
	reasonDeniedCapability = "denied_capability"
)

// Authorize runs §4.3's full check for one command against one sender: chat
// scope, then classification, then — only when the command names one — a
// per-team capability grant. Each stage short-circuits the next so a denial
// at an earlier, cheaper stage never touches casbin at all.
func (c *Checker) Authorize(uc entity.UserContext, cmd entity.CommandDescriptor) (Decision, error) {
	if !cmd.ChatScope.Admits(uc.ChatKind) {
		return Decision{Allowed: false, Reason: reasonScope}, nil
	}
	if !uc.HasPermission(cmd.Permission, uc.ChatKind) {
		return Decision{Allowed: false, Reason: reasonDeniedClass}, nil
	}
	if cmd.RequiredCapability == "" {
		return Decision{Allowed: true, Reason: reasonClassification}, nil
	}

	memberID := uc.MemberID
	if memberID == "" {
		memberID = uc.PlayerID
	}
	ok, err := c.HasCapability(uc.TeamID, memberID, cmd.RequiredCapability)
	if err != nil {
		return Decision{}, fmt.Errorf("authorize %s for %s: %w", cmd.Name, memberID, err)
	}
	if !ok {
		return Decision{Allowed: false, Reason: reasonDeniedCapability}, nil
	}
	return Decision{Allowed: true, Reason: reasonCapability}, nil
}
