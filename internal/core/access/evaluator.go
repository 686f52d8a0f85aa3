// Package access decides whether an actor may perform an action. Every
// function here is pure: no store access, no ledger writes.
package access

import (
	"errors"

	"github.com/kirillkom/tradedoc-ledger/internal/core/domain"
)

type Action string

const (
	ActionRead     Action = "read"
	ActionRegister Action = "register"
	ActionDelete   Action = "delete"
	ActionShare    Action = "share"

	ActionRunIntegrityCheck   Action = "run-integrity-check"
	ActionViewIntegrityChecks Action = "view-integrity-checks"
	ActionViewAlerts          Action = "view-alerts"
	ActionAcknowledgeAlert    Action = "acknowledge-alert"
)

type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

func (d Decision) Allowed() bool { return bool(d) }

func isWrite(action Action) bool {
	switch action {
	case ActionRegister, ActionDelete, ActionShare:
		return true
	default:
		return false
	}
}

// Authorize evaluates a document-scoped action.
func Authorize(actor domain.Actor, doc domain.Document, action Action) Decision {
	if actor.ID == "" {
		return Deny
	}
	switch {
	case action == ActionRead:
		if actor.Role == domain.RoleAuditor {
			return Allow
		}
		return Decision(sameOrganization(actor, doc))
	case isWrite(action):
		if !sameOrganization(actor, doc) {
			return Deny
		}
		return Decision(actor.ID == doc.OwnerID || actor.Role == domain.RoleAdmin)
	default:
		return Deny
	}
}

func sameOrganization(actor domain.Actor, doc domain.Document) bool {
	return actor.Organization != "" && actor.Organization == doc.Organization
}

// AuthorizeRole evaluates actions that are not tied to a single document.
func AuthorizeRole(actor domain.Actor, action Action) Decision {
	if actor.ID == "" {
		return Deny
	}
	switch action {
	case ActionRunIntegrityCheck:
		return Decision(actor.Role == domain.RoleAdmin)
	case ActionViewIntegrityChecks, ActionViewAlerts, ActionAcknowledgeAlert:
		return Decision(actor.Role == domain.RoleAdmin || actor.Role == domain.RoleAuditor)
	default:
		return Deny
	}
}

// ScopeFor returns the organization filter applied to an actor's reads.
func ScopeFor(actor domain.Actor) string {
	if actor.Role == domain.RoleAuditor || actor.Organization == domain.AllOrganizations {
		return domain.AllOrganizations
	}
	return actor.Organization
}

// RequireRole converts a role decision into an ErrForbidden error.
func RequireRole(actor domain.Actor, action Action) error {
	if AuthorizeRole(actor, action).Allowed() {
		return nil
	}
	return domain.WrapError(domain.ErrForbidden, string(action), errors.New("role not permitted"))
}
