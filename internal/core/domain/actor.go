package domain

import "strings"

type Role string

const (
	RoleBank      Role = "bank"
	RoleCorporate Role = "corporate"
	RoleAuditor   Role = "auditor"
	RoleAdmin     Role = "admin"
)

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleBank, RoleCorporate, RoleAuditor, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// Actor is the authenticated caller as described by the identity provider.
// It is trusted as-is; credentials are never re-validated here.
type Actor struct {
	ID           string `json:"id"`
	Role         Role   `json:"role"`
	Organization string `json:"organization"`
}

// SystemActor performs scheduled sweeps and worker-triggered checks.
var SystemActor = Actor{ID: "SYSTEM", Role: RoleAdmin, Organization: AllOrganizations}

// Origin describes where a request came from. Both fields are optional.
type Origin struct {
	Address   string
	UserAgent string
}
