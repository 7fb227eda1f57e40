package rbac

import "strings"

// Operation names a role-gated action.
type Operation string

// Finance record operations.
const (
	OpFinanceView    Operation = "finance.view"
	OpFinanceViewAll Operation = "finance.view_all"
	OpFinanceEdit    Operation = "finance.edit"
	OpFinanceDelete  Operation = "finance.delete"
	OpFinanceRestore Operation = "finance.restore"
	OpFinancePurge   Operation = "finance.purge"
)

// Well-known role names seen in the user directory. The sets that grant
// restore, purge and view-all are configured, not derived from these.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	RoleManagement = "management"
	RoleHR         = "hr"
	RoleManager    = "site_manager"
)

// RoleSet is a normalised set of role names.
type RoleSet map[string]struct{}

// NewRoleSet builds a set from role names, ignoring blanks and case.
func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		r = normalizeRole(r)
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s RoleSet) Has(role string) bool {
	_, ok := s[normalizeRole(role)]
	return ok
}

func normalizeRole(role string) string {
	return strings.TrimSpace(strings.ToLower(role))
}
