package rbac

// Policy decides which roles may perform which operation.
type Policy struct {
	adminRoles   RoleSet
	viewAllRoles RoleSet
}

// PolicyConfig lists the role sets granting privileged operations.
type PolicyConfig struct {
	// AdminRoles may restore and purge deleted records.
	AdminRoles []string
	// ViewAllRoles see every record; other roles only see their own.
	ViewAllRoles []string
}

// NewPolicy builds a Policy from configuration.
func NewPolicy(cfg PolicyConfig) *Policy {
	return &Policy{
		adminRoles:   NewRoleSet(cfg.AdminRoles...),
		viewAllRoles: NewRoleSet(cfg.ViewAllRoles...),
	}
}

// Allowed reports whether callerRole may perform op.
func (p *Policy) Allowed(callerRole string, op Operation) bool {
	if p == nil || normalizeRole(callerRole) == "" {
		return false
	}
	switch op {
	case OpFinanceView, OpFinanceEdit, OpFinanceDelete:
		return true
	case OpFinanceViewAll:
		return p.viewAllRoles.Has(callerRole)
	case OpFinanceRestore, OpFinancePurge:
		return p.adminRoles.Has(callerRole)
	default:
		return false
	}
}
