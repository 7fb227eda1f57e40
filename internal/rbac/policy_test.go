package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

func TestPolicyDefaultsToExactAdminRole(t *testing.T) {
	p := NewPolicy(PolicyConfig{AdminRoles: []string{"admin"}})

	assert.True(t, p.Allowed("admin", OpFinanceRestore))
	assert.True(t, p.Allowed(" ADMIN ", OpFinancePurge))
	assert.False(t, p.Allowed("site_manager", OpFinanceRestore))
	assert.False(t, p.Allowed("", OpFinanceView))
}

// Some screens gate restore/purge on the exact "admin" role while others
// accept the wider admin tier. Neither reading is baked in: the outcome
// depends solely on the configured set, and these cases pin both readings.
func TestPolicyAdminTierDiscrepancy(t *testing.T) {
	strict := NewPolicy(PolicyConfig{AdminRoles: []string{RoleAdmin}})
	tier := NewPolicy(PolicyConfig{AdminRoles: []string{RoleAdmin, RoleSuperAdmin, RoleManagement, RoleHR}})

	for _, role := range []string{RoleSuperAdmin, RoleManagement, RoleHR} {
		assert.False(t, strict.Allowed(role, OpFinancePurge), "strict policy must deny %s", role)
		assert.True(t, tier.Allowed(role, OpFinancePurge), "tier policy must allow %s", role)
		assert.Equal(t, strict.Allowed(role, OpFinancePurge), strict.Allowed(role, OpFinanceRestore))
		assert.Equal(t, tier.Allowed(role, OpFinancePurge), tier.Allowed(role, OpFinanceRestore))
	}
}

func TestPolicyViewAllIsIndependentOfAdminSet(t *testing.T) {
	p := NewPolicy(PolicyConfig{AdminRoles: []string{RoleAdmin}, ViewAllRoles: []string{RoleAdmin, RoleHR}})

	assert.True(t, p.Allowed(RoleHR, OpFinanceViewAll))
	assert.False(t, p.Allowed(RoleHR, OpFinancePurge))
	assert.False(t, p.Allowed(RoleManager, OpFinanceViewAll))
	assert.True(t, p.Allowed(RoleManager, OpFinanceDelete))
	assert.False(t, p.Allowed(RoleManager, Operation("finance.unknown")))
}

func TestRequireAnyMiddleware(t *testing.T) {
	m := Middleware{Policy: NewPolicy(PolicyConfig{AdminRoles: []string{RoleAdmin}})}
	handler := m.RequireAny(OpFinancePurge)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		actor  *shared.Actor
		expect int
	}{
		{name: "anonymous", expect: http.StatusUnauthorized},
		{name: "manager", actor: &shared.Actor{ID: "u-2", Role: RoleManager}, expect: http.StatusForbidden},
		{name: "admin", actor: &shared.Actor{ID: "u-1", Role: RoleAdmin}, expect: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/finance/records/bulk-purge", nil)
			if tc.actor != nil {
				req = req.WithContext(withActor(req.Context(), *tc.actor))
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, tc.expect, res.Code)
		})
	}
}

func withActor(ctx context.Context, actor shared.Actor) context.Context {
	sess := &shared.Session{ID: "test"}
	sess.SetUser(actor.ID)
	sess.Set(shared.SessionKeyName, actor.Name)
	sess.Set(shared.SessionKeyRole, actor.Role)
	return shared.ContextWithSession(ctx, sess)
}
