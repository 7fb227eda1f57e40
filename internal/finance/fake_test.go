package finance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sudandp/paradigm-ifs-sub000/internal/rbac"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
	"github.com/sudandp/paradigm-ifs-sub000/internal/sites"
)

// memRepo is an in-memory Repository with the same compare-and-set rules as
// the Postgres implementation.
type memRepo struct {
	mu      sync.Mutex
	records map[string]Record

	purgeErr    map[string]error
	upsertErr   map[string]error
	listErr     error
	listCalls   int
	purgeCalls  int
	failListAt  int
	failedLists int
}

func newMemRepo() *memRepo {
	return &memRepo{
		records:   make(map[string]Record),
		purgeErr:  make(map[string]error),
		upsertErr: make(map[string]error),
	}
}

func (m *memRepo) put(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Recompute()
	m.records[rec.ID] = rec
}

func (m *memRepo) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[id]
	return ok
}

func inScope(rec Record, scope Scope) bool {
	return scope.Unrestricted() || rec.CreatedBy == scope.OwnerID
}

func (m *memRepo) list(match func(Record) bool) []Record {
	var out []Record
	for _, rec := range m.records {
		if match(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memRepo) ListActive(_ context.Context, month time.Time, scope Scope) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.list(func(r Record) bool {
		return r.Deletion == nil && r.BillingMonth.Equal(MonthStart(month)) && inScope(r, scope)
	}), nil
}

func (m *memRepo) ListDeleted(_ context.Context, scope Scope) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.failListAt > 0 && m.listCalls == m.failListAt {
		m.failedLists++
		return nil, &StoreUnavailableError{Op: "list deleted", Err: errors.New("timeout")}
	}
	return m.list(func(r Record) bool { return r.Deletion != nil && inScope(r, scope) }), nil
}

func (m *memRepo) ListExpired(_ context.Context, cutoff time.Time, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := m.list(func(r Record) bool { return r.Deletion != nil && !r.Deletion.At.After(cutoff) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) Get(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, &NotFoundError{RecordID: id}
	}
	return rec, nil
}

func (m *memRepo) upsertLocked(rec Record, scope Scope) (Record, bool, error) {
	if err := m.upsertErr[rec.ID]; err != nil {
		return Record{}, false, err
	}
	rec.Recompute()
	existing, ok := m.records[rec.ID]
	if !ok {
		m.records[rec.ID] = rec
		return rec, true, nil
	}
	if existing.Deletion != nil || !inScope(existing, scope) {
		return Record{}, false, &NotFoundError{RecordID: rec.ID, State: StateActive}
	}
	rec.CreatedBy = existing.CreatedBy
	rec.CreatedByName = existing.CreatedByName
	rec.CreatedByRole = existing.CreatedByRole
	rec.CreatedAt = existing.CreatedAt
	m.records[rec.ID] = rec
	return rec, false, nil
}

func (m *memRepo) Upsert(_ context.Context, rec Record, scope Scope) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(rec, scope)
}

func (m *memRepo) UpsertMany(_ context.Context, recs []Record, scope Scope) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]Record, len(m.records))
	for k, v := range m.records {
		snapshot[k] = v
	}
	saved := make([]Record, 0, len(recs))
	for i, rec := range recs {
		out, _, err := m.upsertLocked(rec, scope)
		if err != nil {
			m.records = snapshot
			return nil, &BatchError{Index: i, Err: err}
		}
		saved = append(saved, out)
	}
	return saved, nil
}

func (m *memRepo) SoftDelete(_ context.Context, id string, del Deletion, scope Scope) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Deletion != nil || !inScope(rec, scope) {
		return Record{}, &NotFoundError{RecordID: id, State: StateActive}
	}
	d := del
	rec.Deletion = &d
	m.records[id] = rec
	return rec, nil
}

func (m *memRepo) Restore(_ context.Context, id string, scope Scope) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Deletion == nil || !inScope(rec, scope) {
		return Record{}, &NotFoundError{RecordID: id, State: StateDeleted}
	}
	rec.Deletion = nil
	m.records[id] = rec
	return rec, nil
}

func (m *memRepo) Purge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeCalls++
	if err := m.purgeErr[id]; err != nil {
		return err
	}
	if _, ok := m.records[id]; !ok {
		return &NotFoundError{RecordID: id}
	}
	delete(m.records, id)
	return nil
}

func (m *memRepo) PurgeExpired(_ context.Context, id string, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeCalls++
	if err := m.purgeErr[id]; err != nil {
		return err
	}
	rec, ok := m.records[id]
	if !ok || rec.Deletion == nil || rec.Deletion.At.After(cutoff) {
		return &NotFoundError{RecordID: id, State: StateDeleted}
	}
	delete(m.records, id)
	return nil
}

var _ Repository = (*memRepo)(nil)

type fakeSites struct {
	orgs     []sites.Organization
	defaults map[string]sites.InvoiceDefaults
	err      error
}

func newFakeSites() *fakeSites {
	return &fakeSites{
		orgs: []sites.Organization{
			{ID: "site-1", ShortName: "Tech Park", FullName: "Tech Park Phase II", CompanyName: "Acme Facilities", Active: true},
			{ID: "site-2", ShortName: "Harbour View", CompanyName: "Blue Harbour", Active: true},
			{ID: "site-3", ShortName: "Lake Side", CompanyName: "Lakeside Estates", Active: true},
		},
		defaults: map[string]sites.InvoiceDefaults{
			"site-1": {SiteID: "site-1", ContractAmount: decimal.NewFromInt(40000), ContractManagementFee: decimal.NewFromInt(4000)},
		},
	}
}

func (f *fakeSites) Lookup(_ context.Context, siteID string) (sites.Organization, error) {
	if f.err != nil {
		return sites.Organization{}, f.err
	}
	for _, org := range f.orgs {
		if org.ID == siteID {
			return org, nil
		}
	}
	return sites.Organization{}, shared.ErrNotFound
}

func (f *fakeSites) FindByName(_ context.Context, name string) (sites.Organization, error) {
	if f.err != nil {
		return sites.Organization{}, f.err
	}
	for _, org := range f.orgs {
		if org.Matches(name) {
			return org, nil
		}
	}
	return sites.Organization{}, shared.ErrNotFound
}

func (f *fakeSites) InvoiceDefaults(_ context.Context, siteID string) (sites.InvoiceDefaults, error) {
	if d, ok := f.defaults[siteID]; ok {
		return d, nil
	}
	return sites.InvoiceDefaults{SiteID: siteID}, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
	err     error
}

func (a *memAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, log)
	return nil
}

func (a *memAudit) List(_ context.Context, entity, entityID string) ([]shared.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []shared.AuditLog
	for _, e := range a.entries {
		if e.Entity == entity && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *memAudit) actions(id string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		if e.EntityID == id {
			out = append(out, e.Action)
		}
	}
	return out
}

type purgeCounts map[string]int

func (p purgeCounts) AddPurged(trigger string, n int) { p[trigger] += n }

var (
	testNow    = time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
	testMonth  = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	adminActor = shared.Actor{ID: "u-admin", Name: "Asha Admin", Role: rbac.RoleAdmin}
	hrActor    = shared.Actor{ID: "u-hr", Name: "Hari HR", Role: rbac.RoleHR}
	mgrActor   = shared.Actor{ID: "u-mgr", Name: "Meera Manager", Role: rbac.RoleManager}
	otherMgr   = shared.Actor{ID: "u-mgr-2", Name: "Mohan Manager", Role: rbac.RoleManager}
)

type fixture struct {
	svc     *Service
	repo    *memRepo
	sites   *fakeSites
	audit   *memAudit
	metrics purgeCounts
	now     *time.Time
}

func newFixture() *fixture {
	now := testNow
	f := &fixture{
		repo:    newMemRepo(),
		sites:   newFakeSites(),
		audit:   &memAudit{},
		metrics: purgeCounts{},
		now:     &now,
	}
	policy := rbac.NewPolicy(rbac.PolicyConfig{
		AdminRoles:   []string{rbac.RoleAdmin},
		ViewAllRoles: []string{rbac.RoleAdmin, rbac.RoleSuperAdmin, rbac.RoleManagement, rbac.RoleHR},
	})
	seq := 0
	f.svc = NewService(f.repo, f.sites, policy, f.audit, ServiceConfig{
		Metrics: f.metrics,
		Clock:   func() time.Time { return *f.now },
		NewID: func() string {
			seq++
			return "rec-" + string(rune('a'+seq-1))
		},
	})
	return f
}

func sampleInput() RecordInput {
	return RecordInput{
		SiteID:                "site-1",
		SiteName:              "Tech Park",
		BillingMonth:          "2025-03",
		ContractAmount:        "40000",
		ContractManagementFee: "4000",
		BilledAmount:          "50000",
		BilledManagementFee:   "5000",
		Status:                "billed",
	}
}

// deletedRecord builds a soft-deleted record aged age at testNow.
func deletedRecord(id string, age time.Duration) Record {
	return Record{
		ID:             id,
		SiteID:         "site-2",
		SiteName:       "Harbour View",
		BillingMonth:   testMonth,
		ContractAmount: decimal.NewFromInt(1000),
		BilledAmount:   decimal.NewFromInt(900),
		CreatedBy:      mgrActor.ID,
		CreatedAt:      testNow.Add(-30 * day),
		Deletion: &Deletion{
			At:     testNow.Add(-age),
			By:     mgrActor.ID,
			ByName: mgrActor.Name,
			Reason: "entered twice",
		},
	}
}
