package finance

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/sudandp/paradigm-ifs-sub000/internal/rbac"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
	"github.com/sudandp/paradigm-ifs-sub000/internal/sites"
)

// AuditEntity names finance records in audit_logs.
const AuditEntity = "finance_record"

// Audit actions.
const (
	ActionSave       = "finance.save"
	ActionSoftDelete = "finance.soft_delete"
	ActionRestore    = "finance.restore"
	ActionPurge      = "finance.purge"
)

// SiteDirectory resolves and describes billable sites.
type SiteDirectory interface {
	Lookup(ctx context.Context, siteID string) (sites.Organization, error)
	FindByName(ctx context.Context, name string) (sites.Organization, error)
	InvoiceDefaults(ctx context.Context, siteID string) (sites.InvoiceDefaults, error)
}

// Authorizer decides whether a role may perform an operation.
type Authorizer interface {
	Allowed(callerRole string, op rbac.Operation) bool
}

// AuditRecorder persists and lists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
	List(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error)
}

// PurgeCounter observes purged records by trigger.
type PurgeCounter interface {
	AddPurged(trigger string, count int)
}

// ServiceConfig tunes the service. Zero values pick defaults.
type ServiceConfig struct {
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   PurgeCounter
	Clock     func() time.Time
	NewID     func() string
	// SweepBatch bounds how many expired rows one scheduled pass reads at a time.
	SweepBatch int
}

// Service implements the finance record lifecycle.
type Service struct {
	repo       Repository
	sites      SiteDirectory
	policy     Authorizer
	audit      AuditRecorder
	lifecycle  Lifecycle
	logger     *slog.Logger
	metrics    PurgeCounter
	clock      func() time.Time
	newID      func() string
	sweepBatch int
	validate   *validator.Validate
	sweeps     singleflight.Group
}

// NewService constructs the finance service. sites and audit may be nil.
func NewService(repo Repository, directory SiteDirectory, policy Authorizer, audit AuditRecorder, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	batch := cfg.SweepBatch
	if batch <= 0 {
		batch = 500
	}
	return &Service{
		repo:       repo,
		sites:      directory,
		policy:     policy,
		audit:      audit,
		lifecycle:  NewLifecycle(cfg.Retention),
		logger:     logger.With(slog.String("component", "finance")),
		metrics:    cfg.Metrics,
		clock:      clock,
		newID:      newID,
		sweepBatch: batch,
		validate:   newValidator(),
	}
}

// Lifecycle exposes the retention rules in use.
func (s *Service) Lifecycle() Lifecycle {
	return s.lifecycle
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.clock()
}

// CanRestore reports whether callerRole may restore deleted records.
func (s *Service) CanRestore(callerRole string) bool {
	return s.policy != nil && s.policy.Allowed(callerRole, rbac.OpFinanceRestore)
}

// CanPurge reports whether callerRole may permanently delete records.
func (s *Service) CanPurge(callerRole string) bool {
	return s.policy != nil && s.policy.Allowed(callerRole, rbac.OpFinancePurge)
}

// ScopeFor returns the row scope of actor: everything for view-all roles,
// otherwise only the records the actor created.
func (s *Service) ScopeFor(actor shared.Actor) Scope {
	if s.policy != nil && s.policy.Allowed(actor.Role, rbac.OpFinanceViewAll) {
		return Scope{}
	}
	return Scope{OwnerID: actor.ID}
}

func (s *Service) authorize(actor shared.Actor, op rbac.Operation) error {
	if !actor.Valid() {
		return shared.ErrUnauthorized
	}
	if s.policy == nil || !s.policy.Allowed(actor.Role, op) {
		return shared.ErrForbidden
	}
	return nil
}

// ListActive returns the active records of a billing month visible to actor.
func (s *Service) ListActive(ctx context.Context, actor shared.Actor, month time.Time) ([]Record, error) {
	if err := s.authorize(actor, rbac.OpFinanceView); err != nil {
		return nil, err
	}
	return s.repo.ListActive(ctx, MonthStart(month), s.ScopeFor(actor))
}

// ListDeleted returns the deletion log visible to actor. Expired rows found
// in it are purged first; a failed purge never fails the listing.
func (s *Service) ListDeleted(ctx context.Context, actor shared.Actor) ([]Record, error) {
	if err := s.authorize(actor, rbac.OpFinanceView); err != nil {
		return nil, err
	}
	scope := s.ScopeFor(actor)
	recs, err := s.repo.ListDeleted(ctx, scope)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	expired := s.expiredOf(recs, now)
	if len(expired) == 0 {
		return recs, nil
	}

	v, _, _ := s.sweeps.Do("list:"+scope.OwnerID, func() (any, error) {
		return s.purgeExpired(ctx, expired, now, TriggerList), nil
	})
	swept, _ := v.(SweepResult)

	fresh, err := s.repo.ListDeleted(ctx, scope)
	if err != nil {
		s.logger.Warn("re-read deletion log after sweep", slog.Any("error", err))
		return withoutIDs(recs, swept.PurgedIDs), nil
	}
	return fresh, nil
}

// Get returns one record in any state, within the actor's scope.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id string) (Record, error) {
	if err := s.authorize(actor, rbac.OpFinanceView); err != nil {
		return Record{}, err
	}
	rec, err := s.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Record{}, err
	}
	scope := s.ScopeFor(actor)
	if !scope.Unrestricted() && rec.CreatedBy != scope.OwnerID {
		return Record{}, &NotFoundError{RecordID: id}
	}
	return rec, nil
}

// Draft pre-fills a new record for a site from its invoice defaults.
func (s *Service) Draft(ctx context.Context, siteID string, month time.Time) (RecordInput, error) {
	if s.sites == nil {
		return RecordInput{SiteID: siteID, BillingMonth: MonthStart(month).Format("2006-01")}, nil
	}
	org, err := s.sites.Lookup(ctx, siteID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return RecordInput{}, &ValidationError{Field: "site_id", Reason: "unknown site"}
	case err != nil:
		return RecordInput{}, &StoreUnavailableError{Op: "lookup site", Err: err}
	}
	defaults, err := s.sites.InvoiceDefaults(ctx, org.ID)
	if err != nil {
		return RecordInput{}, &StoreUnavailableError{Op: "invoice defaults", Err: err}
	}
	return RecordInput{
		SiteID:                org.ID,
		SiteName:              org.ShortName,
		CompanyName:           org.CompanyName,
		BillingMonth:          MonthStart(month).Format("2006-01"),
		ContractAmount:        Amount(defaults.ContractAmount),
		ContractManagementFee: Amount(defaults.ContractManagementFee),
	}, nil
}

// Save validates and upserts one record. New records are stamped with the
// actor's provenance; edits never touch provenance.
func (s *Service) Save(ctx context.Context, actor shared.Actor, in RecordInput) (Record, error) {
	if err := s.authorize(actor, rbac.OpFinanceEdit); err != nil {
		return Record{}, err
	}
	rec, err := s.normalize(ctx, in)
	if err != nil {
		return Record{}, err
	}
	s.stamp(&rec, actor)

	saved, created, err := s.repo.Upsert(ctx, rec, s.ScopeFor(actor))
	if err != nil {
		return Record{}, err
	}
	s.recordAudit(ctx, actor, ActionSave, saved.ID, map[string]any{
		"created":       created,
		"billing_month": saved.BillingMonth.Format("2006-01"),
	})
	return saved, nil
}

// BulkSave validates every row and writes the valid ones in one transaction.
// Invalid rows are reported and never block the valid ones; if the store
// rejects the transaction no row is written.
func (s *Service) BulkSave(ctx context.Context, actor shared.Actor, inputs []RecordInput) (BulkResult, error) {
	if err := s.authorize(actor, rbac.OpFinanceEdit); err != nil {
		return BulkResult{}, err
	}

	type pending struct {
		row int
		rec Record
	}
	var (
		valid  []pending
		failed = make(map[int]error)
		seen   = make(map[string]int)
	)
	for i, in := range inputs {
		row := i + 1
		rec, err := s.normalize(ctx, in)
		if err != nil {
			failed[row] = withRow(err, row)
			continue
		}
		s.stamp(&rec, actor)
		if prev, dup := seen[rec.ID]; dup {
			failed[row] = &ValidationError{RecordID: rec.ID, Row: row, Field: "id", Reason: "duplicates row " + strconv.Itoa(prev)}
			continue
		}
		seen[rec.ID] = row
		valid = append(valid, pending{row: row, rec: rec})
	}

	ids := make(map[int]string, len(inputs))
	for _, p := range valid {
		ids[p.row] = p.rec.ID
	}

	if len(valid) > 0 {
		recs := make([]Record, len(valid))
		for i, p := range valid {
			recs[i] = p.rec
		}
		if _, err := s.repo.UpsertMany(ctx, recs, s.ScopeFor(actor)); err != nil {
			var batchErr *BatchError
			if errors.As(err, &batchErr) && batchErr.Index >= 0 && batchErr.Index < len(valid) {
				culprit := valid[batchErr.Index].row
				for _, p := range valid {
					if p.row == culprit {
						failed[p.row] = withRow(batchErr.Err, p.row)
					} else {
						failed[p.row] = ErrBatchAborted
					}
				}
			} else {
				for _, p := range valid {
					failed[p.row] = err
				}
			}
		}
	}

	var result BulkResult
	for i := range inputs {
		row := i + 1
		if err, bad := failed[row]; bad {
			result.fail(row, ids[row], err)
			continue
		}
		result.succeed(row, ids[row])
	}
	if saved := result.SucceededIDs(); len(saved) > 0 {
		for _, id := range saved {
			s.recordAudit(ctx, actor, ActionSave, id, map[string]any{"bulk": true})
		}
	}
	s.logger.Info("bulk save",
		slog.String("actor", actor.ID),
		slog.Int("rows", len(inputs)),
		slog.Int("saved", result.Succeeded()),
		slog.Int("failed", result.Failed()),
	)
	return result, nil
}

// SoftDelete moves an active record into the deletion log.
func (s *Service) SoftDelete(ctx context.Context, actor shared.Actor, id, reason string) error {
	if err := s.authorize(actor, rbac.OpFinanceDelete); err != nil {
		return err
	}
	return s.softDelete(ctx, actor, strings.TrimSpace(id), reason)
}

func (s *Service) softDelete(ctx context.Context, actor shared.Actor, id, reason string) error {
	reason = strings.TrimSpace(reason)
	if id == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if reason == "" {
		return &ValidationError{RecordID: id, Field: "reason", Reason: "is required"}
	}
	del := Deletion{At: s.clock(), By: actor.ID, ByName: actorName(actor), Reason: reason}
	rec, err := s.repo.SoftDelete(ctx, id, del, s.ScopeFor(actor))
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, ActionSoftDelete, id, map[string]any{
		"reason":        reason,
		"net_variation": NetVariation(rec).StringFixed(2),
	})
	return nil
}

// BulkSoftDelete soft-deletes each id independently.
func (s *Service) BulkSoftDelete(ctx context.Context, actor shared.Actor, ids []string, reason string) (BulkResult, error) {
	if err := s.authorize(actor, rbac.OpFinanceDelete); err != nil {
		return BulkResult{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return BulkResult{}, &ValidationError{Field: "reason", Reason: "is required"}
	}
	return s.each(ids, func(id string) error {
		return s.softDelete(ctx, actor, id, reason)
	}), nil
}

// Restore returns a deleted record to the active list.
func (s *Service) Restore(ctx context.Context, actor shared.Actor, id string) error {
	if err := s.authorize(actor, rbac.OpFinanceRestore); err != nil {
		return err
	}
	return s.restore(ctx, actor, strings.TrimSpace(id))
}

func (s *Service) restore(ctx context.Context, actor shared.Actor, id string) error {
	if id == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if _, err := s.repo.Restore(ctx, id, s.ScopeFor(actor)); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, ActionRestore, id, nil)
	return nil
}

// BulkRestore restores each id independently.
func (s *Service) BulkRestore(ctx context.Context, actor shared.Actor, ids []string) (BulkResult, error) {
	if err := s.authorize(actor, rbac.OpFinanceRestore); err != nil {
		return BulkResult{}, err
	}
	return s.each(ids, func(id string) error {
		return s.restore(ctx, actor, id)
	}), nil
}

// Purge permanently removes a record in any state.
func (s *Service) Purge(ctx context.Context, actor shared.Actor, id string) error {
	if err := s.authorize(actor, rbac.OpFinancePurge); err != nil {
		return err
	}
	return s.purge(ctx, actor, strings.TrimSpace(id))
}

func (s *Service) purge(ctx context.Context, actor shared.Actor, id string) error {
	if id == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if err := s.repo.Purge(ctx, id); err != nil {
		return err
	}
	s.countPurged(TriggerManual, 1)
	s.recordAudit(ctx, actor, ActionPurge, id, map[string]any{"trigger": TriggerManual})
	return nil
}

// BulkPurge permanently removes each id independently.
func (s *Service) BulkPurge(ctx context.Context, actor shared.Actor, ids []string) (BulkResult, error) {
	if err := s.authorize(actor, rbac.OpFinancePurge); err != nil {
		return BulkResult{}, err
	}
	return s.each(ids, func(id string) error {
		return s.purge(ctx, actor, id)
	}), nil
}

// History lists the audit trail of a record visible to actor. Purged records
// keep their trail, so only the actor's scope is checked when the record is
// still present.
func (s *Service) History(ctx context.Context, actor shared.Actor, id string) ([]shared.AuditLog, error) {
	if err := s.authorize(actor, rbac.OpFinanceView); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if _, err := s.Get(ctx, actor, id); err != nil {
		if !errors.Is(err, shared.ErrNotFound) || !s.ScopeFor(actor).Unrestricted() {
			return nil, err
		}
	}
	if s.audit == nil {
		return nil, nil
	}
	logs, err := s.audit.List(ctx, AuditEntity, id)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "audit history", Err: err}
	}
	return logs, nil
}

func (s *Service) each(ids []string, fn func(id string) error) BulkResult {
	var result BulkResult
	for i, raw := range ids {
		id := strings.TrimSpace(raw)
		if err := fn(id); err != nil {
			result.fail(i+1, id, err)
			continue
		}
		result.succeed(i+1, id)
	}
	return result
}

func (s *Service) stamp(rec *Record, actor shared.Actor) {
	now := s.clock()
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	rec.CreatedBy = actor.ID
	rec.CreatedByName = actorName(actor)
	rec.CreatedByRole = actor.Role
	rec.CreatedAt = now
	rec.UpdatedAt = now
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:   actor.ID,
		ActorName: actorName(actor),
		Action:    action,
		Entity:    AuditEntity,
		EntityID:  id,
		Meta:      meta,
		At:        s.clock(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.String("record", id), slog.Any("error", err))
	}
}

func (s *Service) countPurged(trigger string, n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.AddPurged(trigger, n)
	}
}

func actorName(actor shared.Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	return actor.ID
}

func withoutIDs(recs []Record, ids []string) []Record {
	if len(ids) == 0 {
		return recs
	}
	return lo.Reject(recs, func(rec Record, _ int) bool {
		return lo.Contains(ids, rec.ID)
	})
}
