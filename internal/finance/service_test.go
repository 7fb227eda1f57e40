package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

func assertDeletionGroup(t *testing.T, rec Record) {
	t.Helper()
	if rec.Deletion == nil {
		return
	}
	assert.False(t, rec.Deletion.At.IsZero(), "deleted_at set")
	assert.NotEmpty(t, rec.Deletion.By, "deleted_by set")
	assert.NotEmpty(t, rec.Deletion.ByName, "deleted_by_name set")
	assert.NotEmpty(t, rec.Deletion.Reason, "deleted_reason set")
}

func TestSaveStampsProvenanceAndTotal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)

	assert.Equal(t, "rec-a", rec.ID)
	assert.True(t, rec.TotalBilledAmount.Equal(decimal.NewFromInt(55000)))
	assert.Equal(t, mgrActor.ID, rec.CreatedBy)
	assert.Equal(t, mgrActor.Name, rec.CreatedByName)
	assert.Equal(t, mgrActor.Role, rec.CreatedByRole)
	assert.Equal(t, testNow, rec.CreatedAt)
	assert.Equal(t, "Acme Facilities", rec.CompanyName)
	assert.Equal(t, testMonth, rec.BillingMonth)
	assert.Nil(t, rec.Deletion)
	assert.Equal(t, []string{ActionSave}, f.audit.actions(rec.ID))
}

func TestSaveEditKeepsProvenance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)

	*f.now = testNow.Add(2 * time.Hour)
	edit := sampleInput()
	edit.ID = rec.ID
	edit.BilledManagementFee = "7500.5"
	updated, err := f.svc.Save(ctx, adminActor, edit)
	require.NoError(t, err)

	assert.Equal(t, mgrActor.ID, updated.CreatedBy)
	assert.Equal(t, testNow, updated.CreatedAt)
	assert.True(t, updated.TotalBilledAmount.Equal(decimal.RequireFromString("57500.50")))
}

func TestSaveValidation(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*RecordInput)
		field string
	}{
		{name: "negative amount", edit: func(in *RecordInput) { in.ContractAmount = "-1" }, field: "contract_amount"},
		{name: "non numeric", edit: func(in *RecordInput) { in.BilledAmount = "lots" }, field: "billed_amount"},
		{name: "missing site id and name", edit: func(in *RecordInput) { in.SiteID = ""; in.SiteName = "" }, field: "site_id"},
		{name: "missing site name", edit: func(in *RecordInput) { in.SiteName = "" }, field: "site_name"},
		{name: "unknown site", edit: func(in *RecordInput) { in.SiteID = "site-9" }, field: "site_id"},
		{name: "mismatched name", edit: func(in *RecordInput) { in.SiteName = "Harbour View" }, field: "site_name"},
		{name: "bad month", edit: func(in *RecordInput) { in.BillingMonth = "March" }, field: "billing_month"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			in := sampleInput()
			tc.edit(&in)
			_, err := f.svc.Save(context.Background(), mgrActor, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrValidation)
			assert.False(t, Retryable(err))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestSaveBlankAmountsAreZero(t *testing.T) {
	f := newFixture()
	in := sampleInput()
	in.BilledAmount = ""
	in.BilledManagementFee = ""
	rec, err := f.svc.Save(context.Background(), mgrActor, in)
	require.NoError(t, err)
	assert.True(t, rec.TotalBilledAmount.IsZero())
}

func TestSaveRequiresActor(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Save(context.Background(), shared.Actor{}, sampleInput())
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestDeleteThenList(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rec, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)
	require.True(t, NetVariation(rec).Equal(decimal.NewFromInt(11000)))
	assert.Equal(t, LabelProfit, VariationLabel(NetVariation(rec)))

	require.NoError(t, f.svc.SoftDelete(ctx, mgrActor, rec.ID, "duplicate entry"))

	active, err := f.svc.ListActive(ctx, mgrActor, testMonth)
	require.NoError(t, err)
	assert.Empty(t, active)

	deleted, err := f.svc.ListDeleted(ctx, mgrActor)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	got := deleted[0]
	assert.Equal(t, rec.ID, got.ID)
	require.NotNil(t, got.Deletion)
	assert.Equal(t, "duplicate entry", got.Deletion.Reason)
	assert.Equal(t, mgrActor.ID, got.Deletion.By)
	assert.True(t, NetVariation(got).Equal(decimal.NewFromInt(11000)))
	assertDeletionGroup(t, got)

	view := f.svc.View(got, mgrActor.Role, testNow)
	assert.Equal(t, 7, view.DaysRemaining)
	assert.Equal(t, LabelProfit, view.VariationLabel)
	assert.False(t, view.CanRestore)
	assert.False(t, view.CanPurge)
}

func TestSoftDeleteErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rec, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)

	err = f.svc.SoftDelete(ctx, mgrActor, rec.ID, "   ")
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = f.svc.SoftDelete(ctx, mgrActor, "missing", "typo")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = f.svc.SoftDelete(ctx, otherMgr, rec.ID, "not mine")
	assert.ErrorIs(t, err, shared.ErrNotFound, "other managers cannot see the record")

	require.NoError(t, f.svc.SoftDelete(ctx, mgrActor, rec.ID, "typo"))
	err = f.svc.SoftDelete(ctx, mgrActor, rec.ID, "again")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, StateActive, nf.State)
}

func TestRestoreRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	before, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)

	*f.now = testNow.Add(3 * 24 * time.Hour)
	require.NoError(t, f.svc.SoftDelete(ctx, mgrActor, before.ID, "wrong month"))
	require.NoError(t, f.svc.Restore(ctx, adminActor, before.ID))

	after, err := f.svc.Get(ctx, adminActor, before.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{ActionSave, ActionSoftDelete, ActionRestore}, f.audit.actions(before.ID))
}

func TestRestoreActiveRecordIsNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rec, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)

	err = f.svc.Restore(ctx, adminActor, rec.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, StateDeleted, nf.State)
}

func TestRestoreAndPurgeAreRoleGated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.put(deletedRecord("old", 2*day))

	assert.ErrorIs(t, f.svc.Restore(ctx, mgrActor, "old"), shared.ErrForbidden)
	assert.ErrorIs(t, f.svc.Purge(ctx, mgrActor, "old"), shared.ErrForbidden)
	// hr sees everything but is outside the configured admin set.
	assert.ErrorIs(t, f.svc.Purge(ctx, hrActor, "old"), shared.ErrForbidden)
	assert.True(t, f.repo.has("old"))

	require.NoError(t, f.svc.Purge(ctx, adminActor, "old"))
	assert.False(t, f.repo.has("old"))
	assert.Equal(t, 1, f.metrics[TriggerManual])

	assert.ErrorIs(t, f.svc.Purge(ctx, adminActor, "old"), shared.ErrNotFound)
}

func TestPurgeActiveRecordIsAllowed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rec, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)
	require.NoError(t, f.svc.Purge(ctx, adminActor, rec.ID))
	assert.False(t, f.repo.has(rec.ID))
}

func TestListScoping(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)
	_, err = f.svc.Save(ctx, otherMgr, sampleInput())
	require.NoError(t, err)

	mine, err := f.svc.ListActive(ctx, mgrActor, testMonth)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.svc.ListActive(ctx, hrActor, testMonth)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	other, err := f.svc.ListActive(ctx, hrActor, testMonth.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestBulkSavePartialFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rows := []RecordInput{sampleInput(), sampleInput(), sampleInput()}
	rows[1].ContractAmount = "-500"
	rows[2].SiteID = "site-2"
	rows[2].SiteName = "Harbour View"

	res, err := f.svc.BulkSave(ctx, mgrActor, rows)
	require.NoError(t, err)
	require.Len(t, res.Items, 3)

	assert.True(t, res.Items[0].OK)
	assert.False(t, res.Items[1].OK)
	assert.True(t, res.Items[2].OK)
	assert.ErrorIs(t, res.Items[1].Error, shared.ErrValidation)
	var verr *ValidationError
	require.True(t, errors.As(res.Items[1].Error, &verr))
	assert.Equal(t, 2, verr.Row)
	assert.Equal(t, "contract_amount", verr.Field)
	assert.Equal(t, "2 of 3 records saved; 1 failed", res.Summary("saved"))

	active, err := f.svc.ListActive(ctx, mgrActor, testMonth)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestBulkSaveRollsBackOnStoreRejection(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rows := []RecordInput{sampleInput(), sampleInput(), sampleInput()}
	rows[0].ID = "r1"
	rows[1].ID = "r2"
	rows[2].ID = "r3"
	f.repo.upsertErr["r2"] = &StoreUnavailableError{Op: "bulk save", Err: errors.New("connection reset")}

	res, err := f.svc.BulkSave(ctx, mgrActor, rows)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Succeeded())
	assert.ErrorIs(t, res.Items[0].Error, ErrBatchAborted)
	assert.True(t, Retryable(res.Items[1].Error))
	assert.ErrorIs(t, res.Items[2].Error, ErrBatchAborted)
	assert.True(t, res.Retryable())
	assert.False(t, f.repo.has("r1"))
	assert.False(t, f.repo.has("r3"))
}

func TestBulkSaveRejectsDuplicateIDs(t *testing.T) {
	f := newFixture()
	rows := []RecordInput{sampleInput(), sampleInput()}
	rows[0].ID = "dup"
	rows[1].ID = "dup"

	res, err := f.svc.BulkSave(context.Background(), mgrActor, rows)
	require.NoError(t, err)
	assert.True(t, res.Items[0].OK)
	assert.ErrorIs(t, res.Items[1].Error, shared.ErrValidation)
}

func TestBulkSoftDeleteReportsPerItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)
	b, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)

	res, err := f.svc.BulkSoftDelete(ctx, mgrActor, []string{a.ID, "ghost", b.ID}, "closed site")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded())
	assert.ErrorIs(t, res.Items[1].Error, shared.ErrNotFound)
	assert.Equal(t, "ghost", res.Items[1].ID)
	assert.False(t, res.OK())
	assert.Equal(t, "2 of 3 records deleted; 1 failed", res.Summary("deleted"))

	_, err = f.svc.BulkSoftDelete(ctx, mgrActor, []string{a.ID}, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestBulkRestoreAndPurge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.put(deletedRecord("d1", day))
	f.repo.put(deletedRecord("d2", day))

	res, err := f.svc.BulkRestore(ctx, adminActor, []string{"d1", "d1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded())
	assert.ErrorIs(t, res.Items[1].Error, shared.ErrNotFound)

	res, err = f.svc.BulkPurge(ctx, adminActor, []string{"d2", "nope"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d2"}, res.SucceededIDs())
	assert.Equal(t, "1 of 2 records purged; 1 failed", res.Summary("purged"))

	_, err = f.svc.BulkPurge(ctx, mgrActor, []string{"d1"})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture()
	f.audit.err = errors.New("audit down")
	_, err := f.svc.Save(context.Background(), mgrActor, sampleInput())
	require.NoError(t, err)
}

func TestHistory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rec, err := f.svc.Save(ctx, mgrActor, sampleInput())
	require.NoError(t, err)
	require.NoError(t, f.svc.SoftDelete(ctx, mgrActor, rec.ID, "typo"))

	logs, err := f.svc.History(ctx, mgrActor, rec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "typo", logs[1].Meta["reason"])

	_, err = f.svc.History(ctx, otherMgr, rec.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, f.svc.Purge(ctx, adminActor, rec.ID))
	logs, err = f.svc.History(ctx, adminActor, rec.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestDraftUsesInvoiceDefaults(t *testing.T) {
	f := newFixture()
	in, err := f.svc.Draft(context.Background(), "site-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, "Tech Park", in.SiteName)
	assert.Equal(t, "2025-03", in.BillingMonth)
	assert.Equal(t, RawAmount("40000.00"), in.ContractAmount)

	_, err = f.svc.Draft(context.Background(), "site-9", testNow)
	assert.ErrorIs(t, err, shared.ErrValidation)

	f.sites.err = errors.New("directory offline")
	_, err = f.svc.Draft(context.Background(), "site-1", testNow)
	assert.True(t, Retryable(err))
}
