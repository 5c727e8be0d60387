package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testTenantID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testUserID   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	periodStart  = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd    = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
)

func newDraft(t *testing.T) *reconciliation.Reconciliation {
	t.Helper()
	rec, err := reconciliation.NewReconciliation(testTenantID, testUserID, "bank", "March bank", periodStart, periodEnd, "")
	require.NoError(t, err)
	rec.PullDomainEvents()
	return rec
}

func withStatus(t *testing.T, status reconciliation.Status) *reconciliation.Reconciliation {
	t.Helper()
	rec := newDraft(t)
	rec.Status = status
	return rec
}

func pendingEntry(ref string, amount string, day int) reconciliation.ClearingEntry {
	return reconciliation.ClearingEntry{
		ID:              uuid.New(),
		TenantID:        testTenantID,
		ReferenceNumber: ref,
		EntryDate:       periodStart.AddDate(0, 0, day),
		Amount:          decimal.RequireFromString(amount),
		Status:          reconciliation.EntryStatusPending,
	}
}

func referenceRule(t *testing.T, tolerance *decimal.Decimal) reconciliation.ReconciliationRule {
	t.Helper()
	rule, err := reconciliation.NewReconciliationRule(testTenantID, testUserID, "By reference", 10,
		[]reconciliation.MatchField{reconciliation.MatchFieldReferenceNumber},
		reconciliation.Tolerance{Amount: tolerance}, true)
	require.NoError(t, err)
	return *rule
}

func expectStatistics(r *testRepos, rec *reconciliation.Reconciliation, matches int64, matched string) {
	r.matches.On("Summarize", mock.Anything, testTenantID, rec.ID).
		Return(matches, decimal.RequireFromString(matched), nil)
	r.entries.On("SummarizePending", mock.Anything, testTenantID, rec.PeriodStart, rec.PeriodEnd).
		Return(int64(0), decimal.Zero, nil)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr), "expected a domain error, got %v", err)
	assert.Equal(t, code, domainErr.Code)
}

// ==================== Lifecycle ====================

func TestService_Create(t *testing.T) {
	r := newTestRepos()
	r.recs.On("Create", mock.Anything, mock.AnythingOfType("*reconciliation.Reconciliation")).Return(nil)
	r.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	resp, err := r.service().Create(context.Background(), testTenantID, testUserID, CreateReconciliationRequest{
		Type:        "bank",
		Name:        "March bank",
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})

	require.NoError(t, err)
	assert.Equal(t, "draft", resp.Status)
	assert.Equal(t, "2026-03-01", resp.PeriodStart)
	assert.True(t, resp.MatchRate.IsZero())
	r.assertExpectations(t)
	r.publisher.AssertExpectations(t)
}

func TestService_Create_MissingName(t *testing.T) {
	r := newTestRepos()

	_, err := r.service().Create(context.Background(), testTenantID, testUserID, CreateReconciliationRequest{
		Type:        "bank",
		Name:        "  ",
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})

	assertCode(t, err, shared.CodeInvalidInput)
	r.recs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_Update_NoChangesSkipsSave(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)

	same := rec.Name
	_, err := r.service().Update(context.Background(), testTenantID, testUserID, rec.ID, UpdateReconciliationRequest{Name: &same})

	require.NoError(t, err)
	r.recs.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	r.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestService_Finalize_BlockedByUnresolvedExceptions(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusInProgress)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.exceptions.On("CountUnresolved", mock.Anything, testTenantID, rec.ID).Return(int64(2), nil)

	_, err := r.service().Finalize(context.Background(), testTenantID, testUserID, rec.ID)

	assertCode(t, err, reconciliation.CodeUnresolvedExceptions)
	assert.Contains(t, err.Error(), "2 unresolved exception(s)")
	assert.Equal(t, reconciliation.StatusInProgress, rec.Status)
	r.recs.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
}

func TestService_Finalize_Succeeds(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusInProgress)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.recs.On("SaveWithLock", mock.Anything, rec).Return(nil)
	r.exceptions.On("CountUnresolved", mock.Anything, testTenantID, rec.ID).Return(int64(0), nil)
	r.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(events []shared.DomainEvent) bool {
		return len(events) == 1 && events[0].EventType() == reconciliation.EventTypeReconciliationFinalized
	})).Return(nil)

	resp, err := r.service().Finalize(context.Background(), testTenantID, testUserID, rec.ID)

	require.NoError(t, err)
	assert.Equal(t, "finalized", resp.Status)
	require.NotNil(t, resp.FinalizedBy)
	assert.Equal(t, testUserID, *resp.FinalizedBy)
	r.assertExpectations(t)
	r.publisher.AssertExpectations(t)
}

func TestService_Finalize_TerminalStatus(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusCancelled)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)

	_, err := r.service().Finalize(context.Background(), testTenantID, testUserID, rec.ID)

	assertCode(t, err, shared.CodeInvalidState)
	r.exceptions.AssertNotCalled(t, "CountUnresolved", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Finalize_PublishFailureIsSwallowed(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusInProgress)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.recs.On("SaveWithLock", mock.Anything, rec).Return(nil)
	r.exceptions.On("CountUnresolved", mock.Anything, testTenantID, rec.ID).Return(int64(0), nil)
	r.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	resp, err := r.service().Finalize(context.Background(), testTenantID, testUserID, rec.ID)

	require.NoError(t, err)
	assert.Equal(t, "finalized", resp.Status)
}

func TestService_Cancel_ReleasesClaimedEntries(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusInProgress)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.recs.On("SaveWithLock", mock.Anything, rec).Return(nil)
	r.matches.On("EntryIDsByReconciliation", mock.Anything, testTenantID, rec.ID).Return([]uuid.UUID{a, b}, nil)
	r.allocations.On("EntryIDsByReconciliation", mock.Anything, testTenantID, rec.ID).Return([]uuid.UUID{b, c}, nil)
	r.entries.On("Release", mock.Anything, testTenantID, rec.ID, []uuid.UUID{a, b, c}).Return(int64(3), nil)
	r.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(events []shared.DomainEvent) bool {
		if len(events) != 1 {
			return false
		}
		cancelled, ok := events[0].(*reconciliation.ReconciliationCancelledEvent)
		return ok && cancelled.ReleasedEntries == 3
	})).Return(nil)

	resp, err := r.service().Cancel(context.Background(), testTenantID, testUserID, rec.ID)

	require.NoError(t, err)
	assert.Equal(t, "cancelled", resp.Status)
	r.assertExpectations(t)
	r.publisher.AssertExpectations(t)
}

func TestService_Cancel_FinalizedIsRejected(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusFinalized)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)

	_, err := r.service().Cancel(context.Background(), testTenantID, testUserID, rec.ID)

	assertCode(t, err, shared.CodeInvalidState)
	r.entries.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

// ==================== Manual matching ====================

func TestService_CreateMatch(t *testing.T) {
	tests := []struct {
		name     string
		sources  []reconciliation.ClearingEntry
		targets  []reconciliation.ClearingEntry
		wantType reconciliation.MatchType
		wantDiff string
	}{
		{
			name:     "one to one",
			sources:  []reconciliation.ClearingEntry{pendingEntry("REF-1", "1000.00", 1)},
			targets:  []reconciliation.ClearingEntry{pendingEntry("REF-1", "-1000.00", 2)},
			wantType: reconciliation.MatchTypeOneToOne,
			wantDiff: "0",
		},
		{
			name:    "one to many",
			sources: []reconciliation.ClearingEntry{pendingEntry("INV-7", "300.00", 1)},
			targets: []reconciliation.ClearingEntry{
				pendingEntry("INV-7", "-100.00", 2),
				pendingEntry("INV-7", "-150.00", 3),
			},
			wantType: reconciliation.MatchTypeOneToMany,
			wantDiff: "50",
		},
		{
			name:     "source only is manual",
			sources:  []reconciliation.ClearingEntry{pendingEntry("ADJ-1", "12.50", 1)},
			wantType: reconciliation.MatchTypeManual,
			wantDiff: "12.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRepos()
			rec := newDraft(t)
			all := append(append([]reconciliation.ClearingEntry{}, tt.sources...), tt.targets...)
			allIDs := reconciliation.EntryIDs(all)

			r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
			r.recs.On("SaveWithLock", mock.Anything, rec).Return(nil)
			r.entries.On("FindByIDsForTenant", mock.Anything, testTenantID, allIDs).Return(all, nil)
			r.entries.On("ClaimPending", mock.Anything, testTenantID, allIDs, mock.Anything).Return(int64(len(all)), nil)
			r.matches.On("Create", mock.Anything, mock.AnythingOfType("*reconciliation.ReconciliationMatch")).Return(nil)
			expectStatistics(r, rec, 1, "100")

			resp, err := r.service().CreateMatch(context.Background(), testTenantID, testUserID, CreateMatchRequest{
				ReconciliationID: rec.ID,
				SourceEntryIDs:   reconciliation.EntryIDs(tt.sources),
				TargetEntryIDs:   reconciliation.EntryIDs(tt.targets),
			})

			require.NoError(t, err)
			assert.Equal(t, string(tt.wantType), resp.MatchType)
			assert.True(t, decimal.RequireFromString(tt.wantDiff).Equal(resp.Difference), "difference %s", resp.Difference)
			assert.Len(t, resp.Entries, len(all))
			assert.Nil(t, resp.RuleID)
			assert.Equal(t, reconciliation.StatusInProgress, rec.Status)
			assert.Equal(t, int64(1), rec.MatchedItems)
			r.assertExpectations(t)
		})
	}
}

func TestService_CreateMatch_ClaimConflict(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	debit := pendingEntry("REF-1", "1000.00", 1)
	credit := pendingEntry("REF-1", "-1000.00", 1)
	all := []reconciliation.ClearingEntry{debit, credit}

	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.entries.On("FindByIDsForTenant", mock.Anything, testTenantID, mock.Anything).Return(all, nil)
	r.entries.On("ClaimPending", mock.Anything, testTenantID, mock.Anything, mock.Anything).Return(int64(1), nil)

	_, err := r.service().CreateMatch(context.Background(), testTenantID, testUserID, CreateMatchRequest{
		ReconciliationID: rec.ID,
		SourceEntryIDs:   []uuid.UUID{debit.ID},
		TargetEntryIDs:   []uuid.UUID{credit.ID},
	})

	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	r.matches.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	r.recs.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	assert.Equal(t, reconciliation.StatusDraft, rec.Status)
}

func TestService_CreateMatch_UnknownEntry(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	debit := pendingEntry("REF-1", "1000.00", 1)
	missing := uuid.New()

	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.entries.On("FindByIDsForTenant", mock.Anything, testTenantID, mock.Anything).
		Return([]reconciliation.ClearingEntry{debit}, nil)

	_, err := r.service().CreateMatch(context.Background(), testTenantID, testUserID, CreateMatchRequest{
		ReconciliationID: rec.ID,
		SourceEntryIDs:   []uuid.UUID{debit.ID},
		TargetEntryIDs:   []uuid.UUID{missing},
	})

	assertCode(t, err, shared.CodeNotFound)
	assert.Contains(t, err.Error(), missing.String())
	r.entries.AssertNotCalled(t, "ClaimPending", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CreateMatch_InvalidSides(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	dup := uuid.New()

	_, err := r.service().CreateMatch(context.Background(), testTenantID, testUserID, CreateMatchRequest{
		ReconciliationID: rec.ID,
		SourceEntryIDs:   []uuid.UUID{dup},
		TargetEntryIDs:   []uuid.UUID{dup},
	})

	assertCode(t, err, shared.CodeInvalidInput)
}

func TestService_CreateMatch_FinalizedReconciliation(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusFinalized)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)

	_, err := r.service().CreateMatch(context.Background(), testTenantID, testUserID, CreateMatchRequest{
		ReconciliationID: rec.ID,
		SourceEntryIDs:   []uuid.UUID{uuid.New()},
	})

	assertCode(t, err, shared.CodeInvalidState)
	r.entries.AssertNotCalled(t, "FindByIDsForTenant", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CreateMatch_NotFound(t *testing.T) {
	r := newTestRepos()
	id := uuid.New()
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, id).Return(nil, reconciliation.ErrReconciliationNotFound)

	_, err := r.service().CreateMatch(context.Background(), testTenantID, testUserID, CreateMatchRequest{
		ReconciliationID: id,
		SourceEntryIDs:   []uuid.UUID{uuid.New()},
	})

	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ==================== Auto-match ====================

func expectLock(r *testRepos) *MockLock {
	lock := new(MockLock)
	lock.On("Refresh", mock.Anything, DefaultLockTTL).Return(nil).Maybe()
	lock.On("Release", mock.Anything).Return(nil)
	r.locker.On("Obtain", mock.Anything, autoMatchLockKey(testTenantID), DefaultLockTTL).Return(lock, nil)
	return lock
}

func TestService_AutoMatch_MatchesAndRaisesNearMiss(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	tolerance := decimal.RequireFromString("1.00")
	rule := referenceRule(t, &tolerance)

	exactDebit := pendingEntry("REF-1", "1000.00", 1)
	exactCredit := pendingEntry("REF-1", "-999.50", 1)
	farDebit := pendingEntry("REF-2", "500.00", 2)
	farCredit := pendingEntry("REF-2", "-497.00", 2)
	pool := []reconciliation.ClearingEntry{exactDebit, exactCredit, farDebit, farCredit}
	matchedIDs := []uuid.UUID{exactDebit.ID, exactCredit.ID}

	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.recs.On("SaveWithLock", mock.Anything, rec).Return(nil)
	r.rules.On("FindAllForTenant", mock.Anything, testTenantID, true).Return([]reconciliation.ReconciliationRule{rule}, nil)
	lock := expectLock(r)
	r.entries.On("FindPendingForTenant", mock.Anything, testTenantID, DefaultAutoMatchMaxEntries).Return(pool, nil)
	r.entries.On("FindByIDsForTenant", mock.Anything, testTenantID, matchedIDs).
		Return([]reconciliation.ClearingEntry{exactDebit, exactCredit}, nil)
	r.entries.On("ClaimPending", mock.Anything, testTenantID, matchedIDs, mock.Anything).Return(int64(2), nil)
	r.matches.On("Create", mock.Anything, mock.MatchedBy(func(m *reconciliation.ReconciliationMatch) bool {
		return m.RuleID != nil && *m.RuleID == rule.ID && m.Notes == "auto-match: By reference"
	})).Return(nil)
	expectStatistics(r, rec, 1, "1000")
	r.exceptions.On("ExistsUnresolvedByGroupKey", mock.Anything, testTenantID, rec.ID, rule.ID.String()+":reference_number=REF-2").
		Return(false, nil)
	r.exceptions.On("Create", mock.Anything, mock.MatchedBy(func(e *reconciliation.ReconciliationException) bool {
		return e.Category == reconciliation.ExceptionCategoryToleranceExceeded && len(e.EntryIDs) == 2
	})).Return(nil)
	r.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(events []shared.DomainEvent) bool {
		return len(events) == 1 && events[0].EventType() == reconciliation.EventTypeReconciliationMatched
	})).Return(nil)

	resp, err := r.service().AutoMatch(context.Background(), testTenantID, testUserID, AutoMatchRequest{ReconciliationID: rec.ID})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.MatchedCount)
	assert.Equal(t, 0, resp.SkippedCount)
	assert.Equal(t, 1, resp.ExceptionsRaised)
	r.assertExpectations(t)
	lock.AssertExpectations(t)
	r.publisher.AssertExpectations(t)
}

func TestService_AutoMatch_SkipsLostRace(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	rule := referenceRule(t, nil)
	debit := pendingEntry("REF-1", "250.00", 1)
	credit := pendingEntry("REF-1", "-250.00", 1)

	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.rules.On("FindAllForTenant", mock.Anything, testTenantID, true).Return([]reconciliation.ReconciliationRule{rule}, nil)
	lock := expectLock(r)
	r.entries.On("FindPendingForTenant", mock.Anything, testTenantID, DefaultAutoMatchMaxEntries).
		Return([]reconciliation.ClearingEntry{debit, credit}, nil)
	r.entries.On("FindByIDsForTenant", mock.Anything, testTenantID, mock.Anything).
		Return([]reconciliation.ClearingEntry{debit, credit}, nil)
	r.entries.On("ClaimPending", mock.Anything, testTenantID, mock.Anything, mock.Anything).Return(int64(0), nil)
	r.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	resp, err := r.service().AutoMatch(context.Background(), testTenantID, testUserID, AutoMatchRequest{ReconciliationID: rec.ID})

	require.NoError(t, err)
	assert.Equal(t, 0, resp.MatchedCount)
	assert.Equal(t, 1, resp.SkippedCount)
	assert.Equal(t, 0, resp.ExceptionsRaised)
	r.matches.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	lock.AssertCalled(t, "Release", mock.Anything)
}

func TestService_AutoMatch_ExistingNearMissIsNotDuplicated(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	rule := referenceRule(t, nil)
	debit := pendingEntry("REF-9", "10.00", 1)
	credit := pendingEntry("REF-9", "-9.00", 1)

	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.rules.On("FindAllForTenant", mock.Anything, testTenantID, true).Return([]reconciliation.ReconciliationRule{rule}, nil)
	expectLock(r)
	r.entries.On("FindPendingForTenant", mock.Anything, testTenantID, DefaultAutoMatchMaxEntries).
		Return([]reconciliation.ClearingEntry{debit, credit}, nil)
	r.exceptions.On("ExistsUnresolvedByGroupKey", mock.Anything, testTenantID, rec.ID, mock.Anything).Return(true, nil)
	r.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	resp, err := r.service().AutoMatch(context.Background(), testTenantID, testUserID, AutoMatchRequest{ReconciliationID: rec.ID})

	require.NoError(t, err)
	assert.Equal(t, 0, resp.ExceptionsRaised)
	r.exceptions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_AutoMatch_LockHeld(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	rule := referenceRule(t, nil)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.rules.On("FindAllForTenant", mock.Anything, testTenantID, true).Return([]reconciliation.ReconciliationRule{rule}, nil)
	r.locker.On("Obtain", mock.Anything, mock.Anything, mock.Anything).Return(nil, ErrLockNotObtained)

	_, err := r.service().AutoMatch(context.Background(), testTenantID, testUserID, AutoMatchRequest{ReconciliationID: rec.ID})

	assert.ErrorIs(t, err, reconciliation.ErrAutoMatchRunning)
	assert.ErrorIs(t, err, shared.ErrConcurrentModification)
	r.entries.AssertNotCalled(t, "FindPendingForTenant", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_AutoMatch_NoActiveRules(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.rules.On("FindAllForTenant", mock.Anything, testTenantID, true).Return([]reconciliation.ReconciliationRule{}, nil)

	_, err := r.service().AutoMatch(context.Background(), testTenantID, testUserID, AutoMatchRequest{ReconciliationID: rec.ID})

	assertCode(t, err, reconciliation.CodeNoActiveRules)
	r.locker.AssertNotCalled(t, "Obtain", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_AutoMatch_InactiveNamedRule(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	rule := referenceRule(t, nil)
	rule.Active = false
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.rules.On("FindByIDForTenant", mock.Anything, testTenantID, rule.ID).Return(&rule, nil)

	_, err := r.service().AutoMatch(context.Background(), testTenantID, testUserID, AutoMatchRequest{
		ReconciliationID: rec.ID,
		RuleID:           &rule.ID,
	})

	assertCode(t, err, reconciliation.CodeNoActiveRules)
	assert.Contains(t, err.Error(), "By reference")
}

func TestService_AutoMatch_CancelledReconciliation(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusCancelled)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)

	_, err := r.service().AutoMatch(context.Background(), testTenantID, testUserID, AutoMatchRequest{ReconciliationID: rec.ID})

	assertCode(t, err, shared.CodeInvalidState)
	r.rules.AssertNotCalled(t, "FindAllForTenant", mock.Anything, mock.Anything, mock.Anything)
}

// ==================== Allocations ====================

func TestService_CreateAllocation_OverAllocationRaisesException(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	entry := pendingEntry("PAY-1", "100.00", 3)
	entry.Status = reconciliation.EntryStatusAllocated

	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.recs.On("SaveWithLock", mock.Anything, rec).Return(nil)
	r.entries.On("FindByIDForTenant", mock.Anything, testTenantID, entry.ID).Return(&entry, nil)
	r.entries.On("ClaimForAllocation", mock.Anything, testTenantID, entry.ID, mock.Anything).Return(int64(1), nil)
	r.allocations.On("Create", mock.Anything, mock.AnythingOfType("*reconciliation.ReconciliationAllocation")).Return(nil)
	r.allocations.On("SumForEntry", mock.Anything, testTenantID, entry.ID).Return(decimal.RequireFromString("150.00"), nil)
	r.exceptions.On("ExistsUnresolvedByGroupKey", mock.Anything, testTenantID, rec.ID, "allocation:"+entry.ID.String()).Return(false, nil)
	r.exceptions.On("Create", mock.Anything, mock.MatchedBy(func(e *reconciliation.ReconciliationException) bool {
		return e.Category == reconciliation.ExceptionCategoryOverAllocation && e.Amount.Equal(decimal.NewFromInt(50))
	})).Return(nil)
	expectStatistics(r, rec, 0, "0")

	resp, err := r.service().CreateAllocation(context.Background(), testTenantID, testUserID, CreateAllocationRequest{
		ReconciliationID: rec.ID,
		ClearingEntryID:  entry.ID,
		TargetAccountID:  uuid.New(),
		Amount:           decimal.RequireFromString("60.00"),
	})

	require.NoError(t, err)
	assert.True(t, resp.ExceptionRaised)
	assert.Equal(t, reconciliation.StatusInProgress, rec.Status)
	r.assertExpectations(t)
}

func TestService_CreateAllocation_WithinAmount(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	entry := pendingEntry("PAY-2", "-80.00", 3)

	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.recs.On("SaveWithLock", mock.Anything, rec).Return(nil)
	r.entries.On("FindByIDForTenant", mock.Anything, testTenantID, entry.ID).Return(&entry, nil)
	r.entries.On("ClaimForAllocation", mock.Anything, testTenantID, entry.ID, mock.Anything).Return(int64(1), nil)
	r.allocations.On("Create", mock.Anything, mock.Anything).Return(nil)
	r.allocations.On("SumForEntry", mock.Anything, testTenantID, entry.ID).Return(decimal.RequireFromString("80.00"), nil)
	expectStatistics(r, rec, 0, "0")

	resp, err := r.service().CreateAllocation(context.Background(), testTenantID, testUserID, CreateAllocationRequest{
		ReconciliationID: rec.ID,
		ClearingEntryID:  entry.ID,
		TargetAccountID:  uuid.New(),
		Amount:           decimal.RequireFromString("80.00"),
	})

	require.NoError(t, err)
	assert.False(t, resp.ExceptionRaised)
	r.exceptions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_CreateAllocation_MatchedEntryIsUnavailable(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	entry := pendingEntry("PAY-3", "40.00", 1)
	entry.Status = reconciliation.EntryStatusMatched

	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.entries.On("FindByIDForTenant", mock.Anything, testTenantID, entry.ID).Return(&entry, nil)
	r.entries.On("ClaimForAllocation", mock.Anything, testTenantID, entry.ID, mock.Anything).Return(int64(0), nil)

	_, err := r.service().CreateAllocation(context.Background(), testTenantID, testUserID, CreateAllocationRequest{
		ReconciliationID: rec.ID,
		ClearingEntryID:  entry.ID,
		TargetAccountID:  uuid.New(),
		Amount:           decimal.RequireFromString("10.00"),
	})

	assert.ErrorIs(t, err, reconciliation.ErrEntriesUnavailable)
	r.allocations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_CreateAllocation_NonPositiveAmount(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)

	_, err := r.service().CreateAllocation(context.Background(), testTenantID, testUserID, CreateAllocationRequest{
		ReconciliationID: rec.ID,
		ClearingEntryID:  uuid.New(),
		TargetAccountID:  uuid.New(),
		Amount:           decimal.Zero,
	})

	assertCode(t, err, shared.CodeInvalidInput)
}

// ==================== Exceptions ====================

func TestService_ResolveException(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusInProgress)
	exc, err := reconciliation.NewReconciliationException(rec, reconciliation.ExceptionCategoryManual,
		"Bank fee not booked", nil, decimal.RequireFromString("2.50"))
	require.NoError(t, err)

	r.exceptions.On("FindByID", mock.Anything, exc.ID).Return(exc, nil)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.exceptions.On("Save", mock.Anything, exc).Return(nil)
	r.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(events []shared.DomainEvent) bool {
		return len(events) == 1 &&
			events[0].EventType() == reconciliation.EventTypeExceptionResolved &&
			events[0].AggregateID() == rec.ID
	})).Return(nil)

	resp, err := r.service().ResolveException(context.Background(), testTenantID, testUserID, exc.ID, ResolveExceptionRequest{
		Resolution: "Booked the fee",
		Category:   "write_off",
	})

	require.NoError(t, err)
	assert.True(t, resp.Resolved)
	assert.Equal(t, "write_off", resp.ResolutionCategory)
	require.NotNil(t, resp.ResolvedBy)
	assert.Equal(t, testUserID, *resp.ResolvedBy)
	r.assertExpectations(t)
	r.publisher.AssertExpectations(t)
}

func TestService_ResolveException_ForeignTenantLooksAbsent(t *testing.T) {
	r := newTestRepos()
	owner := newDraft(t)
	exc, err := reconciliation.NewReconciliationException(owner, reconciliation.ExceptionCategoryManual,
		"Foreign", nil, decimal.Zero)
	require.NoError(t, err)
	otherTenant := uuid.New()

	r.exceptions.On("FindByID", mock.Anything, exc.ID).Return(exc, nil)
	r.recs.On("FindByIDForTenant", mock.Anything, otherTenant, owner.ID).Return(nil, reconciliation.ErrReconciliationNotFound)

	_, err = r.service().ResolveException(context.Background(), otherTenant, testUserID, exc.ID, ResolveExceptionRequest{
		Resolution: "not mine",
	})

	assert.ErrorIs(t, err, reconciliation.ErrExceptionNotFound)
	r.exceptions.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestService_ResolveException_AlreadyResolved(t *testing.T) {
	r := newTestRepos()
	rec := withStatus(t, reconciliation.StatusInProgress)
	exc, err := reconciliation.NewReconciliationException(rec, reconciliation.ExceptionCategoryManual, "Twice", nil, decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, exc.Resolve(rec, testUserID, "first", ""))

	r.exceptions.On("FindByID", mock.Anything, exc.ID).Return(exc, nil)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)

	_, err = r.service().ResolveException(context.Background(), testTenantID, testUserID, exc.ID, ResolveExceptionRequest{
		Resolution: "second",
	})

	assertCode(t, err, shared.CodeInvalidState)
}

func TestService_RaiseException(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	amount := decimal.RequireFromString("5.00")
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.exceptions.On("Create", mock.Anything, mock.AnythingOfType("*reconciliation.ReconciliationException")).Return(nil)

	resp, err := r.service().RaiseException(context.Background(), testTenantID, rec.ID, RaiseExceptionRequest{
		Description: "Unexplained difference",
		Amount:      &amount,
	})

	require.NoError(t, err)
	assert.Equal(t, string(reconciliation.ExceptionCategoryManual), resp.Category)
	assert.False(t, resp.Resolved)
	assert.True(t, amount.Equal(resp.Amount))
}

// ==================== Rules ====================

func TestService_CreateRule_DefaultsToActive(t *testing.T) {
	r := newTestRepos()
	r.rules.On("Create", mock.Anything, mock.AnythingOfType("*reconciliation.ReconciliationRule")).Return(nil)
	days := 3

	resp, err := r.service().CreateRule(context.Background(), testTenantID, testUserID, CreateRuleRequest{
		Name:        "Reference and date",
		Priority:    5,
		MatchFields: []string{"reference_number", "date"},
		Tolerance:   ToleranceInput{DateDays: &days},
	})

	require.NoError(t, err)
	assert.True(t, resp.Active)
	assert.Equal(t, []string{"reference_number", "date"}, resp.MatchFields)
	require.NotNil(t, resp.Tolerance.DateDays)
	assert.Equal(t, 3, *resp.Tolerance.DateDays)
}

func TestService_CreateRule_UnknownField(t *testing.T) {
	r := newTestRepos()

	_, err := r.service().CreateRule(context.Background(), testTenantID, testUserID, CreateRuleRequest{
		Name:        "Broken",
		MatchFields: []string{"counterparty"},
	})

	assertCode(t, err, shared.CodeInvalidInput)
	r.rules.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_UpdateRule(t *testing.T) {
	r := newTestRepos()
	rule := referenceRule(t, nil)
	r.rules.On("FindByIDForTenant", mock.Anything, testTenantID, rule.ID).Return(&rule, nil)
	r.rules.On("SaveWithLock", mock.Anything, &rule).Return(nil)
	inactive := false

	resp, err := r.service().UpdateRule(context.Background(), testTenantID, rule.ID, UpdateRuleRequest{
		Active:      &inactive,
		MatchFields: []string{"reference_number", "amount"},
	})

	require.NoError(t, err)
	assert.False(t, resp.Active)
	assert.Equal(t, []string{"reference_number", "amount"}, resp.MatchFields)
}

func TestService_ListRules_PriorityOrder(t *testing.T) {
	r := newTestRepos()
	low := referenceRule(t, nil)
	high := referenceRule(t, nil)
	high.Priority = 1
	r.rules.On("FindAllForTenant", mock.Anything, testTenantID, false).
		Return([]reconciliation.ReconciliationRule{low, high}, nil)

	rules, err := r.service().ListRules(context.Background(), testTenantID)

	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, high.ID, rules[0].ID)
}

// ==================== Queries ====================

func TestService_List_InvalidStatus(t *testing.T) {
	r := newTestRepos()

	_, err := r.service().List(context.Background(), testTenantID, ReconciliationListFilter{Status: "archived"})

	assertCode(t, err, shared.CodeInvalidInput)
}

func TestService_List(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	r.recs.On("FindAllForTenant", mock.Anything, testTenantID, mock.MatchedBy(func(f reconciliation.ReconciliationFilter) bool {
		return f.Status != nil && *f.Status == reconciliation.StatusDraft && f.PageSize == shared.DefaultPageSize
	})).Return([]reconciliation.Reconciliation{*rec}, nil)
	r.recs.On("CountForTenant", mock.Anything, testTenantID, mock.Anything).Return(int64(1), nil)

	page, err := r.service().List(context.Background(), testTenantID, ReconciliationListFilter{Status: "draft"})

	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.Total)
}

func TestService_GetStatistics(t *testing.T) {
	r := newTestRepos()
	r.recs.On("CountByStatus", mock.Anything, testTenantID).Return(map[reconciliation.Status]int64{
		reconciliation.StatusDraft:     2,
		reconciliation.StatusFinalized: 3,
	}, nil)
	r.recs.On("CountByType", mock.Anything, testTenantID).Return(map[string]int64{"bank": 5}, nil)
	r.exceptions.On("CountUnresolvedForTenant", mock.Anything, testTenantID).Return(int64(4), nil)

	stats, err := r.service().GetStatistics(context.Background(), testTenantID)

	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(0), stats.ByStatus["in_progress"])
	assert.Equal(t, int64(0), stats.ByStatus["cancelled"])
	assert.Equal(t, int64(3), stats.ByStatus["finalized"])
	assert.Equal(t, int64(4), stats.OpenExceptions)
}

func TestService_Export(t *testing.T) {
	r := newTestRepos()
	rec := newDraft(t)
	r.recs.On("FindByIDForTenant", mock.Anything, testTenantID, rec.ID).Return(rec, nil)
	r.matches.On("FindByReconciliation", mock.Anything, testTenantID, rec.ID).Return([]reconciliation.ReconciliationMatch{}, nil)
	r.allocations.On("FindByReconciliation", mock.Anything, testTenantID, rec.ID).Return([]reconciliation.ReconciliationAllocation{}, nil)
	r.exceptions.On("FindByReconciliation", mock.Anything, testTenantID, rec.ID).Return([]reconciliation.ReconciliationException{}, nil)
	r.history.On("FindRecent", mock.Anything, testTenantID, rec.ID, RecentHistoryLimit).Return([]reconciliation.ReconciliationHistory{}, nil)
	renderer := &stubRenderer{}

	file, err := r.service(WithWorkbookRenderer(renderer)).Export(context.Background(), testTenantID, rec.ID)

	require.NoError(t, err)
	assert.Equal(t, "reconciliation-2026-03-01-"+rec.ID.String()[:8]+".xlsx", file.FileName)
	assert.Equal(t, []byte("workbook"), file.Content)
	require.NotNil(t, renderer.rendered)
	assert.Equal(t, rec.ID, renderer.rendered.ID)
}

func TestService_Export_NotConfigured(t *testing.T) {
	r := newTestRepos()

	_, err := r.service().Export(context.Background(), testTenantID, uuid.New())

	assert.Error(t, err)
}
