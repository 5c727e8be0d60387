package reconciliation

import (
	"context"
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockReconciliationRepository is a mock implementation of ReconciliationRepository
type MockReconciliationRepository struct {
	mock.Mock
}

func (m *MockReconciliationRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.Reconciliation, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Reconciliation), args.Error(1)
}

func (m *MockReconciliationRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter reconciliation.ReconciliationFilter) ([]reconciliation.Reconciliation, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]reconciliation.Reconciliation), args.Error(1)
}

func (m *MockReconciliationRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter reconciliation.ReconciliationFilter) (int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReconciliationRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[reconciliation.Status]int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(map[reconciliation.Status]int64), args.Error(1)
}

func (m *MockReconciliationRepository) CountByType(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockReconciliationRepository) Create(ctx context.Context, r *reconciliation.Reconciliation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockReconciliationRepository) SaveWithLock(ctx context.Context, r *reconciliation.Reconciliation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// MockClearingEntryRepository is a mock implementation of ClearingEntryRepository
type MockClearingEntryRepository struct {
	mock.Mock
}

func (m *MockClearingEntryRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.ClearingEntry, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.ClearingEntry), args.Error(1)
}

func (m *MockClearingEntryRepository) FindByIDsForTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]reconciliation.ClearingEntry, error) {
	args := m.Called(ctx, tenantID, ids)
	return args.Get(0).([]reconciliation.ClearingEntry), args.Error(1)
}

func (m *MockClearingEntryRepository) FindPendingForTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]reconciliation.ClearingEntry, error) {
	args := m.Called(ctx, tenantID, limit)
	return args.Get(0).([]reconciliation.ClearingEntry), args.Error(1)
}

func (m *MockClearingEntryRepository) ClaimPending(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, ids, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockClearingEntryRepository) ClaimForAllocation(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, id, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockClearingEntryRepository) Release(ctx context.Context, tenantID, reconciliationID uuid.UUID, ids []uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID, reconciliationID, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockClearingEntryRepository) SummarizePending(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).(int64), args.Get(1).(decimal.Decimal), args.Error(2)
}

// MockRuleRepository is a mock implementation of RuleRepository
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.ReconciliationRule, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.ReconciliationRule), args.Error(1)
}

func (m *MockRuleRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]reconciliation.ReconciliationRule, error) {
	args := m.Called(ctx, tenantID, activeOnly)
	return args.Get(0).([]reconciliation.ReconciliationRule), args.Error(1)
}

func (m *MockRuleRepository) Create(ctx context.Context, rule *reconciliation.ReconciliationRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleRepository) SaveWithLock(ctx context.Context, rule *reconciliation.ReconciliationRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleRepository) DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// MockMatchRepository is a mock implementation of MatchRepository
type MockMatchRepository struct {
	mock.Mock
}

func (m *MockMatchRepository) Create(ctx context.Context, match *reconciliation.ReconciliationMatch) error {
	args := m.Called(ctx, match)
	return args.Error(0)
}

func (m *MockMatchRepository) FindByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]reconciliation.ReconciliationMatch, error) {
	args := m.Called(ctx, tenantID, reconciliationID)
	return args.Get(0).([]reconciliation.ReconciliationMatch), args.Error(1)
}

func (m *MockMatchRepository) Summarize(ctx context.Context, tenantID, reconciliationID uuid.UUID) (int64, decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, reconciliationID)
	return args.Get(0).(int64), args.Get(1).(decimal.Decimal), args.Error(2)
}

func (m *MockMatchRepository) EntryIDsByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, reconciliationID)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockAllocationRepository is a mock implementation of AllocationRepository
type MockAllocationRepository struct {
	mock.Mock
}

func (m *MockAllocationRepository) Create(ctx context.Context, a *reconciliation.ReconciliationAllocation) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAllocationRepository) FindByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]reconciliation.ReconciliationAllocation, error) {
	args := m.Called(ctx, tenantID, reconciliationID)
	return args.Get(0).([]reconciliation.ReconciliationAllocation), args.Error(1)
}

func (m *MockAllocationRepository) SumForEntry(ctx context.Context, tenantID, entryID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, tenantID, entryID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAllocationRepository) EntryIDsByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, reconciliationID)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockExceptionRepository is a mock implementation of ExceptionRepository
type MockExceptionRepository struct {
	mock.Mock
}

func (m *MockExceptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.ReconciliationException, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.ReconciliationException), args.Error(1)
}

func (m *MockExceptionRepository) FindByReconciliation(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]reconciliation.ReconciliationException, error) {
	args := m.Called(ctx, tenantID, reconciliationID)
	return args.Get(0).([]reconciliation.ReconciliationException), args.Error(1)
}

func (m *MockExceptionRepository) CountUnresolved(ctx context.Context, tenantID, reconciliationID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID, reconciliationID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockExceptionRepository) CountUnresolvedForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockExceptionRepository) ExistsUnresolvedByGroupKey(ctx context.Context, tenantID, reconciliationID uuid.UUID, groupKey string) (bool, error) {
	args := m.Called(ctx, tenantID, reconciliationID, groupKey)
	return args.Bool(0), args.Error(1)
}

func (m *MockExceptionRepository) Create(ctx context.Context, e *reconciliation.ReconciliationException) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockExceptionRepository) Save(ctx context.Context, e *reconciliation.ReconciliationException) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// MockHistoryRepository is a mock implementation of HistoryRepository
type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Append(ctx context.Context, h *reconciliation.ReconciliationHistory) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockHistoryRepository) FindRecent(ctx context.Context, tenantID, reconciliationID uuid.UUID, limit int) ([]reconciliation.ReconciliationHistory, error) {
	args := m.Called(ctx, tenantID, reconciliationID, limit)
	return args.Get(0).([]reconciliation.ReconciliationHistory), args.Error(1)
}

// MockLocker is a mock implementation of Locker
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Lock), args.Error(1)
}

// MockLock is a mock implementation of Lock
type MockLock struct {
	mock.Mock
}

func (m *MockLock) Refresh(ctx context.Context, ttl time.Duration) error {
	args := m.Called(ctx, ttl)
	return args.Error(0)
}

func (m *MockLock) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// MockObjectStorage is a mock implementation of ObjectStorage
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	args := m.Called(ctx, key, body, contentType)
	return args.Error(0)
}

// MockExporter is a mock implementation of Exporter
type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Export(ctx context.Context, tenantID, id uuid.UUID) (*ExportFile, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ExportFile), args.Error(1)
}

// stubRenderer renders a fixed payload
type stubRenderer struct {
	rendered *ReconciliationDetailResponse
}

func (r *stubRenderer) Render(detail *ReconciliationDetailResponse) ([]byte, error) {
	r.rendered = detail
	return []byte("workbook"), nil
}

func (r *stubRenderer) ContentType() string { return "application/octet-stream" }
func (r *stubRenderer) Extension() string   { return ".xlsx" }

// testRepos bundles the mocks of one test
type testRepos struct {
	recs        *MockReconciliationRepository
	entries     *MockClearingEntryRepository
	rules       *MockRuleRepository
	matches     *MockMatchRepository
	allocations *MockAllocationRepository
	exceptions  *MockExceptionRepository
	history     *MockHistoryRepository
	locker      *MockLocker
	publisher   *MockEventPublisher
}

func newTestRepos() *testRepos {
	return &testRepos{
		recs:        new(MockReconciliationRepository),
		entries:     new(MockClearingEntryRepository),
		rules:       new(MockRuleRepository),
		matches:     new(MockMatchRepository),
		allocations: new(MockAllocationRepository),
		exceptions:  new(MockExceptionRepository),
		history:     new(MockHistoryRepository),
		locker:      new(MockLocker),
		publisher:   new(MockEventPublisher),
	}
}

func (r *testRepos) repositories() Repositories {
	return Repositories{
		Reconciliations: r.recs,
		Entries:         r.entries,
		Rules:           r.rules,
		Matches:         r.matches,
		Allocations:     r.allocations,
		Exceptions:      r.exceptions,
		History:         r.history,
	}
}

func (r *testRepos) service(opts ...ServiceOption) *Service {
	repos := r.repositories()
	opts = append([]ServiceOption{WithEventPublisher(r.publisher)}, opts...)
	return NewService(repos, NewNoOpTransactionScope(repos), r.locker, opts...)
}

func (r *testRepos) assertExpectations(t mock.TestingT) {
	r.recs.AssertExpectations(t)
	r.entries.AssertExpectations(t)
	r.rules.AssertExpectations(t)
	r.matches.AssertExpectations(t)
	r.allocations.AssertExpectations(t)
	r.exceptions.AssertExpectations(t)
	r.history.AssertExpectations(t)
	r.locker.AssertExpectations(t)
}
