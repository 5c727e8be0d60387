package reconciliation

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
)

// TransactionScope provides transactional access to reconciliation repositories.
// Every match, allocation and lifecycle change runs inside one Execute call.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to repositories sharing one transaction.
//
// The clearing entry repository only moves entry status through conditional
// updates. A claim that affects fewer rows than requested means another
// transaction consumed an entry first.
type TransactionalRepositories interface {
	ReconciliationRepo() reconciliation.ReconciliationRepository
	EntryRepo() reconciliation.ClearingEntryRepository
	MatchRepo() reconciliation.MatchRepository
	AllocationRepo() reconciliation.AllocationRepository
	ExceptionRepo() reconciliation.ExceptionRepository
}

// Repositories bundles the non-transactional repositories used by the service
type Repositories struct {
	Reconciliations reconciliation.ReconciliationRepository
	Entries         reconciliation.ClearingEntryRepository
	Rules           reconciliation.RuleRepository
	Matches         reconciliation.MatchRepository
	Allocations     reconciliation.AllocationRepository
	Exceptions      reconciliation.ExceptionRepository
	History         reconciliation.HistoryRepository
}

// NoOpTransactionScope runs the function against plain repositories.
// It is used by unit tests.
type NoOpTransactionScope struct {
	repos Repositories
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories
func NewNoOpTransactionScope(repos Repositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{repos: repos}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

func (s *NoOpTransactionScope) ReconciliationRepo() reconciliation.ReconciliationRepository {
	return s.repos.Reconciliations
}

func (s *NoOpTransactionScope) EntryRepo() reconciliation.ClearingEntryRepository {
	return s.repos.Entries
}

func (s *NoOpTransactionScope) MatchRepo() reconciliation.MatchRepository {
	return s.repos.Matches
}

func (s *NoOpTransactionScope) AllocationRepo() reconciliation.AllocationRepository {
	return s.repos.Allocations
}

func (s *NoOpTransactionScope) ExceptionRepo() reconciliation.ExceptionRepository {
	return s.repos.Exceptions
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
