package persistence

import (
	"context"

	appreconciliation "github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appreconciliation.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories hands out repositories bound to one transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) ReconciliationRepo() reconciliation.ReconciliationRepository {
	return NewGormReconciliationRepository(r.tx)
}

func (r *gormTransactionalRepositories) EntryRepo() reconciliation.ClearingEntryRepository {
	return NewGormClearingEntryRepository(r.tx)
}

func (r *gormTransactionalRepositories) MatchRepo() reconciliation.MatchRepository {
	return NewGormReconciliationMatchRepository(r.tx)
}

func (r *gormTransactionalRepositories) AllocationRepo() reconciliation.AllocationRepository {
	return NewGormReconciliationAllocationRepository(r.tx)
}

func (r *gormTransactionalRepositories) ExceptionRepo() reconciliation.ExceptionRepository {
	return NewGormReconciliationExceptionRepository(r.tx)
}

// NewRepositories builds the non-transactional repository set over db
func NewRepositories(db *gorm.DB) appreconciliation.Repositories {
	return appreconciliation.Repositories{
		Reconciliations: NewGormReconciliationRepository(db),
		Entries:         NewGormClearingEntryRepository(db),
		Rules:           NewGormReconciliationRuleRepository(db),
		Matches:         NewGormReconciliationMatchRepository(db),
		Allocations:     NewGormReconciliationAllocationRepository(db),
		Exceptions:      NewGormReconciliationExceptionRepository(db),
		History:         NewGormReconciliationHistoryRepository(db),
	}
}

// Ensure GormTransactionScope implements TransactionScope
var _ appreconciliation.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appreconciliation.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
