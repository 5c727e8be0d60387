package reconciliation

import (
	"github.com/erp/reconciliation/internal/domain/shared"
)

// Error codes specific to reconciliation
const (
	CodeUnresolvedExceptions = "UNRESOLVED_EXCEPTIONS"
	CodeNoActiveRules        = "NO_ACTIVE_RULES"
)

var (
	ErrReconciliationNotFound = shared.NewDomainError(shared.CodeNotFound, "Reconciliation not found")
	ErrRuleNotFound           = shared.NewDomainError(shared.CodeNotFound, "Reconciliation rule not found")
	ErrExceptionNotFound      = shared.NewDomainError(shared.CodeNotFound, "Reconciliation exception not found")
	ErrEntryNotFound          = shared.NewDomainError(shared.CodeNotFound, "Clearing entry not found")

	ErrNoActiveRules        = shared.NewDomainError(CodeNoActiveRules, "No active reconciliation rules to apply")
	ErrUnresolvedExceptions = shared.NewDomainError(CodeUnresolvedExceptions, "Reconciliation has unresolved exceptions")

	ErrEntriesUnavailable = shared.NewDomainError(shared.CodeConcurrentModification,
		"One or more clearing entries were already consumed by another match")
	ErrReconciliationModified = shared.NewDomainError(shared.CodeConcurrentModification,
		"The reconciliation has been modified by another request")
	ErrAutoMatchRunning = shared.NewDomainError(shared.CodeConcurrentModification,
		"An auto-match pass is already running for this business")
)

// NewUnresolvedExceptionsError reports how many exceptions block finalization
func NewUnresolvedExceptionsError(count int64) *shared.DomainError {
	return shared.NewDomainErrorf(CodeUnresolvedExceptions,
		"Cannot finalize reconciliation: %d unresolved exception(s)", count)
}

// NewInvalidStateError names the operation and the status that forbids it
func NewInvalidStateError(op string, status Status) *shared.DomainError {
	return shared.NewDomainErrorf(shared.CodeInvalidState,
		"Cannot %s reconciliation in status %s", op, status)
}

func invalidInput(message string) *shared.DomainError {
	return shared.NewDomainError(shared.CodeInvalidInput, message)
}
