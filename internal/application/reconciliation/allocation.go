package reconciliation

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateAllocation assigns part of a clearing entry to a target account.
// Allocating more than the entry amount succeeds but raises an exception
// that blocks finalization until resolved.
func (s *Service) CreateAllocation(ctx context.Context, tenantID, userID uuid.UUID, req CreateAllocationRequest) (*AllocationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "create_allocation")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReconciliationID, req.ReconciliationID.String(),
		"allocation.entry_id", req.ClearingEntryID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	var allocation *reconciliation.ReconciliationAllocation
	var overAllocated bool
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		rec, err := repos.ReconciliationRepo().FindByIDForTenant(ctx, tenantID, req.ReconciliationID)
		if err != nil {
			return err
		}
		allocation, err = reconciliation.NewReconciliationAllocation(
			rec, req.ClearingEntryID, req.TargetAccountID, req.Amount, req.Notes, userID)
		if err != nil {
			return err
		}

		entry, err := repos.EntryRepo().FindByIDForTenant(ctx, tenantID, req.ClearingEntryID)
		if err != nil {
			return err
		}

		claimed, err := repos.EntryRepo().ClaimForAllocation(ctx, tenantID, entry.ID, s.now())
		if err != nil {
			return err
		}
		if claimed == 0 {
			return reconciliation.ErrEntriesUnavailable
		}

		if err := repos.AllocationRepo().Create(ctx, allocation); err != nil {
			return err
		}

		allocated, err := repos.AllocationRepo().SumForEntry(ctx, tenantID, entry.ID)
		if err != nil {
			return err
		}
		if reconciliation.IsOverAllocated(*entry, allocated) {
			exc := reconciliation.NewOverAllocationException(rec, *entry, allocated)
			exists, err := repos.ExceptionRepo().ExistsUnresolvedByGroupKey(ctx, tenantID, rec.ID, exc.GroupKey)
			if err != nil {
				return err
			}
			if !exists {
				if err := repos.ExceptionRepo().Create(ctx, exc); err != nil {
					return err
				}
			}
			overAllocated = true
		}

		if err := rec.BeginWork(); err != nil {
			return err
		}
		if err := s.recomputeStatistics(ctx, repos, rec); err != nil {
			return err
		}
		return repos.ReconciliationRepo().SaveWithLock(ctx, rec)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if overAllocated {
		s.logger.Warn("clearing entry over-allocated",
			zap.String("reconciliation_id", req.ReconciliationID.String()),
			zap.String("clearing_entry_id", req.ClearingEntryID.String()),
		)
		s.metrics.RecordExceptionRaised(ctx, tenantID, string(reconciliation.ExceptionCategoryOverAllocation))
	}

	resp := ToAllocationResponse(allocation)
	resp.ExceptionRaised = overAllocated
	return &resp, nil
}
