package reconciliation

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Create starts a draft reconciliation
func (s *Service) Create(ctx context.Context, tenantID, userID uuid.UUID, req CreateReconciliationRequest) (*ReconciliationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "create")
	defer span.End()

	rec, err := reconciliation.NewReconciliation(tenantID, userID, req.Type, req.Name, req.PeriodStart, req.PeriodEnd, req.Notes)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.repos.Reconciliations.Create(ctx, rec); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrReconciliationID, rec.ID.String(), "reconciliation.type", rec.Type)

	s.publish(ctx, rec.PullDomainEvents()...)

	resp := ToReconciliationResponse(rec)
	return &resp, nil
}

// Update patches the header of a draft or in-progress reconciliation
func (s *Service) Update(ctx context.Context, tenantID, userID, id uuid.UUID, req UpdateReconciliationRequest) (*ReconciliationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "update")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrReconciliationID, id.String())

	var rec *reconciliation.Reconciliation
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		rec, err = repos.ReconciliationRepo().FindByIDForTenant(ctx, tenantID, id)
		if err != nil {
			return err
		}
		patch := reconciliation.ReconciliationPatch{
			Type:        req.Type,
			Name:        req.Name,
			PeriodStart: req.PeriodStart,
			PeriodEnd:   req.PeriodEnd,
			Notes:       req.Notes,
		}
		if err := rec.Update(patch, userID); err != nil {
			return err
		}
		if len(rec.GetDomainEvents()) == 0 {
			return nil
		}
		return repos.ReconciliationRepo().SaveWithLock(ctx, rec)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, rec.PullDomainEvents()...)

	resp := ToReconciliationResponse(rec)
	return &resp, nil
}

// Finalize closes a reconciliation once every exception is resolved
func (s *Service) Finalize(ctx context.Context, tenantID, userID, id uuid.UUID) (*ReconciliationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "finalize")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrReconciliationID, id.String())

	var rec *reconciliation.Reconciliation
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		rec, err = repos.ReconciliationRepo().FindByIDForTenant(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := rec.EnsureMutable("finalize"); err != nil {
			return err
		}
		unresolved, err := repos.ExceptionRepo().CountUnresolved(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := rec.Finalize(userID, unresolved); err != nil {
			return err
		}
		return repos.ReconciliationRepo().SaveWithLock(ctx, rec)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("reconciliation finalized",
		zap.String("reconciliation_id", rec.ID.String()),
		zap.Int64("matched_items", rec.MatchedItems),
		zap.Int64("total_items", rec.TotalItems),
	)
	s.publish(ctx, rec.PullDomainEvents()...)

	resp := ToReconciliationResponse(rec)
	return &resp, nil
}

// Cancel abandons a reconciliation and puts the entries it claimed back to pending,
// except entries another live reconciliation still holds. Match and allocation
// rows are kept as the record of what was undone.
func (s *Service) Cancel(ctx context.Context, tenantID, userID, id uuid.UUID) (*ReconciliationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "cancel")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrReconciliationID, id.String())

	var rec *reconciliation.Reconciliation
	var released int64
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		rec, err = repos.ReconciliationRepo().FindByIDForTenant(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if err := rec.EnsureCancellable(); err != nil {
			return err
		}

		matched, err := repos.MatchRepo().EntryIDsByReconciliation(ctx, tenantID, id)
		if err != nil {
			return err
		}
		allocated, err := repos.AllocationRepo().EntryIDsByReconciliation(ctx, tenantID, id)
		if err != nil {
			return err
		}
		ids := uniqueIDs(append(matched, allocated...))
		if len(ids) > 0 {
			released, err = repos.EntryRepo().Release(ctx, tenantID, id, ids)
			if err != nil {
				return err
			}
		}

		if err := rec.Cancel(userID, released); err != nil {
			return err
		}
		return repos.ReconciliationRepo().SaveWithLock(ctx, rec)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("reconciliation cancelled",
		zap.String("reconciliation_id", rec.ID.String()),
		zap.Int64("released_entries", released),
	)
	s.publish(ctx, rec.PullDomainEvents()...)

	resp := ToReconciliationResponse(rec)
	return &resp, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
