package reconciliation

import (
	"context"
	"errors"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FindExceptions lists the exceptions of a reconciliation, newest first
func (s *Service) FindExceptions(ctx context.Context, tenantID, reconciliationID uuid.UUID) ([]ExceptionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "find_exceptions")
	defer span.End()

	if _, err := s.repos.Reconciliations.FindByIDForTenant(ctx, tenantID, reconciliationID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	excs, err := s.repos.Exceptions.FindByReconciliation(ctx, tenantID, reconciliationID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	out := make([]ExceptionResponse, len(excs))
	for i := range excs {
		out[i] = ToExceptionResponse(&excs[i])
	}
	return out, nil
}

// RaiseException records a manual exception on a mutable reconciliation
func (s *Service) RaiseException(ctx context.Context, tenantID, reconciliationID uuid.UUID, req RaiseExceptionRequest) (*ExceptionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "raise_exception")
	defer span.End()

	rec, err := s.repos.Reconciliations.FindByIDForTenant(ctx, tenantID, reconciliationID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := rec.EnsureMutable("raise exceptions on"); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	amount := decimal.Zero
	if req.Amount != nil {
		amount = *req.Amount
	}
	exc, err := reconciliation.NewReconciliationException(rec, reconciliation.ExceptionCategoryManual, req.Description, req.EntryIDs, amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.repos.Exceptions.Create(ctx, exc); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.metrics.RecordExceptionRaised(ctx, tenantID, string(exc.Category))

	resp := ToExceptionResponse(exc)
	return &resp, nil
}

// ResolveException closes an exception. Ownership is checked through the
// owning reconciliation, so foreign exceptions look absent.
func (s *Service) ResolveException(ctx context.Context, tenantID, userID, exceptionID uuid.UUID, req ResolveExceptionRequest) (*ExceptionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "resolve_exception")
	defer span.End()
	telemetry.SetAttribute(span, "exception.id", exceptionID.String())

	var exc *reconciliation.ReconciliationException
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		exc, err = repos.ExceptionRepo().FindByID(ctx, exceptionID)
		if err != nil {
			return err
		}
		rec, err := repos.ReconciliationRepo().FindByIDForTenant(ctx, tenantID, exc.ReconciliationID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return reconciliation.ErrExceptionNotFound
			}
			return err
		}
		if err := exc.Resolve(rec, userID, req.Resolution, req.Category); err != nil {
			return err
		}
		return repos.ExceptionRepo().Save(ctx, exc)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, reconciliation.NewExceptionResolvedEvent(exc, userID))

	resp := ToExceptionResponse(exc)
	return &resp, nil
}
