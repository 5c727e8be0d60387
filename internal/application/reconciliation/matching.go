package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateMatch clears source entries against target entries in one transaction
func (s *Service) CreateMatch(ctx context.Context, tenantID, userID uuid.UUID, req CreateMatchRequest) (*MatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "create_match")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrReconciliationID, req.ReconciliationID.String(),
		"match.sources", len(req.SourceEntryIDs),
		"match.targets", len(req.TargetEntryIDs),
	)

	var match *reconciliation.ReconciliationMatch
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		match, err = s.commitMatch(ctx, repos, tenantID, userID, req.ReconciliationID,
			req.SourceEntryIDs, req.TargetEntryIDs, nil, req.Notes)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrConcurrentModification) {
			s.metrics.RecordMatchConflict(ctx, tenantID)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordMatchCreated(ctx, tenantID, string(match.MatchType), false)
	telemetry.SetAttribute(span, telemetry.SpanAttrMatchType, string(match.MatchType))

	resp := ToMatchResponse(match)
	return &resp, nil
}

// commitMatch is the single path that turns entries into a match. It must run
// inside a transaction: the entry claim, the match rows and the counters
// commit or roll back together.
func (s *Service) commitMatch(
	ctx context.Context,
	repos TransactionalRepositories,
	tenantID, userID, reconciliationID uuid.UUID,
	sourceIDs, targetIDs []uuid.UUID,
	ruleID *uuid.UUID,
	notes string,
) (*reconciliation.ReconciliationMatch, error) {
	rec, err := repos.ReconciliationRepo().FindByIDForTenant(ctx, tenantID, reconciliationID)
	if err != nil {
		return nil, err
	}
	if err := rec.EnsureMutable("match"); err != nil {
		return nil, err
	}
	if err := reconciliation.ValidateMatchSides(sourceIDs, targetIDs); err != nil {
		return nil, err
	}

	allIDs := append(append([]uuid.UUID{}, sourceIDs...), targetIDs...)
	entries, err := repos.EntryRepo().FindByIDsForTenant(ctx, tenantID, allIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]reconciliation.ClearingEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	pick := func(ids []uuid.UUID) ([]reconciliation.ClearingEntry, error) {
		out := make([]reconciliation.ClearingEntry, 0, len(ids))
		for _, id := range ids {
			e, ok := byID[id]
			if !ok {
				return nil, shared.NewDomainErrorf(shared.CodeNotFound, "Clearing entry %s not found", id)
			}
			out = append(out, e)
		}
		return out, nil
	}
	sources, err := pick(sourceIDs)
	if err != nil {
		return nil, err
	}
	targets, err := pick(targetIDs)
	if err != nil {
		return nil, err
	}

	match, err := reconciliation.NewReconciliationMatch(rec, sources, targets, ruleID, notes, userID)
	if err != nil {
		return nil, err
	}

	claimed, err := repos.EntryRepo().ClaimPending(ctx, tenantID, allIDs, s.now())
	if err != nil {
		return nil, err
	}
	if claimed != int64(len(allIDs)) {
		return nil, reconciliation.ErrEntriesUnavailable
	}

	if err := repos.MatchRepo().Create(ctx, match); err != nil {
		return nil, err
	}
	if err := rec.BeginWork(); err != nil {
		return nil, err
	}
	if err := s.recomputeStatistics(ctx, repos, rec); err != nil {
		return nil, err
	}
	if err := repos.ReconciliationRepo().SaveWithLock(ctx, rec); err != nil {
		return nil, err
	}
	return match, nil
}

// AutoMatch applies the active rules, or a single named rule, to the pending
// entries of the business. Each accepted group commits on its own; groups that
// lose a race are skipped. Near misses left intact become exceptions.
func (s *Service) AutoMatch(ctx context.Context, tenantID, userID uuid.UUID, req AutoMatchRequest) (*AutoMatchResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "auto_match")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrReconciliationID, req.ReconciliationID.String())
	started := s.now()

	rec, err := s.repos.Reconciliations.FindByIDForTenant(ctx, tenantID, req.ReconciliationID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := rec.EnsureMutable("auto-match"); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	rules, err := s.resolveRules(ctx, tenantID, req.RuleID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	lock, err := s.locker.Obtain(ctx, autoMatchLockKey(tenantID), s.lockTTL)
	if err != nil {
		if errors.Is(err, ErrLockNotObtained) {
			err = reconciliation.ErrAutoMatchRunning
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logger.Warn("failed to release auto-match lock", zap.Error(relErr))
		}
	}()

	entries, err := s.repos.Entries.FindPendingForTenant(ctx, tenantID, s.maxEntries)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, "auto_match.rules", len(rules), telemetry.SpanAttrEntryCount, len(entries))

	result := &AutoMatchResponse{}
	pass, err := s.matcher.Run(rules, entries, func(p reconciliation.MatchProposal) error {
		if refreshErr := lock.Refresh(ctx, s.lockTTL); refreshErr != nil {
			s.logger.Warn("failed to refresh auto-match lock", zap.Error(refreshErr))
		}

		ruleID := p.RuleID
		var match *reconciliation.ReconciliationMatch
		txErr := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			match, err = s.commitMatch(ctx, repos, tenantID, userID, rec.ID,
				reconciliation.EntryIDs(p.Sources()), reconciliation.EntryIDs(p.Targets()),
				&ruleID, autoMatchNotePrefix+p.RuleName)
			return err
		})
		if txErr != nil {
			if errors.Is(txErr, shared.ErrConcurrentModification) {
				s.logger.Info("auto-match group skipped",
					zap.String("reconciliation_id", rec.ID.String()),
					zap.String("rule", p.RuleName),
					zap.String("group_key", p.Key),
					zap.Error(txErr),
				)
				s.metrics.RecordMatchConflict(ctx, tenantID)
				result.SkippedCount++
				return nil
			}
			return txErr
		}

		s.metrics.RecordMatchCreated(ctx, tenantID, string(match.MatchType), true)
		result.MatchedCount++
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	for _, nearMiss := range pass.NearMisses {
		raised, err := s.raiseNearMiss(ctx, tenantID, rec.ID, nearMiss)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if raised {
			result.ExceptionsRaised++
		}
	}

	ruleIDs := make([]uuid.UUID, len(rules))
	for i := range rules {
		ruleIDs[i] = rules[i].ID
	}
	rec.RecordAutoMatch(userID, reconciliation.AutoMatchOutcome{
		RuleIDs:          ruleIDs,
		MatchedCount:     result.MatchedCount,
		SkippedCount:     result.SkippedCount,
		ExceptionsRaised: result.ExceptionsRaised,
	})
	s.publish(ctx, rec.PullDomainEvents()...)

	elapsed := s.now().Sub(started)
	s.metrics.RecordAutoMatch(ctx, tenantID, elapsed, result.MatchedCount, result.SkippedCount)
	telemetry.AddEvent(span, "auto_match.completed",
		"matched", result.MatchedCount,
		"skipped", result.SkippedCount,
		"exceptions", result.ExceptionsRaised,
	)
	s.logger.Info("auto-match pass completed",
		zap.String("reconciliation_id", rec.ID.String()),
		zap.Int("matched", result.MatchedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("exceptions_raised", result.ExceptionsRaised),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// resolveRules returns the named rule or every active rule in priority order
func (s *Service) resolveRules(ctx context.Context, tenantID uuid.UUID, ruleID *uuid.UUID) ([]reconciliation.ReconciliationRule, error) {
	if ruleID != nil {
		rule, err := s.repos.Rules.FindByIDForTenant(ctx, tenantID, *ruleID)
		if err != nil {
			return nil, err
		}
		if !rule.Active {
			return nil, shared.NewDomainErrorf(reconciliation.CodeNoActiveRules, "Rule %q is not active", rule.Name)
		}
		return []reconciliation.ReconciliationRule{*rule}, nil
	}

	rules, err := s.repos.Rules.FindAllForTenant(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, reconciliation.ErrNoActiveRules
	}
	reconciliation.SortRules(rules)
	return rules, nil
}

// raiseNearMiss records a tolerance exception unless an unresolved one already
// exists for the same group
func (s *Service) raiseNearMiss(ctx context.Context, tenantID, reconciliationID uuid.UUID, p reconciliation.MatchProposal) (bool, error) {
	raised := false
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		rec, err := repos.ReconciliationRepo().FindByIDForTenant(ctx, tenantID, reconciliationID)
		if err != nil {
			return err
		}
		if !rec.Status.IsMutable() {
			return nil
		}
		exists, err := repos.ExceptionRepo().ExistsUnresolvedByGroupKey(ctx, tenantID, reconciliationID, p.GroupKey())
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		exc := reconciliation.NewToleranceException(rec, p)
		if err := repos.ExceptionRepo().Create(ctx, exc); err != nil {
			return fmt.Errorf("failed to record tolerance exception: %w", err)
		}
		raised = true
		return nil
	})
	if raised {
		s.metrics.RecordExceptionRaised(ctx, tenantID, string(reconciliation.ExceptionCategoryToleranceExceeded))
	}
	return raised, err
}
