package reconciliation

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// ListRules returns the rules of a business in priority order
func (s *Service) ListRules(ctx context.Context, tenantID uuid.UUID) ([]RuleResponse, error) {
	rules, err := s.repos.Rules.FindAllForTenant(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}
	reconciliation.SortRules(rules)

	out := make([]RuleResponse, len(rules))
	for i := range rules {
		out[i] = ToRuleResponse(&rules[i])
	}
	return out, nil
}

// GetRule returns one rule
func (s *Service) GetRule(ctx context.Context, tenantID, id uuid.UUID) (*RuleResponse, error) {
	rule, err := s.repos.Rules.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	resp := ToRuleResponse(rule)
	return &resp, nil
}

// CreateRule creates a matching rule. Rules are active unless stated otherwise.
func (s *Service) CreateRule(ctx context.Context, tenantID, userID uuid.UUID, req CreateRuleRequest) (*RuleResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation_rule", "create")
	defer span.End()

	fields, err := reconciliation.ParseMatchFields(req.MatchFields)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	rule, err := reconciliation.NewReconciliationRule(
		tenantID, userID, req.Name, req.Priority, fields,
		reconciliation.Tolerance{Amount: req.Tolerance.Amount, DateDays: req.Tolerance.DateDays},
		active,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.repos.Rules.Create(ctx, rule); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := ToRuleResponse(rule)
	return &resp, nil
}

// UpdateRule patches a matching rule
func (s *Service) UpdateRule(ctx context.Context, tenantID, id uuid.UUID, req UpdateRuleRequest) (*RuleResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation_rule", "update")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrRuleID, id.String())

	rule, err := s.repos.Rules.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	patch := reconciliation.RulePatch{
		Name:     req.Name,
		Priority: req.Priority,
		Active:   req.Active,
	}
	if req.MatchFields != nil {
		fields, err := reconciliation.ParseMatchFields(req.MatchFields)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		patch.MatchFields = fields
	}
	if req.Tolerance != nil {
		patch.Tolerance = &reconciliation.Tolerance{Amount: req.Tolerance.Amount, DateDays: req.Tolerance.DateDays}
	}

	if err := rule.Update(patch); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.repos.Rules.SaveWithLock(ctx, rule); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := ToRuleResponse(rule)
	return &resp, nil
}

// DeleteRule removes a rule. Matches keep the rule ID they were created with.
func (s *Service) DeleteRule(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.repos.Rules.DeleteForTenant(ctx, tenantID, id)
}
