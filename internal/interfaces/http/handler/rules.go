package handler

import (
	recapp "github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ToleranceRequest is the optional tolerance of a rule
// @Description Amount tolerance and date window in days
type ToleranceRequest struct {
	Amount   *decimal.Decimal `json:"amount" swaggertype:"string" example:"1.00"`
	DateDays *int             `json:"date_days" binding:"omitempty,min=0,max=366" example:"3"`
}

// CreateRuleRequest represents a request to create a matching rule
// @Description Request body for creating a matching rule
type CreateRuleRequest struct {
	Name        string           `json:"name" binding:"required,max=200" example:"Reference and amount"`
	Priority    int              `json:"priority" binding:"min=0" example:"10"`
	MatchFields []string         `json:"match_fields" binding:"required,min=1,dive,match_field" example:"reference_number,amount"`
	Tolerance   ToleranceRequest `json:"tolerance"`
	Active      *bool            `json:"active" example:"true"`
}

// UpdateRuleRequest represents a request to patch a matching rule
// @Description Request body for updating a matching rule; absent fields are unchanged
type UpdateRuleRequest struct {
	Name        *string           `json:"name" binding:"omitempty,min=1,max=200"`
	Priority    *int              `json:"priority" binding:"omitempty,min=0"`
	MatchFields []string          `json:"match_fields" binding:"omitempty,min=1,dive,match_field"`
	Tolerance   *ToleranceRequest `json:"tolerance"`
	Active      *bool             `json:"active"`
}

// ListRules godoc
// @ID           listReconciliationRules
//
//	@Summary		List matching rules by priority
//	@Tags			reconciliation-rules
//	@Produce		json
//	@Success		200	{object}	APIResponse[[]recapp.RuleResponse]
//	@Security		BearerAuth
//	@Router			/reconciliation/rules/list [get]
func (h *ReconciliationHandler) ListRules(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}

	rules, err := h.service.ListRules(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rules)
}

// GetRule godoc
// @ID           getReconciliationRule
//
//	@Summary		Get a matching rule
//	@Tags			reconciliation-rules
//	@Produce		json
//	@Param			id	path		string	true	"Rule ID"	format(uuid)
//	@Success		200	{object}	APIResponse[recapp.RuleResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/rules/{id} [get]
func (h *ReconciliationHandler) GetRule(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	rule, err := h.service.GetRule(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// CreateRule godoc
// @ID           createReconciliationRule
//
//	@Summary		Create a matching rule
//	@Tags			reconciliation-rules
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateRuleRequest	true	"Rule"
//	@Success		201		{object}	APIResponse[recapp.RuleResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/rules [post]
func (h *ReconciliationHandler) CreateRule(c *gin.Context) {
	tenantID, userID, ok := h.identity(c)
	if !ok {
		return
	}

	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), tenantID, userID, recapp.CreateRuleRequest{
		Name:        req.Name,
		Priority:    req.Priority,
		MatchFields: req.MatchFields,
		Tolerance:   recapp.ToleranceInput{Amount: req.Tolerance.Amount, DateDays: req.Tolerance.DateDays},
		Active:      req.Active,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rule)
}

// UpdateRule godoc
// @ID           updateReconciliationRule
//
//	@Summary		Update a matching rule
//	@Tags			reconciliation-rules
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Rule ID"	format(uuid)
//	@Param			request	body		UpdateRuleRequest	true	"Changes"
//	@Success		200		{object}	APIResponse[recapp.RuleResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/rules/{id} [put]
func (h *ReconciliationHandler) UpdateRule(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	appReq := recapp.UpdateRuleRequest{
		Name:        req.Name,
		Priority:    req.Priority,
		MatchFields: req.MatchFields,
		Active:      req.Active,
	}
	if req.Tolerance != nil {
		appReq.Tolerance = &recapp.ToleranceInput{Amount: req.Tolerance.Amount, DateDays: req.Tolerance.DateDays}
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), tenantID, id, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// DeleteRule godoc
// @ID           deleteReconciliationRule
//
//	@Summary		Delete a matching rule
//	@Tags			reconciliation-rules
//	@Param			id	path	string	true	"Rule ID"	format(uuid)
//	@Success		204
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/rules/{id} [delete]
func (h *ReconciliationHandler) DeleteRule(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), tenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
