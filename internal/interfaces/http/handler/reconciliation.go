package handler

import (
	"net/http"
	"strconv"
	"time"

	recapp "github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// dateLayout is the wire format of period and entry dates
const dateLayout = "2006-01-02"

// ReconciliationHandler handles the /reconciliation endpoints
type ReconciliationHandler struct {
	BaseHandler
	service *recapp.Service
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(service *recapp.Service) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

// CreateReconciliationRequest represents a request to open a reconciliation
// @Description Request body for creating a draft reconciliation
type CreateReconciliationRequest struct {
	Type        string `json:"type" binding:"required,max=50" example:"bank"`
	Name        string `json:"name" binding:"required,max=200" example:"March bank clearing"`
	PeriodStart string `json:"period_start" binding:"required,datetime=2006-01-02" example:"2024-03-01"`
	PeriodEnd   string `json:"period_end" binding:"required,datetime=2006-01-02" example:"2024-03-31"`
	Notes       string `json:"notes" binding:"max=2000"`
}

// UpdateReconciliationRequest represents a request to patch a reconciliation header
// @Description Request body for updating a reconciliation; absent fields are unchanged
type UpdateReconciliationRequest struct {
	Type        *string `json:"type" binding:"omitempty,min=1,max=50"`
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	PeriodStart *string `json:"period_start" binding:"omitempty,datetime=2006-01-02"`
	PeriodEnd   *string `json:"period_end" binding:"omitempty,datetime=2006-01-02"`
	Notes       *string `json:"notes" binding:"omitempty,max=2000"`
}

// ListReconciliationsQuery holds the list filters
type ListReconciliationsQuery struct {
	Type   string `form:"type"`
	Status string `form:"status" binding:"omitempty,oneof=draft in_progress finalized cancelled"`
	From   string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To     string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	Search string `form:"search" binding:"max=200"`
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
}

// CreateMatchRequest represents a manual match
// @Description Source and target clearing entries to match
type CreateMatchRequest struct {
	ReconciliationID string   `json:"reconciliation_id" binding:"required,uuid"`
	SourceEntryIDs   []string `json:"source_entry_ids" binding:"required,min=1,dive,uuid"`
	TargetEntryIDs   []string `json:"target_entry_ids" binding:"required,min=1,dive,uuid"`
	Notes            string   `json:"notes" binding:"max=2000"`
}

// AutoMatchRequest represents an auto-match pass
// @Description Runs one rule, or every active rule by priority
type AutoMatchRequest struct {
	ReconciliationID string `json:"reconciliation_id" binding:"required,uuid"`
	RuleID           string `json:"rule_id" binding:"omitempty,uuid"`
}

// CreateAllocationRequest represents an allocation of part of an entry
// @Description Allocates an amount of a clearing entry to a target account
type CreateAllocationRequest struct {
	ReconciliationID string          `json:"reconciliation_id" binding:"required,uuid"`
	ClearingEntryID  string          `json:"clearing_entry_id" binding:"required,uuid"`
	TargetAccountID  string          `json:"target_account_id" binding:"required,uuid"`
	Amount           decimal.Decimal `json:"amount" swaggertype:"string" example:"250.00"`
	Notes            string          `json:"notes" binding:"max=2000"`
}

// RaiseExceptionRequest represents a manually raised exception
// @Description Records a discrepancy that must be resolved before finalizing
type RaiseExceptionRequest struct {
	Description string           `json:"description" binding:"required,max=2000"`
	EntryIDs    []string         `json:"entry_ids" binding:"omitempty,dive,uuid"`
	Amount      *decimal.Decimal `json:"amount" swaggertype:"string"`
}

// ResolveExceptionRequest represents an exception resolution
// @Description Resolution text and optional re-categorisation
type ResolveExceptionRequest struct {
	Resolution string `json:"resolution" binding:"required,max=2000"`
	Category   string `json:"category" binding:"omitempty,oneof=tolerance_exceeded over_allocation manual"`
}

// List godoc
// @ID           listReconciliations
//
//	@Summary		List reconciliations
//	@Tags			reconciliation
//	@Produce		json
//	@Param			type	query		string	false	"Reconciliation type"
//	@Param			status	query		string	false	"Status"	Enums(draft, in_progress, finalized, cancelled)
//	@Param			from	query		string	false	"Period overlaps from (YYYY-MM-DD)"
//	@Param			to		query		string	false	"Period overlaps to (YYYY-MM-DD)"
//	@Param			search	query		string	false	"Name contains"
//	@Param			page	query		int		false	"Page"	default(1)
//	@Param			limit	query		int		false	"Page size"	default(20)	maximum(100)
//	@Success		200		{object}	APIResponse[[]recapp.ReconciliationResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation [get]
func (h *ReconciliationHandler) List(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}

	var q ListReconciliationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}

	filter := recapp.ReconciliationListFilter{
		Type:     q.Type,
		Status:   q.Status,
		From:     parseOptionalDate(q.From),
		To:       parseOptionalDate(q.To),
		Search:   q.Search,
		Page:     q.Page,
		PageSize: q.Limit,
	}
	page, err := h.service.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Create godoc
// @ID           createReconciliation
//
//	@Summary		Create a draft reconciliation
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateReconciliationRequest	true	"Reconciliation"
//	@Success		201		{object}	APIResponse[recapp.ReconciliationResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation [post]
func (h *ReconciliationHandler) Create(c *gin.Context) {
	tenantID, userID, ok := h.identity(c)
	if !ok {
		return
	}

	var req CreateReconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.service.Create(c.Request.Context(), tenantID, userID, recapp.CreateReconciliationRequest{
		Type:        req.Type,
		Name:        req.Name,
		PeriodStart: mustParseDate(req.PeriodStart),
		PeriodEnd:   mustParseDate(req.PeriodEnd),
		Notes:       req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Get godoc
// @ID           getReconciliation
//
//	@Summary		Get a reconciliation with its matches, allocations, exceptions and recent history
//	@Tags			reconciliation
//	@Produce		json
//	@Param			id	path		string	true	"Reconciliation ID"	format(uuid)
//	@Success		200	{object}	APIResponse[recapp.ReconciliationDetailResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/{id} [get]
func (h *ReconciliationHandler) Get(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.service.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, detail)
}

// Update godoc
// @ID           updateReconciliation
//
//	@Summary		Update a reconciliation header
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Reconciliation ID"	format(uuid)
//	@Param			request	body		UpdateReconciliationRequest	true	"Changes"
//	@Success		200		{object}	APIResponse[recapp.ReconciliationResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/{id} [put]
func (h *ReconciliationHandler) Update(c *gin.Context) {
	tenantID, userID, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req UpdateReconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	appReq := recapp.UpdateReconciliationRequest{
		Type:  req.Type,
		Name:  req.Name,
		Notes: req.Notes,
	}
	if req.PeriodStart != nil {
		start := mustParseDate(*req.PeriodStart)
		appReq.PeriodStart = &start
	}
	if req.PeriodEnd != nil {
		end := mustParseDate(*req.PeriodEnd)
		appReq.PeriodEnd = &end
	}

	resp, err := h.service.Update(c.Request.Context(), tenantID, userID, id, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Finalize godoc
// @ID           finalizeReconciliation
//
//	@Summary		Finalize a reconciliation
//	@Description	Refused while exceptions are unresolved
//	@Tags			reconciliation
//	@Produce		json
//	@Param			id	path		string	true	"Reconciliation ID"	format(uuid)
//	@Success		200	{object}	APIResponse[recapp.ReconciliationResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Failure		422	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/{id}/finalize [post]
func (h *ReconciliationHandler) Finalize(c *gin.Context) {
	tenantID, userID, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.Finalize(c.Request.Context(), tenantID, userID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Cancel godoc
// @ID           cancelReconciliation
//
//	@Summary		Cancel a reconciliation and release its entries
//	@Tags			reconciliation
//	@Produce		json
//	@Param			id	path		string	true	"Reconciliation ID"	format(uuid)
//	@Success		200	{object}	APIResponse[recapp.ReconciliationResponse]
//	@Failure		400	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/{id}/cancel [post]
func (h *ReconciliationHandler) Cancel(c *gin.Context) {
	tenantID, userID, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.Cancel(c.Request.Context(), tenantID, userID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// CreateMatch godoc
// @ID           createMatch
//
//	@Summary		Match source entries against target entries
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateMatchRequest	true	"Match"
//	@Success		201		{object}	APIResponse[recapp.MatchResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/match [post]
func (h *ReconciliationHandler) CreateMatch(c *gin.Context) {
	tenantID, userID, ok := h.identity(c)
	if !ok {
		return
	}

	var req CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.service.CreateMatch(c.Request.Context(), tenantID, userID, recapp.CreateMatchRequest{
		ReconciliationID: uuid.MustParse(req.ReconciliationID),
		SourceEntryIDs:   mustParseIDs(req.SourceEntryIDs),
		TargetEntryIDs:   mustParseIDs(req.TargetEntryIDs),
		Notes:            req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// AutoMatch godoc
// @ID           autoMatch
//
//	@Summary		Run the matching rules over pending entries
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AutoMatchRequest	true	"Auto-match"
//	@Success		200		{object}	APIResponse[recapp.AutoMatchResponse]
//	@Failure		409		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/auto-match [post]
func (h *ReconciliationHandler) AutoMatch(c *gin.Context) {
	tenantID, userID, ok := h.identity(c)
	if !ok {
		return
	}

	var req AutoMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	appReq := recapp.AutoMatchRequest{ReconciliationID: uuid.MustParse(req.ReconciliationID)}
	if req.RuleID != "" {
		ruleID := uuid.MustParse(req.RuleID)
		appReq.RuleID = &ruleID
	}

	resp, err := h.service.AutoMatch(c.Request.Context(), tenantID, userID, appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Allocate godoc
// @ID           createAllocation
//
//	@Summary		Allocate part of a clearing entry to a target account
//	@Description	Allocating more than the entry's open amount raises an over_allocation exception
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateAllocationRequest	true	"Allocation"
//	@Success		201		{object}	APIResponse[recapp.AllocationResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/allocate [post]
func (h *ReconciliationHandler) Allocate(c *gin.Context) {
	tenantID, userID, ok := h.identity(c)
	if !ok {
		return
	}

	var req CreateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.service.CreateAllocation(c.Request.Context(), tenantID, userID, recapp.CreateAllocationRequest{
		ReconciliationID: uuid.MustParse(req.ReconciliationID),
		ClearingEntryID:  uuid.MustParse(req.ClearingEntryID),
		TargetAccountID:  uuid.MustParse(req.TargetAccountID),
		Amount:           req.Amount,
		Notes:            req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// FindExceptions godoc
// @ID           findExceptions
//
//	@Summary		List the exceptions of a reconciliation
//	@Tags			reconciliation
//	@Produce		json
//	@Param			id	path		string	true	"Reconciliation ID"	format(uuid)
//	@Success		200	{object}	APIResponse[[]recapp.ExceptionResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/{id}/exceptions [get]
func (h *ReconciliationHandler) FindExceptions(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	exceptions, err := h.service.FindExceptions(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, exceptions)
}

// RaiseException godoc
// @ID           raiseException
//
//	@Summary		Raise a manual exception
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Reconciliation ID"	format(uuid)
//	@Param			request	body		RaiseExceptionRequest	true	"Exception"
//	@Success		201		{object}	APIResponse[recapp.ExceptionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/{id}/exceptions [post]
func (h *ReconciliationHandler) RaiseException(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req RaiseExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.service.RaiseException(c.Request.Context(), tenantID, id, recapp.RaiseExceptionRequest{
		Description: req.Description,
		EntryIDs:    mustParseIDs(req.EntryIDs),
		Amount:      req.Amount,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ResolveException godoc
// @ID           resolveException
//
//	@Summary		Resolve an exception
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Exception ID"	format(uuid)
//	@Param			request	body		ResolveExceptionRequest	true	"Resolution"
//	@Success		200		{object}	APIResponse[recapp.ExceptionResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/exceptions/{id}/resolve [post]
func (h *ReconciliationHandler) ResolveException(c *gin.Context) {
	tenantID, userID, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req ResolveExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.service.ResolveException(c.Request.Context(), tenantID, userID, id, recapp.ResolveExceptionRequest{
		Resolution: req.Resolution,
		Category:   req.Category,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// GetStatistics godoc
// @ID           getReconciliationStatistics
//
//	@Summary		Reconciliation counts by status and type
//	@Tags			reconciliation
//	@Produce		json
//	@Success		200	{object}	APIResponse[recapp.StatisticsResponse]
//	@Security		BearerAuth
//	@Router			/reconciliation/statistics [get]
func (h *ReconciliationHandler) GetStatistics(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}

	stats, err := h.service.GetStatistics(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// Export godoc
// @ID           exportReconciliation
//
//	@Summary		Download a reconciliation as an XLSX workbook
//	@Tags			reconciliation
//	@Produce		application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
//	@Param			id	path	string	true	"Reconciliation ID"	format(uuid)
//	@Success		200	{file}	binary
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/reconciliation/{id}/export [get]
func (h *ReconciliationHandler) Export(c *gin.Context) {
	tenantID, _, ok := h.identity(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	file, err := h.service.Export(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	c.Header("Content-Length", strconv.Itoa(len(file.Content)))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// Dates and IDs below were checked by binding tags before parsing.

func mustParseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := mustParseDate(s)
	return &t
}

func mustParseIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, len(raw))
	for i, r := range raw {
		ids[i] = uuid.MustParse(r)
	}
	return ids
}
