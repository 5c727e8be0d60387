package handler

import (
	"errors"
	"net/http"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/erp/reconciliation/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// identity returns the authenticated tenant and user, or writes a 401
func (h *BaseHandler) identity(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		h.Unauthorized(c, "Tenant ID not found in context")
		return uuid.Nil, uuid.Nil, false
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.Unauthorized(c, "User ID not found in context")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, userID, true
}

// pathID parses a UUID path parameter, or writes a 400
func (h *BaseHandler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// ValidationError sends a 400 response describing binding failures
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// HandleError renders domain errors with their mapped status and hides
// everything else behind ERR_INTERNAL.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.GetHTTPStatus(domainErr.Code), domainErr.Code, domainErr.Message)
		return
	}

	logger.GetGinLogger(c).Error("Unhandled error", zap.Error(err))
	_ = c.Error(err)
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}
