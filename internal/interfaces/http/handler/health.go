package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger checks connectivity; *sql.DB satisfies it
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthData reports service and database reachability
type HealthData struct {
	Status   string `json:"status" example:"ok"`
	Database string `json:"database" example:"up"`
}

// HealthHandler serves the liveness probe
type HealthHandler struct {
	BaseHandler
	db      Pinger
	timeout time.Duration
}

// NewHealthHandler creates a HealthHandler pinging db
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, timeout: 2 * time.Second}
}

// Health godoc
// @ID           health
//
//	@Summary		Liveness probe
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	APIResponse[HealthData]
//	@Failure		503	{object}	APIResponse[HealthData]
//	@Router			/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, APIResponse[HealthData]{
			Success: false,
			Data:    HealthData{Status: "degraded", Database: "down"},
		})
		return
	}
	h.Success(c, HealthData{Status: "ok", Database: "up"})
}
