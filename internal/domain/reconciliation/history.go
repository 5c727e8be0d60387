package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationHistory is an append-only audit record
type ReconciliationHistory struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ReconciliationID uuid.UUID
	Action           HistoryAction
	ActorID          *uuid.UUID
	Details          map[string]any
	CreatedAt        time.Time
}

// NewReconciliationHistory creates a history row
func NewReconciliationHistory(
	tenantID, reconciliationID uuid.UUID,
	action HistoryAction,
	actorID uuid.UUID,
	details map[string]any,
) *ReconciliationHistory {
	h := &ReconciliationHistory{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ReconciliationID: reconciliationID,
		Action:           action,
		Details:          details,
		CreatedAt:        time.Now().UTC(),
	}
	if actorID != uuid.Nil {
		h.ActorID = &actorID
	}
	if h.Details == nil {
		h.Details = map[string]any{}
	}
	return h
}
