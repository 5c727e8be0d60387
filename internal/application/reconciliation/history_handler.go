package reconciliation

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"go.uber.org/zap"
)

// HistoryRecorder appends audit rows for reconciliation events.
// Recording is best effort: a failed append is logged and swallowed.
type HistoryRecorder struct {
	historyRepo reconciliation.HistoryRepository
	logger      *zap.Logger
}

// NewHistoryRecorder creates a handler that writes the audit trail
func NewHistoryRecorder(historyRepo reconciliation.HistoryRepository, logger *zap.Logger) *HistoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRecorder{
		historyRepo: historyRepo,
		logger:      logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *HistoryRecorder) EventTypes() []string {
	return []string{
		reconciliation.EventTypeReconciliationCreated,
		reconciliation.EventTypeReconciliationUpdated,
		reconciliation.EventTypeReconciliationFinalized,
		reconciliation.EventTypeReconciliationCancelled,
		reconciliation.EventTypeReconciliationMatched,
		reconciliation.EventTypeExceptionResolved,
	}
}

// Handle appends one history row for the event
func (h *HistoryRecorder) Handle(ctx context.Context, event shared.DomainEvent) error {
	he, ok := event.(reconciliation.HistoryEvent)
	if !ok {
		h.logger.Warn("event does not carry history",
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	row := reconciliation.NewReconciliationHistory(
		he.TenantID(),
		he.AggregateID(),
		he.HistoryAction(),
		he.Actor(),
		he.HistoryDetails(),
	)
	if err := h.historyRepo.Append(ctx, row); err != nil {
		h.logger.Error("failed to record reconciliation history",
			zap.String("reconciliation_id", he.AggregateID().String()),
			zap.String("action", string(he.HistoryAction())),
			zap.Error(err),
		)
	}
	return nil
}

var _ shared.EventHandler = (*HistoryRecorder)(nil)
