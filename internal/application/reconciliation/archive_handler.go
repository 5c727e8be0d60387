package reconciliation

import (
	"context"
	"fmt"
	"path"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exporter renders a reconciliation export
type Exporter interface {
	Export(ctx context.Context, tenantID, id uuid.UUID) (*ExportFile, error)
}

// FinalizedArchiver stores the workbook of every finalized reconciliation
// in object storage under <prefix>/<tenant>/<reconciliation>/<file>.
type FinalizedArchiver struct {
	exporter Exporter
	storage  ObjectStorage
	prefix   string
	logger   *zap.Logger
}

// NewFinalizedArchiver creates the archive handler
func NewFinalizedArchiver(exporter Exporter, storage ObjectStorage, prefix string, logger *zap.Logger) *FinalizedArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "reconciliations"
	}
	return &FinalizedArchiver{
		exporter: exporter,
		storage:  storage,
		prefix:   prefix,
		logger:   logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (a *FinalizedArchiver) EventTypes() []string {
	return []string{reconciliation.EventTypeReconciliationFinalized}
}

// Handle exports and uploads the finalized reconciliation
func (a *FinalizedArchiver) Handle(ctx context.Context, event shared.DomainEvent) error {
	file, err := a.exporter.Export(ctx, event.TenantID(), event.AggregateID())
	if err != nil {
		return fmt.Errorf("failed to export finalized reconciliation: %w", err)
	}

	key := ArchiveKey(a.prefix, event.TenantID(), event.AggregateID(), file.FileName)
	if err := a.storage.Upload(ctx, key, file.Content, file.ContentType); err != nil {
		return fmt.Errorf("failed to archive finalized reconciliation: %w", err)
	}

	a.logger.Info("finalized reconciliation archived",
		zap.String("reconciliation_id", event.AggregateID().String()),
		zap.String("key", key),
		zap.Int("bytes", len(file.Content)),
	)
	return nil
}

// ArchiveKey builds the object key of an archived workbook
func ArchiveKey(prefix string, tenantID, reconciliationID uuid.UUID, fileName string) string {
	return path.Join(prefix, tenantID.String(), reconciliationID.String(), fileName)
}

var _ shared.EventHandler = (*FinalizedArchiver)(nil)
