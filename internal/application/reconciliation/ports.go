package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockNotObtained is returned by a Locker when the key is held elsewhere
var ErrLockNotObtained = errors.New("lock not obtained")

// Locker hands out short-lived exclusive locks
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lock
type Lock interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// WorkbookRenderer turns a reconciliation detail into a spreadsheet
type WorkbookRenderer interface {
	Render(detail *ReconciliationDetailResponse) ([]byte, error)
	ContentType() string
	Extension() string
}

// ObjectStorage stores archived documents
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Metrics records reconciliation activity
type Metrics interface {
	RecordMatchCreated(ctx context.Context, tenantID uuid.UUID, matchType string, auto bool)
	RecordMatchConflict(ctx context.Context, tenantID uuid.UUID)
	RecordAutoMatch(ctx context.Context, tenantID uuid.UUID, duration time.Duration, matched, skipped int)
	RecordExceptionRaised(ctx context.Context, tenantID uuid.UUID, category string)
}

type noopMetrics struct{}

func (noopMetrics) RecordMatchCreated(context.Context, uuid.UUID, string, bool)          {}
func (noopMetrics) RecordMatchConflict(context.Context, uuid.UUID)                       {}
func (noopMetrics) RecordAutoMatch(context.Context, uuid.UUID, time.Duration, int, int) {}
func (noopMetrics) RecordExceptionRaised(context.Context, uuid.UUID, string)             {}
