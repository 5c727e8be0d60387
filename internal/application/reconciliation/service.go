package reconciliation

import (
	"context"
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultAutoMatchMaxEntries caps the pending pool of one auto-match pass
	DefaultAutoMatchMaxEntries = 5000
	// DefaultLockTTL is the lifetime of the per-business auto-match lock
	DefaultLockTTL = 30 * time.Second
	// RecentHistoryLimit is the number of history rows returned with a detail
	RecentHistoryLimit = 10

	autoMatchNotePrefix = "auto-match: "
)

// Service orchestrates reconciliation sessions, matching rules, matches,
// allocations and exceptions for a business.
type Service struct {
	repos      Repositories
	txScope    TransactionScope
	matcher    *reconciliation.Matcher
	locker     Locker
	publisher  shared.EventPublisher
	renderer   WorkbookRenderer
	metrics    Metrics
	logger     *zap.Logger
	maxEntries int
	lockTTL    time.Duration
	now        func() time.Time
}

// ServiceOption configures the Service
type ServiceOption func(*Service)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventPublisher sets the publisher for domain events
func WithEventPublisher(publisher shared.EventPublisher) ServiceOption {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithWorkbookRenderer sets the export renderer
func WithWorkbookRenderer(renderer WorkbookRenderer) ServiceOption {
	return func(s *Service) {
		s.renderer = renderer
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(metrics Metrics) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithAutoMatchLimits sets the pending pool cap and the lock TTL
func WithAutoMatchLimits(maxEntries int, lockTTL time.Duration) ServiceOption {
	return func(s *Service) {
		if maxEntries > 0 {
			s.maxEntries = maxEntries
		}
		if lockTTL > 0 {
			s.lockTTL = lockTTL
		}
	}
}

// NewService creates the reconciliation service
func NewService(repos Repositories, txScope TransactionScope, locker Locker, opts ...ServiceOption) *Service {
	s := &Service{
		repos:      repos,
		txScope:    txScope,
		matcher:    reconciliation.NewMatcher(),
		locker:     locker,
		metrics:    noopMetrics{},
		logger:     zap.NewNop(),
		maxEntries: DefaultAutoMatchMaxEntries,
		lockTTL:    DefaultLockTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publish hands events to the bus after the transaction committed.
// Subscribers are best effort; their failures never fail the operation.
func (s *Service) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish reconciliation events",
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
	}
}

// recomputeStatistics refreshes the derived counters of r inside the current transaction
func (s *Service) recomputeStatistics(ctx context.Context, repos TransactionalRepositories, r *reconciliation.Reconciliation) error {
	matchCount, matchedAmount, err := repos.MatchRepo().Summarize(ctx, r.TenantID, r.ID)
	if err != nil {
		return err
	}
	pendingCount, pendingAmount, err := repos.EntryRepo().SummarizePending(ctx, r.TenantID, r.PeriodStart, r.PeriodEnd)
	if err != nil {
		return err
	}
	r.ApplyStatistics(reconciliation.Statistics{
		MatchCount:    matchCount,
		MatchedAmount: matchedAmount,
		PendingCount:  pendingCount,
		PendingAmount: pendingAmount,
	})
	return nil
}

func autoMatchLockKey(tenantID uuid.UUID) string {
	return "reconciliation:auto-match:" + tenantID.String()
}
