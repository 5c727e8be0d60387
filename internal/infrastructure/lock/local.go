package lock

import (
	"context"
	"sync"
	"time"

	appreconciliation "github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/google/uuid"
)

// LocalLocker is an in-process Locker for single-instance deployments and
// tests. Expired locks may be taken over.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocalLocker creates an empty LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), clock: time.Now}
}

// Obtain takes key for ttl unless an unexpired holder exists
func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (appreconciliation.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, appreconciliation.ErrLockNotObtained
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLock{owner: l, key: key, token: token}, nil
}

type localLock struct {
	owner *LocalLocker
	key   string
	token string
}

func (ll *localLock) Refresh(_ context.Context, ttl time.Duration) error {
	l := ll.owner
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	e, ok := l.held[ll.key]
	if !ok || e.token != ll.token || !now.Before(e.expires) {
		return appreconciliation.ErrLockNotObtained
	}
	l.held[ll.key] = localEntry{token: ll.token, expires: now.Add(ttl)}
	return nil
}

func (ll *localLock) Release(context.Context) error {
	l := ll.owner
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.held[ll.key]; ok && e.token == ll.token {
		delete(l.held, ll.key)
	}
	return nil
}

var _ appreconciliation.Locker = (*LocalLocker)(nil)
