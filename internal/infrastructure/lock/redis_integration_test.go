//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	appreconciliation "github.com/erp/reconciliation/internal/application/reconciliation"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLocker_Integration(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, WithKeyPrefix("test:"))

	held, err := locker.Obtain(ctx, "reconciliation:auto-match:t1", time.Second)
	require.NoError(t, err)

	exists, err := client.Exists(ctx, "test:reconciliation:auto-match:t1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	_, err = locker.Obtain(ctx, "reconciliation:auto-match:t1", time.Second)
	assert.ErrorIs(t, err, appreconciliation.ErrLockNotObtained)

	require.NoError(t, held.Refresh(ctx, 2*time.Second))
	require.NoError(t, held.Release(ctx))
	require.NoError(t, held.Release(ctx))

	again, err := locker.Obtain(ctx, "reconciliation:auto-match:t1", time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
