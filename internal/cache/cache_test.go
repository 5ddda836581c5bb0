package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/cache -v -count=1

func startRedis(t *testing.T) RefreshCache {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "6379/tcp")

	rc, err := NewRedisCache(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()), "test:rt:")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = rc.Close()
		_ = c.Terminate(context.Background())
	})
	return rc
}

func TestNewRedisCache_BadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisCache(context.Background(), "not-a-url", "")
	require.Error(t, err)
}

func TestIntegration_SetGet_RoundTrip(t *testing.T) {
	rc := startRedis(t)
	ctx := context.Background()

	uid := uuid.New()
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	_, ok, err := rc.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, rc.Set(ctx, "h1", &RefreshEntry{UserID: uid, ExpiresAt: exp}, time.Hour))

	e, ok, err := rc.Get(ctx, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uid, e.UserID)
	require.False(t, e.Revoked)
	require.True(t, exp.Equal(e.ExpiresAt))
	require.NoError(t, rc.Ping(ctx))
}

func TestIntegration_MarkRevoked(t *testing.T) {
	rc := startRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "h1", &RefreshEntry{UserID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}, time.Hour))
	require.NoError(t, rc.MarkRevoked(ctx, "h1"))

	e, ok, err := rc.Get(ctx, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, e.Revoked)

	// Отсутствующий ключ не создаётся.
	require.NoError(t, rc.MarkRevoked(ctx, "h2"))
	_, ok, err = rc.Get(ctx, "h2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIntegration_Set_ExpiresByTTL(t *testing.T) {
	rc := startRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "short", &RefreshEntry{UserID: uuid.New(), ExpiresAt: time.Now()}, time.Second))
	require.Eventually(t, func() bool {
		_, ok, err := rc.Get(ctx, "short")
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)
}
