package redis

import (
	"context"
	"testing"
	"time"

	"EquiSaddles/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestPresenceLifecycle(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, client.MarkAdminOnline(ctx, "admin-1", PresenceInfo{Email: "owner@equisaddles.com", ConnectedAt: now}))
	require.NoError(t, client.MarkCustomerOnline(ctx, "conn-1", PresenceInfo{SessionID: "sess-1", Name: "Alice", ConnectedAt: now}))

	presence, err := client.GetPresence(ctx)
	require.NoError(t, err)
	require.Len(t, presence.Admins, 1)
	require.Len(t, presence.Customers, 1)
	assert.Equal(t, "sess-1", presence.Customers["conn-1"].SessionID)
	assert.True(t, presence.Admins["admin-1"].ConnectedAt.Equal(now))

	assert.Equal(t, presenceTTL, mr.TTL(customersKey))

	require.NoError(t, client.MarkOffline(ctx, "conn-1"))
	presence, err = client.GetPresence(ctx)
	require.NoError(t, err)
	assert.Empty(t, presence.Customers)
	assert.Len(t, presence.Admins, 1)
}

func TestPresenceExpires(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, client.MarkAdminOnline(ctx, "admin-1", PresenceInfo{}))

	mr.FastForward(presenceTTL + time.Second)

	presence, err := client.GetPresence(ctx)
	require.NoError(t, err)
	assert.Empty(t, presence.Admins)
}

func TestPresenceSkipsUndecodableEntries(t *testing.T) {
	client, mr := newTestClient(t)
	mr.HSet(customersKey, "broken", "not json")

	presence, err := client.GetPresence(context.Background())
	require.NoError(t, err)
	assert.Empty(t, presence.Customers)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
