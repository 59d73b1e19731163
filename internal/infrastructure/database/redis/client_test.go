package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/kgeval/pkg/errors"
)

func TestNewClient_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := NewClient(context.Background(), config.RedisConfig{Addr: addr}, logging.NewNopLogger())
	assert.Nil(t, client)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeServiceUnavailable))
}

func TestClient_CloseTwice(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close())
	assert.ErrorIs(t, client.Ping(context.Background()), ErrClientClosed)
}

func TestDistanceCache_RoundTripOnMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer client.Close()

	cache := NewDistanceCache(client, nil)
	ctx := context.Background()

	_, ok, err := cache.GetDistance(ctx, "m:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.SetDistance(ctx, "m:1", 1.0/3))
	d, ok, err := cache.GetDistance(ctx, "m:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.0/3, d)
}
