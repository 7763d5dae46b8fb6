package engine

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haloview/sentry-platform/internal/timeseries"
	"github.com/haloview/sentry-platform/pkg/config"
	"github.com/haloview/sentry-platform/pkg/redis"
)

func newTestStorage(t *testing.T) (*Storage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.RedisHost = host
	cfg.RedisPort = port

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := redis.NewClient(cfg, logger)
	t.Cleanup(func() { _ = client.Close() })

	store := timeseries.NewStore(client, 24*time.Hour, logger)
	return NewStorage(store, logger), mr
}

func TestCurrentState_EmptyHistoryIsIdle(t *testing.T) {
	ctx := context.Background()
	storage, _ := newTestStorage(t)

	state, err := storage.CurrentState(ctx, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)
}

func TestCurrentState_ReturnsNewestEntry(t *testing.T) {
	ctx := context.Background()
	storage, _ := newTestStorage(t)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.AppendState(ctx, "loc-1", base, StateInitialTimer))
	require.NoError(t, storage.AppendState(ctx, "loc-1", base.Add(20*time.Second), StateDurationTimer))

	state, err := storage.CurrentState(ctx, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, StateDurationTimer, state)
}

func TestCurrentState_UnrecognizedEntryFallsBackToIdle(t *testing.T) {
	ctx := context.Background()
	storage, mr := newTestStorage(t)

	// A legacy writer left an entry this build does not recognize
	mr.ZAdd(redis.StateStreamKey("loc-1"), float64(time.Now().UnixMilli()), `{"state":"LEGACY"}`)

	state, err := storage.CurrentState(ctx, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)
}

func TestLatestDoorSignal(t *testing.T) {
	ctx := context.Background()
	storage, _ := newTestStorage(t)

	_, ok, err := storage.LatestDoorSignal(ctx, "loc-1")
	require.NoError(t, err)
	assert.False(t, ok, "expected no signal before any door reading")

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.AppendDoor(ctx, "loc-1", base, DoorOpen))
	require.NoError(t, storage.AppendDoor(ctx, "loc-1", base.Add(time.Second), DoorClosed))

	signal, ok, err := storage.LatestDoorSignal(ctx, "loc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DoorClosed, signal)
}

func TestStatesWithin_OldestFirst(t *testing.T) {
	ctx := context.Background()
	storage, _ := newTestStorage(t)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.AppendState(ctx, "loc-1", base, StateInitialTimer))
	require.NoError(t, storage.AppendState(ctx, "loc-1", base.Add(15*time.Second), StateDurationTimer))
	require.NoError(t, storage.AppendState(ctx, "loc-1", base.Add(25*time.Minute), StateStillnessTimer))

	states, err := storage.StatesWithin(ctx, "loc-1", base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []State{StateInitialTimer, StateDurationTimer}, states)
}
