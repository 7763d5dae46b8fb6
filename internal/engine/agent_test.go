package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haloview/sentry-platform/internal/registry"
	"github.com/haloview/sentry-platform/pkg/config"
)

type recordingAlerts struct {
	reasons []AlertReason
}

func (r *recordingAlerts) HandleAlert(ctx context.Context, loc *registry.Location, reason AlertReason) error {
	r.reasons = append(r.reasons, reason)
	return nil
}

type staticSource struct {
	locations []registry.Location
}

func (s *staticSource) GetLocation(ctx context.Context, locationID string) (*registry.Location, error) {
	for i := range s.locations {
		if s.locations[i].LocationID == locationID {
			return &s.locations[i], nil
		}
	}
	return nil, fmt.Errorf("location not found: %s", locationID)
}

func (s *staticSource) EngineLocations(ctx context.Context) ([]registry.Location, error) {
	return s.locations, nil
}

func (s *staticSource) GetClient(ctx context.Context, clientID string) (*registry.Client, error) {
	return &registry.Client{ClientID: clientID, IsActive: true}, nil
}

func newEvaluationAgent(t *testing.T, loc *registry.Location, now time.Time) (*Agent, *Storage, *recordingAlerts) {
	t.Helper()

	storage, _ := newTestStorage(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	analyzer := NewAnalyzer(storage, logger)
	analyzer.now = func() time.Time { return now }

	alerts := &recordingAlerts{}
	agent := NewAgent(storage, analyzer, &staticSource{locations: []registry.Location{*loc}}, alerts, config.NewConfig(), logger)
	agent.now = func() time.Time { return now }

	return agent, storage, alerts
}

// fillRadar writes a full XeThru window of identical samples
func fillRadar(t *testing.T, storage *Storage, locationID string, movF, movS float64) {
	t.Helper()
	appendXeThru(t, storage, locationID, xethruWindow, movF, movS)
}

func TestEvaluateLocation_EntersInitialTimer(t *testing.T) {
	loc := testLocation()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	agent, storage, alerts := newEvaluationAgent(t, loc, now)
	ctx := context.Background()

	require.NoError(t, storage.AppendDoor(ctx, loc.LocationID, now.Add(-time.Second), DoorClosed))
	fillRadar(t, storage, loc.LocationID, 80, 10)

	require.NoError(t, agent.EvaluateLocation(ctx, loc))

	state, err := storage.CurrentState(ctx, loc.LocationID)
	require.NoError(t, err)
	assert.Equal(t, StateInitialTimer, state)
	assert.Empty(t, alerts.reasons)
}

func TestEvaluateLocation_NoDoorDataSkips(t *testing.T) {
	loc := testLocation()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	agent, storage, alerts := newEvaluationAgent(t, loc, now)
	ctx := context.Background()

	fillRadar(t, storage, loc.LocationID, 80, 10)

	require.NoError(t, agent.EvaluateLocation(ctx, loc))

	states, err := storage.StatesWithin(ctx, loc.LocationID, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Empty(t, states, "a location without door data must not transition")
	assert.Empty(t, alerts.reasons)
}

func TestEvaluateLocation_NoOpAppendsNothing(t *testing.T) {
	loc := testLocation()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	agent, storage, alerts := newEvaluationAgent(t, loc, now)
	ctx := context.Background()

	// Open door, idle machine: every rule resolves to the current state
	require.NoError(t, storage.AppendDoor(ctx, loc.LocationID, now.Add(-time.Second), DoorOpen))
	fillRadar(t, storage, loc.LocationID, 80, 10)

	require.NoError(t, agent.EvaluateLocation(ctx, loc))

	states, err := storage.StatesWithin(ctx, loc.LocationID, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Empty(t, states, "a no-op evaluation must not grow the state log")
	assert.Empty(t, alerts.reasons)
}

func TestEvaluateLocation_StillnessAlert(t *testing.T) {
	loc := testLocation()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	agent, storage, alerts := newEvaluationAgent(t, loc, now)
	ctx := context.Background()

	// Session entered five minutes ago, movement stopped three minutes ago
	require.NoError(t, storage.AppendState(ctx, loc.LocationID, now.Add(-5*time.Minute), StateInitialTimer))
	require.NoError(t, storage.AppendState(ctx, loc.LocationID, now.Add(-4*time.Minute), StateDurationTimer))
	require.NoError(t, storage.AppendState(ctx, loc.LocationID, now.Add(-3*time.Minute), StateStillnessTimer))
	require.NoError(t, storage.AppendDoor(ctx, loc.LocationID, now.Add(-6*time.Minute), DoorClosed))
	fillRadar(t, storage, loc.LocationID, 5, 5)

	require.NoError(t, agent.EvaluateLocation(ctx, loc))

	state, err := storage.CurrentState(ctx, loc.LocationID)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)
	assert.Equal(t, []AlertReason{AlertStillness}, alerts.reasons)
}

func TestEvaluateLocation_OpenDoorResets(t *testing.T) {
	loc := testLocation()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	agent, storage, alerts := newEvaluationAgent(t, loc, now)
	ctx := context.Background()

	require.NoError(t, storage.AppendState(ctx, loc.LocationID, now.Add(-time.Minute), StateDurationTimer))
	require.NoError(t, storage.AppendDoor(ctx, loc.LocationID, now.Add(-time.Second), DoorOpen))
	fillRadar(t, storage, loc.LocationID, 80, 10)

	require.NoError(t, agent.EvaluateLocation(ctx, loc))

	state, err := storage.CurrentState(ctx, loc.LocationID)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state)
	assert.Empty(t, alerts.reasons)
}

func TestInflightGuard(t *testing.T) {
	loc := testLocation()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	agent, _, _ := newEvaluationAgent(t, loc, now)

	require.True(t, agent.beginEvaluation("loc-1"))
	assert.False(t, agent.beginEvaluation("loc-1"), "re-entrant evaluation must be refused")

	agent.endEvaluation("loc-1")
	assert.True(t, agent.beginEvaluation("loc-1"))
}
