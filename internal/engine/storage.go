package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/haloview/sentry-platform/internal/timeseries"
	"github.com/haloview/sentry-platform/pkg/redis"
)

// Storage wraps the per-location streams the engine reads and writes:
// door readings, radar readings, and the state machine's own history.
type Storage struct {
	store  *timeseries.Store
	logger *slog.Logger
}

// NewStorage creates a stream accessor for the engine
func NewStorage(store *timeseries.Store, logger *slog.Logger) *Storage {
	return &Storage{
		store:  store,
		logger: logger,
	}
}

// AppendDoor appends one decoded door reading
func (s *Storage) AppendDoor(ctx context.Context, locationID string, at time.Time, signal DoorSignal) error {
	return s.store.Append(ctx, redis.DoorStreamKey(locationID), at, DoorEntry{Signal: signal})
}

// AppendRadar appends one raw radar sample. The payload shape depends on
// the location's radar type and is decoded on read.
func (s *Storage) AppendRadar(ctx context.Context, locationID string, at time.Time, sample json.RawMessage) error {
	return s.store.Append(ctx, redis.RadarStreamKey(locationID), at, sample)
}

// AppendState appends one state transition. Callers append only on an
// actual state change, never on a no-op evaluation.
func (s *Storage) AppendState(ctx context.Context, locationID string, at time.Time, state State) error {
	return s.store.Append(ctx, redis.StateStreamKey(locationID), at, StateEntry{State: state})
}

// CurrentState returns the most recent recorded state for a location.
// A location with no history starts at IDLE. An unrecognized entry is a
// data discrepancy: it is logged and treated as the IDLE baseline rather
// than corrected destructively.
func (s *Storage) CurrentState(ctx context.Context, locationID string) (State, error) {
	entries, err := s.store.MostRecent(ctx, redis.StateStreamKey(locationID), 1)
	if err != nil {
		return StateIdle, fmt.Errorf("failed to read current state for %s: %w", locationID, err)
	}
	if len(entries) == 0 {
		return StateIdle, nil
	}

	var entry StateEntry
	if err := entries[0].Decode(&entry); err != nil {
		s.logger.Warn("Discrepancy: malformed state entry, treating as IDLE",
			"location_id", locationID, "error", err)
		return StateIdle, nil
	}
	if !KnownState(entry.State) {
		s.logger.Warn("Discrepancy: unrecognized state in log, treating as IDLE",
			"location_id", locationID, "state", string(entry.State))
		return StateIdle, nil
	}

	return entry.State, nil
}

// LatestDoorSignal returns the most recent door reading for a location.
// The second return is false when the door stream is empty.
func (s *Storage) LatestDoorSignal(ctx context.Context, locationID string) (DoorSignal, bool, error) {
	entries, err := s.store.MostRecent(ctx, redis.DoorStreamKey(locationID), 1)
	if err != nil {
		return "", false, fmt.Errorf("failed to read door signal for %s: %w", locationID, err)
	}
	if len(entries) == 0 {
		return "", false, nil
	}

	var entry DoorEntry
	if err := entries[0].Decode(&entry); err != nil {
		return "", false, fmt.Errorf("malformed door entry for %s: %w", locationID, err)
	}

	return entry.Signal, true, nil
}

// RecentRadar returns up to count radar entries, newest first
func (s *Storage) RecentRadar(ctx context.Context, locationID string, count int64) ([]timeseries.Entry, error) {
	return s.store.MostRecent(ctx, redis.RadarStreamKey(locationID), count)
}

// StatesWithin returns the recorded states in [from, to], oldest first
func (s *Storage) StatesWithin(ctx context.Context, locationID string, from, to time.Time) ([]State, error) {
	entries, err := s.store.Range(ctx, redis.StateStreamKey(locationID), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read state window for %s: %w", locationID, err)
	}

	states := make([]State, 0, len(entries))
	for _, e := range entries {
		var entry StateEntry
		if err := e.Decode(&entry); err != nil {
			s.logger.Warn("Discrepancy: malformed state entry in window",
				"location_id", locationID, "error", err)
			continue
		}
		states = append(states, entry.State)
	}

	return states, nil
}
