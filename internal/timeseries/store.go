package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/haloview/sentry-platform/pkg/redis"
)

// Entry is one immutable reading in a stream. The timestamp doubles as
// the store-assigned identifier (sorted set score, milliseconds).
type Entry struct {
	At      time.Time
	Payload []byte
}

// record is the stored member shape. The timestamp rides inside the
// member so byte-identical payloads written at different times remain
// distinct sorted-set entries; a bare payload would make ZADD collapse
// them into one member and only move its score.
type record struct {
	At   int64           `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the entry payload into v
func (e Entry) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode entry at %s: %w", e.At.Format(time.RFC3339), err)
	}
	return nil
}

// Store is an append-only, per-location-per-sensor log of readings backed
// by Redis sorted sets. Writes are durable before Append returns; there
// is no update or delete surface.
type Store struct {
	redis     redis.Client
	retention time.Duration
	logger    *slog.Logger
}

// NewStore creates a stream store with the given retention window
func NewStore(redisClient redis.Client, retention time.Duration, logger *slog.Logger) *Store {
	return &Store{
		redis:     redisClient,
		retention: retention,
		logger:    logger,
	}
}

// Append writes one entry to a stream at the given time and prunes
// entries that have aged out of the retention window
func (s *Store) Append(ctx context.Context, stream string, at time.Time, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal entry for %s: %w", stream, err)
	}

	member, err := json.Marshal(record{At: at.UnixMilli(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal entry for %s: %w", stream, err)
	}

	score := float64(at.UnixMilli())
	if err := s.redis.ZAdd(ctx, stream, score, member); err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}

	// Prune aged-out entries. Best effort: a failed prune never loses the
	// write that just happened.
	cutoff := at.Add(-s.retention).UnixMilli()
	if err := s.redis.ZRemRangeByScore(ctx, stream, "-inf", strconv.FormatInt(cutoff, 10)); err != nil {
		s.logger.Warn("Failed to prune stream", "stream", stream, "error", err)
	}
	if err := s.redis.Expire(ctx, stream, s.retention); err != nil {
		s.logger.Warn("Failed to set TTL on stream", "stream", stream, "error", err)
	}

	return nil
}

// Range returns entries within [from, to], oldest first
func (s *Store) Range(ctx context.Context, stream string, from, to time.Time) ([]Entry, error) {
	members, err := s.redis.ZRangeByScoreWithScores(ctx, stream, float64(from.UnixMilli()), float64(to.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("failed to range stream %s: %w", stream, err)
	}
	return convertEntries(members), nil
}

// MostRecent returns up to count entries, newest first
func (s *Store) MostRecent(ctx context.Context, stream string, count int64) ([]Entry, error) {
	members, err := s.redis.ZRevRangeByScoreWithScores(ctx, stream, math.Inf(1), math.Inf(-1), 0, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read newest entries of stream %s: %w", stream, err)
	}
	return convertEntries(members), nil
}

// Count returns the number of entries currently retained in a stream
func (s *Store) Count(ctx context.Context, stream string) (int64, error) {
	count, err := s.redis.ZCard(ctx, stream)
	if err != nil {
		return 0, fmt.Errorf("failed to count stream %s: %w", stream, err)
	}
	return count, nil
}

func convertEntries(members []redis.ZMember) []Entry {
	entries := make([]Entry, len(members))
	for i, m := range members {
		at := time.UnixMilli(int64(m.Score))
		payload := []byte(m.Member)
		// Members written before the record wrapper existed carry the
		// payload bare; hand those through with the score as timestamp.
		var rec record
		if err := json.Unmarshal(payload, &rec); err == nil && rec.Data != nil {
			at = time.UnixMilli(rec.At)
			payload = rec.Data
		}
		entries[i] = Entry{At: at, Payload: payload}
	}
	return entries
}
