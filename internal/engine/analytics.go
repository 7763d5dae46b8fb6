package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/haloview/sentry-platform/internal/registry"
	"github.com/haloview/sentry-platform/internal/timeseries"
)

// Radar smoothing windows, in samples. The Innosent modules report faster
// and noisier, so they get the wider window.
const (
	xethruWindow   = 15
	innosentWindow = 25
)

// Analyzer converts raw sensor streams into the debounced boolean signals
// the state machine consumes
type Analyzer struct {
	storage *Storage
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalyzer creates an analyzer over the engine's streams
func NewAnalyzer(storage *Storage, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// MovementAverageOverThreshold reports whether the location's recent radar
// window averages above its movement threshold. Fails closed: a partial
// window, a malformed sample or a read error all report "not moving".
func (a *Analyzer) MovementAverageOverThreshold(ctx context.Context, loc *registry.Location) bool {
	window := int64(xethruWindow)
	if loc.RadarType == registry.RadarTypeInnosent {
		window = innosentWindow
	}

	entries, err := a.storage.RecentRadar(ctx, loc.LocationID, window)
	if err != nil {
		a.logger.Warn("Failed to read radar window, reporting no movement",
			"location_id", loc.LocationID, "error", err)
		return false
	}
	if int64(len(entries)) < window {
		// Cold start: not enough samples to judge movement yet
		return false
	}

	switch loc.RadarType {
	case registry.RadarTypeInnosent:
		return a.innosentOverThreshold(loc, entries)
	default:
		return a.xethruOverThreshold(loc, entries)
	}
}

func (a *Analyzer) xethruOverThreshold(loc *registry.Location, entries []timeseries.Entry) bool {
	var sumFast, sumSlow float64
	for _, e := range entries {
		var sample XeThruSample
		if err := e.Decode(&sample); err != nil {
			a.logger.Warn("Malformed XeThru sample, reporting no movement",
				"location_id", loc.LocationID, "error", err)
			return false
		}
		sumFast += sample.MovF
		sumSlow += sample.MovS
	}

	n := float64(len(entries))
	return sumFast/n > loc.MovementThreshold || sumSlow/n > loc.MovementThreshold
}

func (a *Analyzer) innosentOverThreshold(loc *registry.Location, entries []timeseries.Entry) bool {
	var sum float64
	for _, e := range entries {
		var sample InnosentSample
		if err := e.Decode(&sample); err != nil {
			a.logger.Warn("Malformed Innosent sample, reporting no movement",
				"location_id", loc.LocationID, "error", err)
			return false
		}
		sum += math.Abs(sample.InPhase)
	}

	return sum/float64(len(entries)) > loc.MovementThreshold
}

// TimerExceeded reports whether the location has been away from state for
// at least threshold. The debounce is a query over the append-only state
// log: true iff state appears nowhere in the trailing window. Sound as
// long as every qualifying transition is appended before this is queried
// and evaluations for one location never run concurrently.
func (a *Analyzer) TimerExceeded(ctx context.Context, locationID string, threshold time.Duration, state State) bool {
	now := a.now()
	states, err := a.storage.StatesWithin(ctx, locationID, now.Add(-threshold), now)
	if err != nil {
		// Fail closed: an unreadable log must not fire timers
		a.logger.Warn("Failed to read state window, reporting timer not exceeded",
			"location_id", locationID, "error", err)
		return false
	}

	for _, s := range states {
		if s == state {
			return false
		}
	}
	return true
}
