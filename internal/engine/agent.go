package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haloview/sentry-platform/internal/registry"
	"github.com/haloview/sentry-platform/pkg/config"
)

// AlertHandler receives DURATION/STILLNESS alerts from the state machine.
// Implemented by the session lifecycle.
type AlertHandler interface {
	HandleAlert(ctx context.Context, loc *registry.Location, reason AlertReason) error
}

// Agent drives the occupancy state machine: one independent evaluation per
// engine-managed location per tick. Locations are evaluated concurrently
// with each other but never concurrently with themselves; the in-flight
// guard is what keeps the log-based timer debounce sound.
type Agent struct {
	storage   *Storage
	analyzer  *Analyzer
	locations registry.Source
	alerts    AlertHandler
	cfg       *config.Config
	logger    *slog.Logger

	inflightMux sync.Mutex
	inflight    map[string]bool

	ticker   *time.Ticker
	stopChan chan struct{}
	now      func() time.Time
}

// NewAgent creates the evaluation agent
func NewAgent(storage *Storage, analyzer *Analyzer, locations registry.Source, alerts AlertHandler, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		storage:   storage,
		analyzer:  analyzer,
		locations: locations,
		alerts:    alerts,
		cfg:       cfg,
		logger:    logger,
		inflight:  make(map[string]bool),
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}
}

// Start begins the periodic evaluation loop and blocks until ctx is
// cancelled
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting occupancy engine",
		"service_name", a.cfg.ServiceName,
		"evaluation_interval_sec", a.cfg.EvaluationIntervalSec)

	interval := time.Duration(a.cfg.EvaluationIntervalSec) * time.Second
	a.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-a.ticker.C:
				a.evaluateAll(ctx)
			case <-a.stopChan:
				return
			}
		}
	}()

	a.logger.Info("Occupancy engine started")

	<-ctx.Done()
	a.logger.Info("Occupancy engine stopping")

	return nil
}

// Stop halts the evaluation loop
func (a *Agent) Stop() {
	if a.ticker != nil {
		a.ticker.Stop()
	}
	close(a.stopChan)
	a.logger.Info("Occupancy engine stopped")
}

// evaluateAll runs one tick: every engine-managed location gets its own
// evaluation goroutine. A failing location never stalls the others.
func (a *Agent) evaluateAll(ctx context.Context) {
	locations, err := a.locations.EngineLocations(ctx)
	if err != nil {
		a.logger.Error("Failed to list engine locations, skipping tick", "error", err)
		return
	}

	for i := range locations {
		loc := locations[i]
		if !a.beginEvaluation(loc.LocationID) {
			// Previous evaluation of this location still running
			a.logger.Debug("Evaluation already in flight, skipping", "location_id", loc.LocationID)
			continue
		}

		go func() {
			defer a.endEvaluation(loc.LocationID)
			if err := a.EvaluateLocation(ctx, &loc); err != nil {
				a.logger.Warn("Evaluation failed, leaving last durable state untouched",
					"location_id", loc.LocationID, "error", err)
			}
		}()
	}
}

func (a *Agent) beginEvaluation(locationID string) bool {
	a.inflightMux.Lock()
	defer a.inflightMux.Unlock()
	if a.inflight[locationID] {
		return false
	}
	a.inflight[locationID] = true
	return true
}

func (a *Agent) endEvaluation(locationID string) {
	a.inflightMux.Lock()
	defer a.inflightMux.Unlock()
	delete(a.inflight, locationID)
}

// EvaluateLocation runs one state-machine evaluation for a location:
// read current state and latest door signal, resolve the transition,
// append the new state on change, then raise any alert.
func (a *Agent) EvaluateLocation(ctx context.Context, loc *registry.Location) error {
	current, err := a.storage.CurrentState(ctx, loc.LocationID)
	if err != nil {
		return err
	}

	door, ok, err := a.storage.LatestDoorSignal(ctx, loc.LocationID)
	if err != nil {
		return err
	}
	if !ok {
		// No door data yet; defaulting in either direction could
		// fabricate a transition
		a.logger.Debug("No door readings yet, skipping evaluation", "location_id", loc.LocationID)
		return nil
	}

	moving := a.analyzer.MovementAverageOverThreshold(ctx, loc)

	timerExceeded := func(threshold time.Duration, state State) bool {
		return a.analyzer.TimerExceeded(ctx, loc.LocationID, threshold, state)
	}

	next, alert := NextState(loc, current, door, moving, timerExceeded)

	if next != current {
		// The transition must be durable before the alert fires; the
		// episode lifecycle and the timer queries both read this log
		if err := a.storage.AppendState(ctx, loc.LocationID, a.now(), next); err != nil {
			return err
		}
		a.logger.Info("State transition",
			"location_id", loc.LocationID,
			"from", string(current),
			"to", string(next),
			"door", string(door),
			"moving", moving)
	}

	if alert != NoAlert {
		if err := a.alerts.HandleAlert(ctx, loc, alert); err != nil {
			return err
		}
	}

	return nil
}
