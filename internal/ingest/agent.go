package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/haloview/sentry-platform/internal/engine"
	"github.com/haloview/sentry-platform/internal/registry"
	"github.com/haloview/sentry-platform/pkg/config"
	"github.com/haloview/sentry-platform/pkg/mqtt"
	"github.com/haloview/sentry-platform/pkg/redis"
)

// doorMessage is the raw door payload: the sensor's control byte
type doorMessage struct {
	Data byte `json:"data"`
}

// sensorEventMessage is a firmware-originated alert from a siren
// installation
type sensorEventMessage struct {
	Event string `json:"event"`
}

// Agent subscribes to the raw sensor topics and appends decoded readings
// to the per-location streams. Wire-format decoding stops here; the
// engine only ever sees decoded signals.
type Agent struct {
	mqtt      mqtt.Client
	storage   *engine.Storage
	vitals    redis.Client
	locations registry.Source
	alerts    engine.AlertHandler
	cfg       *config.Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewAgent creates the ingestion agent
func NewAgent(mqttClient mqtt.Client, storage *engine.Storage, vitalsClient redis.Client, locations registry.Source, alerts engine.AlertHandler, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		mqtt:      mqttClient,
		storage:   storage,
		vitals:    vitalsClient,
		locations: locations,
		alerts:    alerts,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start subscribes to the raw sensor topics and blocks until ctx is
// cancelled
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting ingestion agent", "service_name", a.cfg.ServiceName)

	if err := a.mqtt.Subscribe(mqtt.TopicRawDoor, 1, a.handleDoorMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicRawDoor, err)
	}
	if err := a.mqtt.Subscribe(mqtt.TopicRawRadar, 0, a.handleRadarMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicRawRadar, err)
	}
	if err := a.mqtt.Subscribe(mqtt.TopicRawSensorEvent, 1, a.handleSensorEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicRawSensorEvent, err)
	}

	a.logger.Info("Ingestion agent started",
		"topics", []string{mqtt.TopicRawDoor, mqtt.TopicRawRadar, mqtt.TopicRawSensorEvent})

	<-ctx.Done()
	a.logger.Info("Ingestion agent stopping")

	return nil
}

// handleDoorMessage decodes a door control byte and appends the
// open/closed signal; tamper, battery and heartbeat bits land in the
// vitals hash
func (a *Agent) handleDoorMessage(msg mqtt.Message) {
	ctx := context.Background()

	locationID, err := mqtt.LocationFromTopic(msg.Topic())
	if err != nil {
		a.logger.Warn("Dropping door message", "topic", msg.Topic(), "error", err)
		return
	}

	var payload doorMessage
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		a.logger.Warn("Dropping malformed door payload", "location_id", locationID, "error", err)
		return
	}

	state := DecodeDoorByte(payload.Data)
	signal := engine.DoorClosed
	if state.IsOpen {
		signal = engine.DoorOpen
	}

	at := a.now()
	if err := a.storage.AppendDoor(ctx, locationID, at, signal); err != nil {
		a.logger.Error("Failed to store door reading", "location_id", locationID, "error", err)
		return
	}

	a.updateDoorVitals(ctx, locationID, at, state)

	a.logger.Debug("Stored door reading",
		"location_id", locationID,
		"signal", string(signal),
		"low_battery", state.IsLowBattery,
		"tampered", state.IsTampered)
}

// handleRadarMessage appends a raw radar sample. The sample shape depends
// on the location's radar type and is validated when the analytics window
// decodes it.
func (a *Agent) handleRadarMessage(msg mqtt.Message) {
	ctx := context.Background()

	locationID, err := mqtt.LocationFromTopic(msg.Topic())
	if err != nil {
		a.logger.Warn("Dropping radar message", "topic", msg.Topic(), "error", err)
		return
	}

	if !json.Valid(msg.Payload()) {
		a.logger.Warn("Dropping malformed radar payload", "location_id", locationID)
		return
	}

	if err := a.storage.AppendRadar(ctx, locationID, a.now(), json.RawMessage(msg.Payload())); err != nil {
		a.logger.Error("Failed to store radar reading", "location_id", locationID, "error", err)
	}
}

// handleSensorEvent maps a firmware-originated DURATION/STILLNESS event
// straight onto the alert lifecycle, bypassing the server-side state
// machine
func (a *Agent) handleSensorEvent(msg mqtt.Message) {
	ctx := context.Background()

	locationID, err := mqtt.LocationFromTopic(msg.Topic())
	if err != nil {
		a.logger.Warn("Dropping sensor event", "topic", msg.Topic(), "error", err)
		return
	}

	var payload sensorEventMessage
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		a.logger.Warn("Dropping malformed sensor event", "location_id", locationID, "error", err)
		return
	}

	reason := engine.AlertReason(payload.Event)
	if reason != engine.AlertDuration && reason != engine.AlertStillness {
		a.logger.Warn("Dropping sensor event with unknown reason",
			"location_id", locationID, "event", payload.Event)
		return
	}

	loc, err := a.locations.GetLocation(ctx, locationID)
	if err != nil {
		a.logger.Warn("Dropping sensor event for unknown location",
			"location_id", locationID, "error", err)
		return
	}
	// Engine-managed locations already raise alerts through evaluation;
	// forwarding a stray event here would double-alert them.
	if loc.SirenParticleID == nil {
		a.logger.Warn("Dropping sensor event from location without a siren",
			"location_id", locationID, "event", payload.Event)
		return
	}

	if err := a.alerts.HandleAlert(ctx, loc, reason); err != nil {
		a.logger.Error("Failed to handle sensor event alert",
			"location_id", locationID, "error", err)
	}
}

// updateDoorVitals records sensor health fields used by the (external)
// dashboard; failures here never fail the reading that was just stored
func (a *Agent) updateDoorVitals(ctx context.Context, locationID string, at time.Time, state DoorState) {
	key := redis.DoorVitalsKey(locationID)

	err := a.vitals.HSet(ctx, key,
		"last_seen_ms", strconv.FormatInt(at.UnixMilli(), 10),
		"low_battery", strconv.FormatBool(state.IsLowBattery),
		"tampered", strconv.FormatBool(state.IsTampered),
		"heartbeat", strconv.FormatBool(state.IsHeartbeat),
	)
	if err != nil {
		a.logger.Warn("Failed to update door vitals", "location_id", locationID, "error", err)
		return
	}

	if err := a.vitals.Expire(ctx, key, a.cfg.SensorRetention()); err != nil {
		a.logger.Warn("Failed to set TTL on door vitals", "location_id", locationID, "error", err)
	}
}
