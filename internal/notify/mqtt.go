package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/haloview/sentry-platform/internal/registry"
	"github.com/haloview/sentry-platform/internal/session"
	"github.com/haloview/sentry-platform/pkg/mqtt"
)

// alertMessage is the payload handed to the responder subsystem
type alertMessage struct {
	SessionID   string `json:"session_id"`
	LocationID  string `json:"location_id"`
	DisplayName string `json:"display_name"`
	ClientID    string `json:"client_id"`
	AlertType   string `json:"alert_type"`
	CreatedAt   string `json:"created_at"`
}

// MQTTNotifier publishes new alert sessions for the responder subsystem.
// All SMS/chatbot content, responder arbitration and session termination
// live on the other side of this topic.
type MQTTNotifier struct {
	mqtt   mqtt.Client
	logger *slog.Logger
}

// NewMQTTNotifier creates an MQTT-backed notifier
func NewMQTTNotifier(mqttClient mqtt.Client, logger *slog.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		mqtt:   mqttClient,
		logger: logger,
	}
}

// SessionCreated publishes a freshly opened session to the location's
// alert topic
func (n *MQTTNotifier) SessionCreated(ctx context.Context, loc *registry.Location, s *session.Session) error {
	msg := alertMessage{
		SessionID:   s.ID,
		LocationID:  loc.LocationID,
		DisplayName: loc.DisplayName,
		ClientID:    loc.ClientID,
		AlertType:   string(s.AlertType),
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}

	// QoS 1: an alert must survive a broker reconnect
	if err := n.mqtt.Publish(mqtt.AlertTopic(loc.LocationID), 1, false, payload); err != nil {
		return fmt.Errorf("failed to publish alert for %s: %w", loc.LocationID, err)
	}

	n.logger.Info("Published alert",
		"location_id", loc.LocationID,
		"session_id", s.ID,
		"alert_type", string(s.AlertType))

	return nil
}
