package mqtt

import (
	"fmt"
	"strings"
)

// Topic constants for the sensor ingestion and alert surfaces
const (
	// Raw sensor data topics (input)
	TopicRawDoor  = "sentry/raw/door/+"
	TopicRawRadar = "sentry/raw/radar/+"

	// Firmware-originated alert events (input, siren installations)
	TopicRawSensorEvent = "sentry/raw/sensorevent/+"

	// Alert publication base (output, consumed by the responder subsystem)
	TopicAlertBase = "sentry/alert"
)

// RawDoorTopic constructs the raw door topic for a location
// Pattern: sentry/raw/door/{locationId}
func RawDoorTopic(locationID string) string {
	return fmt.Sprintf("sentry/raw/door/%s", locationID)
}

// RawRadarTopic constructs the raw radar topic for a location
// Pattern: sentry/raw/radar/{locationId}
func RawRadarTopic(locationID string) string {
	return fmt.Sprintf("sentry/raw/radar/%s", locationID)
}

// AlertTopic constructs the alert publication topic for a location
// Pattern: sentry/alert/{locationId}
func AlertTopic(locationID string) string {
	return fmt.Sprintf("sentry/alert/%s", locationID)
}

// LocationFromTopic extracts the trailing location segment from a sensor topic
// Pattern: sentry/raw/{kind}/{locationId}
func LocationFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[3] == "" {
		return "", fmt.Errorf("unexpected topic shape: %s", topic)
	}
	return parts[3], nil
}
