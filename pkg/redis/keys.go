package redis

import "fmt"

// Key construction helpers for the per-location sensor streams.
// Each stream is a sorted set scored by reading timestamp (ms).

// DoorStreamKey returns the key for a location's door readings (sorted set)
// Pattern: sensor:door:{locationId}
func DoorStreamKey(locationID string) string {
	return fmt.Sprintf("sensor:door:%s", locationID)
}

// RadarStreamKey returns the key for a location's radar readings (sorted set)
// Pattern: sensor:radar:{locationId}
func RadarStreamKey(locationID string) string {
	return fmt.Sprintf("sensor:radar:%s", locationID)
}

// StateStreamKey returns the key for a location's occupancy state history (sorted set)
// Pattern: state:occupancy:{locationId}
func StateStreamKey(locationID string) string {
	return fmt.Sprintf("state:occupancy:%s", locationID)
}

// DoorVitalsKey returns the key for a location's door sensor vitals (hash)
// Pattern: vitals:door:{locationId}
func DoorVitalsKey(locationID string) string {
	return fmt.Sprintf("vitals:door:%s", locationID)
}
