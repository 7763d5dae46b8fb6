package registry

import (
	"context"
	"time"
)

// RadarType identifies the presence-radar hardware installed at a location.
// The two models report different sample shapes and use different
// smoothing windows.
type RadarType string

const (
	RadarTypeXeThru   RadarType = "XETHRU"
	RadarTypeInnosent RadarType = "INNOSENT"
)

// Location is the engine's read-only view of a monitored space
type Location struct {
	LocationID        string
	DisplayName       string
	ClientID          string
	MovementThreshold float64
	InitialTimer      time.Duration
	DurationTimer     time.Duration
	StillnessTimer    time.Duration
	RadarType         RadarType
	IsActive          bool

	// Non-nil when an on-device siren owns alerting for this location.
	// Such locations are never scheduled through the server-side engine.
	SirenParticleID *string
}

// EngineManaged reports whether the server-side state machine should
// evaluate this location
func (l *Location) EngineManaged() bool {
	return l.IsActive && l.SirenParticleID == nil
}

// Client is the organization responsible for a set of locations
type Client struct {
	ClientID              string
	DisplayName           string
	ResponderPhoneNumbers []string
	IsActive              bool
}

// Source provides location and client configuration to the engine
type Source interface {
	// GetLocation returns a single location by ID
	GetLocation(ctx context.Context, locationID string) (*Location, error)

	// EngineLocations returns every active location the server-side
	// state machine is responsible for
	EngineLocations(ctx context.Context) ([]Location, error)

	// GetClient returns the client that owns a location
	GetClient(ctx context.Context, clientID string) (*Client, error)
}
