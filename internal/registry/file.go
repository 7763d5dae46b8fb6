package registry

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileDocument is the YAML shape of a location fixture file.
// Used for development deployments and tests that run without the
// relational registry.
type fileDocument struct {
	Clients   []fileClient   `yaml:"clients"`
	Locations []fileLocation `yaml:"locations"`
}

type fileClient struct {
	ID                    string   `yaml:"id"`
	DisplayName           string   `yaml:"display_name"`
	ResponderPhoneNumbers []string `yaml:"responder_phone_numbers"`
	IsActive              *bool    `yaml:"is_active"`
}

type fileLocation struct {
	ID                string  `yaml:"id"`
	DisplayName       string  `yaml:"display_name"`
	ClientID          string  `yaml:"client_id"`
	MovementThreshold float64 `yaml:"movement_threshold"`
	InitialTimerS     int     `yaml:"initial_timer_s"`
	DurationTimerS    int     `yaml:"duration_timer_s"`
	StillnessTimerS   int     `yaml:"stillness_timer_s"`
	RadarType         string  `yaml:"radar_type"`
	IsActive          *bool   `yaml:"is_active"`
	SirenParticleID   string  `yaml:"siren_particle_id"`
}

// FileSource is an in-memory registry loaded from a YAML fixture file
type FileSource struct {
	locations map[string]Location
	clients   map[string]Client
}

// LoadLocationsFile parses a YAML fixture file into a FileSource
func LoadLocationsFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations file: %w", err)
	}
	return ParseLocations(data)
}

// ParseLocations builds a FileSource from YAML bytes
func ParseLocations(data []byte) (*FileSource, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse locations YAML: %w", err)
	}

	src := &FileSource{
		locations: make(map[string]Location),
		clients:   make(map[string]Client),
	}

	for _, c := range doc.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("client with empty id in locations file")
		}
		src.clients[c.ID] = Client{
			ClientID:              c.ID,
			DisplayName:           c.DisplayName,
			ResponderPhoneNumbers: c.ResponderPhoneNumbers,
			IsActive:              boolOrDefault(c.IsActive, true),
		}
	}

	for _, l := range doc.Locations {
		if l.ID == "" {
			return nil, fmt.Errorf("location with empty id in locations file")
		}
		radarType := RadarType(l.RadarType)
		if radarType != RadarTypeXeThru && radarType != RadarTypeInnosent {
			return nil, fmt.Errorf("location %s: unknown radar type %q", l.ID, l.RadarType)
		}

		loc := Location{
			LocationID:        l.ID,
			DisplayName:       l.DisplayName,
			ClientID:          l.ClientID,
			MovementThreshold: l.MovementThreshold,
			InitialTimer:      time.Duration(l.InitialTimerS) * time.Second,
			DurationTimer:     time.Duration(l.DurationTimerS) * time.Second,
			StillnessTimer:    time.Duration(l.StillnessTimerS) * time.Second,
			RadarType:         radarType,
			IsActive:          boolOrDefault(l.IsActive, true),
		}
		if l.SirenParticleID != "" {
			siren := l.SirenParticleID
			loc.SirenParticleID = &siren
		}
		src.locations[l.ID] = loc
	}

	return src, nil
}

// GetLocation returns a single location by ID
func (s *FileSource) GetLocation(ctx context.Context, locationID string) (*Location, error) {
	loc, ok := s.locations[locationID]
	if !ok {
		return nil, fmt.Errorf("location not found: %s", locationID)
	}
	return &loc, nil
}

// EngineLocations returns every active location without a device-owned siren
func (s *FileSource) EngineLocations(ctx context.Context) ([]Location, error) {
	var locations []Location
	for _, loc := range s.locations {
		if loc.EngineManaged() {
			locations = append(locations, loc)
		}
	}
	return locations, nil
}

// GetClient returns the client that owns a location
func (s *FileSource) GetClient(ctx context.Context, clientID string) (*Client, error) {
	client, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client not found: %s", clientID)
	}
	return &client, nil
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
