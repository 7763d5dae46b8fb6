package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PostgresSource reads location and client configuration from the
// relational store. Configuration is owned by the dashboard; the engine
// only ever reads it.
type PostgresSource struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSource creates a registry source backed by Postgres
func NewPostgresSource(db *sql.DB, logger *slog.Logger) *PostgresSource {
	return &PostgresSource{
		db:     db,
		logger: logger,
	}
}

const locationColumns = `
	location_id,
	display_name,
	client_id,
	movement_threshold,
	initial_timer_s,
	duration_timer_s,
	stillness_timer_s,
	radar_type,
	is_active,
	siren_particle_id
`

// GetLocation returns a single location by ID
func (s *PostgresSource) GetLocation(ctx context.Context, locationID string) (*Location, error) {
	if locationID == "" {
		return nil, fmt.Errorf("location_id is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM locations WHERE location_id = $1`, locationColumns)

	loc, err := scanLocation(s.db.QueryRowContext(ctx, query, locationID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("location not found: %s", locationID)
		}
		return nil, fmt.Errorf("failed to get location %s: %w", locationID, err)
	}

	return loc, nil
}

// EngineLocations returns every active location without a device-owned siren
func (s *PostgresSource) EngineLocations(ctx context.Context) ([]Location, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM locations
		WHERE is_active = true
		  AND siren_particle_id IS NULL
		ORDER BY location_id
	`, locationColumns)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query engine locations: %w", err)
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, *loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}

	return locations, nil
}

// GetClient returns the client that owns a location
func (s *PostgresSource) GetClient(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}

	query := `
		SELECT client_id, display_name, responder_phone_numbers, is_active
		FROM clients
		WHERE client_id = $1
	`

	var client Client
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&client.ClientID,
		&client.DisplayName,
		pq.Array(&client.ResponderPhoneNumbers),
		&client.IsActive,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("client not found: %s", clientID)
		}
		return nil, fmt.Errorf("failed to get client %s: %w", clientID, err)
	}

	return &client, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLocation(row scanner) (*Location, error) {
	var loc Location
	var initialS, durationS, stillnessS int64
	var radarType string
	var sirenID sql.NullString

	err := row.Scan(
		&loc.LocationID,
		&loc.DisplayName,
		&loc.ClientID,
		&loc.MovementThreshold,
		&initialS,
		&durationS,
		&stillnessS,
		&radarType,
		&loc.IsActive,
		&sirenID,
	)
	if err != nil {
		return nil, err
	}

	loc.InitialTimer = time.Duration(initialS) * time.Second
	loc.DurationTimer = time.Duration(durationS) * time.Second
	loc.StillnessTimer = time.Duration(stillnessS) * time.Second
	loc.RadarType = RadarType(radarType)
	if sirenID.Valid {
		loc.SirenParticleID = &sirenID.String
	}

	return &loc, nil
}
