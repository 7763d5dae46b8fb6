package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/haloview/sentry-platform/internal/engine"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx. The lifecycle passes a
// locked transaction; plain reads can pass the pool directly.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository persists alert episodes. It exposes only the read-modify-
// write operations the engine and responder subsystem need; no raw row
// access leaks out, which keeps the one-open-session invariant
// enforceable in one place.
type Repository struct {
	logger *slog.Logger
}

// NewRepository creates a session repository
func NewRepository(logger *slog.Logger) *Repository {
	return &Repository{logger: logger}
}

const sessionColumns = `
	session_id,
	location_id,
	alert_type,
	created_at,
	updated_at,
	chatbot_state,
	responded_at,
	responded_by_phone_number,
	incident_category,
	notes
`

// MostRecent returns the newest session for a location, or nil when the
// location has never alerted
func (r *Repository) MostRecent(ctx context.Context, q DBTX, locationID string) (*Session, error) {
	if locationID == "" {
		return nil, fmt.Errorf("location_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE location_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionColumns)

	s, err := scanSession(q.QueryRowContext(ctx, query, locationID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query most recent session for %s: %w", locationID, err)
	}

	return s, nil
}

// Create inserts a new session row
func (r *Repository) Create(ctx context.Context, q DBTX, s *Session) error {
	if s == nil {
		return fmt.Errorf("session is required")
	}
	if s.ID == "" || s.LocationID == "" {
		return fmt.Errorf("session id and location_id are required")
	}

	query := `
		INSERT INTO sessions (
			session_id,
			location_id,
			alert_type,
			created_at,
			updated_at,
			chatbot_state
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := q.ExecContext(ctx, query,
		s.ID,
		s.LocationID,
		string(s.AlertType),
		s.CreatedAt,
		s.UpdatedAt,
		string(s.ChatbotState),
	)
	if err != nil {
		return fmt.Errorf("failed to create session for %s: %w", s.LocationID, err)
	}

	return nil
}

// Touch bumps a session's updated_at. Used for alert retriggers inside
// the cooldown window; every other field, including the original alert
// type, is preserved.
func (r *Repository) Touch(ctx context.Context, q DBTX, sessionID string, at time.Time) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	result, err := q.ExecContext(ctx,
		`UPDATE sessions SET updated_at = $2 WHERE session_id = $1`,
		sessionID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session %s: %w", sessionID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	return nil
}

// UpdateState records a responder-side conversation step. Called by the
// external responder subsystem, never by the state machine.
func (r *Repository) UpdateState(ctx context.Context, q DBTX, sessionID string, state ChatbotState, respondedBy, category, notes *string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	query := `
		UPDATE sessions
		SET chatbot_state = $2,
		    responded_at = COALESCE(responded_at, CASE WHEN $3::text IS NOT NULL THEN NOW() END),
		    responded_by_phone_number = COALESCE($3, responded_by_phone_number),
		    incident_category = COALESCE($4, incident_category),
		    notes = COALESCE($5, notes),
		    updated_at = NOW()
		WHERE session_id = $1
	`

	result, err := q.ExecContext(ctx, query, sessionID, string(state), respondedBy, category, notes)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", sessionID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	return nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var alertType, chatbotState string
	var respondedAt sql.NullTime
	var respondedBy, category, notes sql.NullString

	err := row.Scan(
		&s.ID,
		&s.LocationID,
		&alertType,
		&s.CreatedAt,
		&s.UpdatedAt,
		&chatbotState,
		&respondedAt,
		&respondedBy,
		&category,
		&notes,
	)
	if err != nil {
		return nil, err
	}

	s.AlertType = engine.AlertReason(alertType)
	s.ChatbotState = ChatbotState(chatbotState)
	if respondedAt.Valid {
		s.RespondedAt = &respondedAt.Time
	}
	if respondedBy.Valid {
		s.RespondedByPhoneNumber = &respondedBy.String
	}
	if category.Valid {
		s.IncidentCategory = &category.String
	}
	if notes.Valid {
		s.Notes = &notes.String
	}

	return &s, nil
}
