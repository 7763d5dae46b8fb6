package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haloview/sentry-platform/internal/engine"
	"github.com/haloview/sentry-platform/internal/registry"
	"github.com/haloview/sentry-platform/pkg/postgres"
)

// Notifier hands a freshly created session to the responder-alerting
// subsystem. Retriggers inside the cooldown never notify.
type Notifier interface {
	SessionCreated(ctx context.Context, loc *registry.Location, s *Session) error
}

// Lifecycle maps alert emissions onto persisted episodes: retriggers
// inside the cooldown window collapse into the open session, anything
// else opens a new one. The read-then-write runs under the shared table
// lock so concurrent responder updates never race it.
type Lifecycle struct {
	db             postgres.Client
	sessions       *Repository
	notifier       Notifier
	resetThreshold time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// NewLifecycle creates the alert-episode lifecycle
func NewLifecycle(db postgres.Client, sessions *Repository, notifier Notifier, resetThreshold time.Duration, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		db:             db,
		sessions:       sessions,
		notifier:       notifier,
		resetThreshold: resetThreshold,
		logger:         logger,
		now:            time.Now,
	}
}

// HandleAlert processes one DURATION/STILLNESS alert for a location.
// Calling it twice in rapid succession for the same location produces a
// single session row; the dedup is the synchronous read of the latest
// session inside the locked transaction, not a separate locking rule.
func (l *Lifecycle) HandleAlert(ctx context.Context, loc *registry.Location, reason engine.AlertReason) error {
	now := l.now()

	var created *Session
	err := l.db.RunLocked(ctx, func(tx *sql.Tx) error {
		current, err := l.sessions.MostRecent(ctx, tx, loc.LocationID)
		if err != nil {
			return err
		}

		if current != nil && now.Sub(current.UpdatedAt) < l.resetThreshold && !current.ChatbotState.Terminal() {
			// Retrigger of the open episode: only updated_at moves, the
			// first alert reason stays authoritative until the episode resets
			if err := l.sessions.Touch(ctx, tx, current.ID, now); err != nil {
				return err
			}
			l.logger.Debug("Alert retriggered open session",
				"location_id", loc.LocationID,
				"session_id", current.ID,
				"reason", string(reason))
			return nil
		}

		created = &Session{
			ID:           uuid.New().String(),
			LocationID:   loc.LocationID,
			AlertType:    reason,
			CreatedAt:    now,
			UpdatedAt:    now,
			ChatbotState: ChatbotStarted,
		}
		return l.sessions.Create(ctx, tx, created)
	})
	if err != nil {
		return fmt.Errorf("failed to process alert for %s: %w", loc.LocationID, err)
	}

	if created == nil {
		return nil
	}

	l.logger.Info("Opened alert session",
		"location_id", loc.LocationID,
		"session_id", created.ID,
		"alert_type", string(reason))

	// Notify only after the row is durable; a rolled-back session must
	// never page a responder
	if l.notifier != nil {
		if err := l.notifier.SessionCreated(ctx, loc, created); err != nil {
			return fmt.Errorf("session %s created but notification failed: %w", created.ID, err)
		}
	}

	return nil
}

// UpdateSessionState applies a responder-side conversation step under the
// same locked-transaction discipline as alert handling
func (l *Lifecycle) UpdateSessionState(ctx context.Context, sessionID string, state ChatbotState, respondedBy, category, notes *string) error {
	err := l.db.RunLocked(ctx, func(tx *sql.Tx) error {
		return l.sessions.UpdateState(ctx, tx, sessionID, state, respondedBy, category, notes)
	})
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", sessionID, err)
	}
	return nil
}
