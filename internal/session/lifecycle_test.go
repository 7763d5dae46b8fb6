package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haloview/sentry-platform/internal/engine"
	"github.com/haloview/sentry-platform/internal/registry"
	"github.com/haloview/sentry-platform/pkg/postgres"
)

// recordingNotifier captures post-commit notifications
type recordingNotifier struct {
	created []*Session
}

func (n *recordingNotifier) SessionCreated(ctx context.Context, loc *registry.Location, s *Session) error {
	n.created = append(n.created, s)
	return nil
}

func lifecycleLocation() *registry.Location {
	return &registry.Location{
		LocationID:  "loc-1",
		DisplayName: "Washroom 1",
		ClientID:    "client-1",
		IsActive:    true,
	}
}

func newTestLifecycle(t *testing.T) (*Lifecycle, sqlmock.Sqlmock, *recordingNotifier, time.Time) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := &recordingNotifier{}
	client := postgres.NewClientFromDB(db, logger)
	lifecycle := NewLifecycle(client, NewRepository(logger), notifier, 2*time.Hour, logger)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	lifecycle.now = func() time.Time { return now }

	return lifecycle, mock, notifier, now
}

func expectLockedBegin(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("LOCK TABLE clients, sessions, locations").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestHandleAlert_OpensSessionAndNotifies(t *testing.T) {
	lifecycle, mock, notifier, _ := newTestLifecycle(t)

	expectLockedBegin(mock)
	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("loc-1").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := lifecycle.HandleAlert(context.Background(), lifecycleLocation(), engine.AlertDuration)
	require.NoError(t, err)

	require.Len(t, notifier.created, 1)
	created := notifier.created[0]
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "loc-1", created.LocationID)
	assert.Equal(t, engine.AlertDuration, created.AlertType)
	assert.Equal(t, ChatbotStarted, created.ChatbotState)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_RetriggerTouchesWithoutNotifying(t *testing.T) {
	lifecycle, mock, notifier, now := newTestLifecycle(t)

	created := now.Add(-30 * time.Minute)
	expectLockedBegin(mock)
	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("loc-1").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("sess-open", "loc-1", "DURATION", created, created, "STARTED", nil, nil, nil, nil))
	mock.ExpectExec("UPDATE sessions SET updated_at").
		WithArgs("sess-open", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// A STILLNESS retrigger collapses into the open DURATION session
	err := lifecycle.HandleAlert(context.Background(), lifecycleLocation(), engine.AlertStillness)
	require.NoError(t, err)

	assert.Empty(t, notifier.created, "retriggers must not notify responders")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_StaleSessionOpensNewOne(t *testing.T) {
	lifecycle, mock, notifier, now := newTestLifecycle(t)

	stale := now.Add(-3 * time.Hour)
	expectLockedBegin(mock)
	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("loc-1").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("sess-old", "loc-1", "DURATION", stale, stale, "STARTED", nil, nil, nil, nil))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := lifecycle.HandleAlert(context.Background(), lifecycleLocation(), engine.AlertStillness)
	require.NoError(t, err)

	require.Len(t, notifier.created, 1)
	assert.NotEqual(t, "sess-old", notifier.created[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_CompletedSessionOpensNewOne(t *testing.T) {
	lifecycle, mock, notifier, now := newTestLifecycle(t)

	recent := now.Add(-10 * time.Minute)
	expectLockedBegin(mock)
	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("loc-1").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("sess-done", "loc-1", "STILLNESS", recent, recent, "COMPLETED", nil, nil, nil, nil))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Inside the cooldown window, but the episode already resolved
	err := lifecycle.HandleAlert(context.Background(), lifecycleLocation(), engine.AlertStillness)
	require.NoError(t, err)

	require.Len(t, notifier.created, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_RetriesDeadlockOnce(t *testing.T) {
	lifecycle, mock, notifier, _ := newTestLifecycle(t)

	// First attempt deadlocks on the table lock, second succeeds
	mock.ExpectBegin()
	mock.ExpectExec("LOCK TABLE clients, sessions, locations").
		WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	expectLockedBegin(mock)
	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("loc-1").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := lifecycle.HandleAlert(context.Background(), lifecycleLocation(), engine.AlertDuration)
	require.NoError(t, err)

	require.Len(t, notifier.created, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_AbortsAfterSecondDeadlock(t *testing.T) {
	lifecycle, mock, notifier, _ := newTestLifecycle(t)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("LOCK TABLE clients, sessions, locations").
			WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()
	}

	err := lifecycle.HandleAlert(context.Background(), lifecycleLocation(), engine.AlertDuration)
	assert.Error(t, err)

	assert.Empty(t, notifier.created, "an aborted transaction must not notify responders")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleAlert_RollsBackOnInsertFailure(t *testing.T) {
	lifecycle, mock, notifier, _ := newTestLifecycle(t)

	expectLockedBegin(mock)
	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("loc-1").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := lifecycle.HandleAlert(context.Background(), lifecycleLocation(), engine.AlertDuration)
	assert.Error(t, err)

	assert.Empty(t, notifier.created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSessionState(t *testing.T) {
	lifecycle, mock, _, _ := newTestLifecycle(t)

	phone := "+15551234567"
	expectLockedBegin(mock)
	mock.ExpectExec("UPDATE sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := lifecycle.UpdateSessionState(context.Background(), "sess-1", ChatbotWaitingForCategory, &phone, nil, nil)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
