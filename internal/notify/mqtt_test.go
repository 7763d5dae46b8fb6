package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haloview/sentry-platform/internal/engine"
	"github.com/haloview/sentry-platform/internal/registry"
	"github.com/haloview/sentry-platform/internal/session"
	"github.com/haloview/sentry-platform/pkg/mqtt"
)

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	published  []publishedMessage
	publishErr error
}

func (f *fakeMQTT) Connect(ctx context.Context) error { return nil }
func (f *fakeMQTT) Disconnect()                       {}
func (f *fakeMQTT) IsConnected() bool                 { return true }
func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	return nil
}
func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{topic, qos, retained, payload})
	return nil
}

func TestSessionCreated(t *testing.T) {
	client := &fakeMQTT{}
	notifier := NewMQTTNotifier(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	loc := &registry.Location{
		LocationID:  "loc-1",
		DisplayName: "Washroom 1",
		ClientID:    "client-1",
	}
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s := &session.Session{
		ID:           "sess-1",
		LocationID:   "loc-1",
		AlertType:    engine.AlertStillness,
		CreatedAt:    created,
		UpdatedAt:    created,
		ChatbotState: session.ChatbotStarted,
	}

	require.NoError(t, notifier.SessionCreated(context.Background(), loc, s))

	require.Len(t, client.published, 1)
	msg := client.published[0]
	assert.Equal(t, "sentry/alert/loc-1", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.False(t, msg.retained)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, "sess-1", decoded["session_id"])
	assert.Equal(t, "Washroom 1", decoded["display_name"])
	assert.Equal(t, "STILLNESS", decoded["alert_type"])
	assert.Equal(t, "2026-03-14T09:00:00Z", decoded["created_at"])
}

func TestSessionCreated_PublishFailure(t *testing.T) {
	client := &fakeMQTT{publishErr: errors.New("broker unavailable")}
	notifier := NewMQTTNotifier(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := notifier.SessionCreated(context.Background(), &registry.Location{LocationID: "loc-1"}, &session.Session{ID: "sess-1"})
	assert.Error(t, err)
}
