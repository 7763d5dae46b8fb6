package session

import (
	"time"

	"github.com/haloview/sentry-platform/internal/engine"
)

// ChatbotState tracks where the responder conversation for a session
// stands. The engine only ever distinguishes terminal from non-terminal;
// the transitions themselves are owned by the responder subsystem.
type ChatbotState string

const (
	ChatbotStarted            ChatbotState = "STARTED"
	ChatbotWaitingForReply    ChatbotState = "WAITING_FOR_REPLY"
	ChatbotWaitingForCategory ChatbotState = "WAITING_FOR_CATEGORY"
	ChatbotWaitingForDetails  ChatbotState = "WAITING_FOR_DETAILS"
	ChatbotCompleted          ChatbotState = "COMPLETED"
)

// Terminal reports whether the responder conversation has finished
func (s ChatbotState) Terminal() bool {
	return s == ChatbotCompleted
}

// Session is one alert episode: a debounced-continuous period during
// which a location is judged to be in a concerning occupancy state.
// At most one non-terminal session per location is open at a time.
type Session struct {
	ID         string
	LocationID string

	// AlertType records the first alert reason of the episode; retriggers
	// inside the cooldown window never overwrite it
	AlertType engine.AlertReason

	CreatedAt time.Time
	UpdatedAt time.Time

	ChatbotState           ChatbotState
	RespondedAt            *time.Time
	RespondedByPhoneNumber *string
	IncidentCategory       *string
	Notes                  *string
}
