package engine

import (
	"time"

	"github.com/haloview/sentry-platform/internal/registry"
)

// TimerFunc answers "has this location been away from state for at least
// threshold". Passed as a closure so rules only query the timers their
// branch actually needs.
type TimerFunc func(threshold time.Duration, state State) bool

// NoAlert is the zero AlertReason returned by non-alerting transitions
const NoAlert AlertReason = ""

// NextState resolves one evaluation of the occupancy state machine.
//
// Rules per state are checked top to bottom and the first match wins. An
// open door always resolves to IDLE. Returning the current state means a
// no-op evaluation: the caller appends nothing to the state log.
//
// When both the duration and stillness timers are exceeded at once the
// DURATION alert wins: time-since-entry keeps counting regardless of
// later stillness, so it is the more urgent signal. Business rule; check
// with operations before changing the ordering.
func NextState(loc *registry.Location, current State, door DoorSignal, moving bool, timerExceeded TimerFunc) (State, AlertReason) {
	switch current {
	case StateIdle:
		if door == DoorClosed && moving {
			return StateInitialTimer, NoAlert
		}
		return StateIdle, NoAlert

	case StateInitialTimer:
		if door == DoorOpen {
			return StateIdle, NoAlert
		}
		if !moving {
			return StateIdle, NoAlert
		}
		if timerExceeded(loc.InitialTimer, StateInitialTimer) {
			return StateDurationTimer, NoAlert
		}
		return StateInitialTimer, NoAlert

	case StateDurationTimer:
		if door == DoorOpen {
			return StateIdle, NoAlert
		}
		if !moving {
			return StateStillnessTimer, NoAlert
		}
		if timerExceeded(loc.InitialTimer+loc.DurationTimer, StateInitialTimer) {
			return StateIdle, AlertDuration
		}
		return StateDurationTimer, NoAlert

	case StateStillnessTimer:
		if door == DoorOpen {
			return StateIdle, NoAlert
		}
		if moving {
			return StateDurationTimer, NoAlert
		}
		if timerExceeded(loc.InitialTimer+loc.DurationTimer, StateInitialTimer) {
			return StateIdle, AlertDuration
		}
		if timerExceeded(loc.StillnessTimer, StateStillnessTimer) {
			return StateIdle, AlertStillness
		}
		return StateStillnessTimer, NoAlert
	}

	// Unrecognized state: leave it untouched, no alert
	return current, NoAlert
}
