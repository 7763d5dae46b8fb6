package engine

// State is one step of the per-location occupancy state machine. The
// state history is itself a time series; the newest entry is the current
// state and history is never rewritten.
type State string

const (
	StateIdle           State = "IDLE"
	StateInitialTimer   State = "INITIAL_TIMER"
	StateDurationTimer  State = "DURATION_TIMER"
	StateStillnessTimer State = "STILLNESS_TIMER"
)

// KnownState reports whether s is one of the four machine states
func KnownState(s State) bool {
	switch s {
	case StateIdle, StateInitialTimer, StateDurationTimer, StateStillnessTimer:
		return true
	}
	return false
}

// DoorSignal is the decoded door-contact reading. Wire-format decoding
// happens in the ingestion layer; the engine only ever sees the enum.
type DoorSignal string

const (
	DoorOpen   DoorSignal = "OPEN"
	DoorClosed DoorSignal = "CLOSED"
)

// AlertReason classifies why the state machine raised an alert
type AlertReason string

const (
	// AlertDuration fires when total time since entry exceeds the
	// configured duration window
	AlertDuration AlertReason = "DURATION"

	// AlertStillness fires when an occupant has stopped moving for the
	// configured stillness window
	AlertStillness AlertReason = "STILLNESS"
)

// DoorEntry is the stored shape of one door reading
type DoorEntry struct {
	Signal DoorSignal `json:"signal"`
}

// StateEntry is the stored shape of one state transition
type StateEntry struct {
	State State `json:"state"`
}

// XeThruSample is one XeThru radar reading: fast and slow movement
// magnitudes plus the module's own presence state
type XeThruSample struct {
	MovF  float64 `json:"mov_f"`
	MovS  float64 `json:"mov_s"`
	State int     `json:"state"`
}

// InnosentSample is one Innosent radar reading: raw I/Q components.
// Movement magnitude is derived as abs(inPhase).
type InnosentSample struct {
	InPhase    float64 `json:"inPhase"`
	Quadrature float64 `json:"quadrature"`
}
