package events

import "encoding/json"

// Event name constants
const (
	PolicyState    = "policy.state"
	SafetyPause    = "policy.safety_pause"
	TravelMode     = "travel.mode"
	ActuationDone  = "actuation.result"
	TopUpScheduled = "topup.schedule"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// PolicyStateEvent is the typed payload for policy.state, emitted on
// every state machine transition.
type PolicyStateEvent struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
	Ts     int64  `json:"ts"`
}

// SafetyPauseEvent is the typed payload for policy.safety_pause,
// emitted exactly once per auto-pause transition.
type SafetyPauseEvent struct {
	Level     int   `json:"level"`
	Threshold int   `json:"threshold"`
	Ts        int64 `json:"ts"`
}

// TravelModeEvent is the typed payload for travel.mode.
type TravelModeEvent struct {
	Enabled bool `json:"enabled"`
	// Expiry is RFC3339, empty when disabled or open-ended.
	Expiry string `json:"expiry,omitempty"`
	// RestoredLimit is the charge limit put back when travel mode ends.
	RestoredLimit int    `json:"restoredLimit,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Ts            int64  `json:"ts"`
}

// ActuationResultEvent is the typed payload for actuation.result.
type ActuationResultEvent struct {
	Target bool  `json:"target"`
	OK     bool  `json:"ok"`
	Ts     int64 `json:"ts"`
}

// TopUpEvent is the typed payload for topup.schedule.
type TopUpEvent struct {
	// State is one of scheduled, started, skipped, canceled.
	State string `json:"state"`
	Spec  string `json:"spec,omitempty"`
	Ts    int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.PolicyStateEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
