package events

import "encoding/json"

// Event name constants
const (
	Measurement     = "measurement"
	AlertTransition = "alert.transition"
	WifiState       = "wifi.state"
	ConfigReloaded  = "config.reloaded"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// MeasurementEvent is the typed payload for measurement.
type MeasurementEvent struct {
	Distance *float64 `json:"distance"`
	Percent  *float64 `json:"percent"`
	Trigger  string   `json:"trigger"`
	Ts       int64    `json:"ts"`
}

// AlertTransitionEvent is the typed payload for alert.transition.
type AlertTransitionEvent struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Distance float64 `json:"distance"`
	Ts       int64   `json:"ts"`
}

// WifiStateEvent is the typed payload for wifi.state.
type WifiStateEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
	SSID string `json:"ssid,omitempty"`
	Ts   int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// If Data is empty, it returns the zero value of T with a nil error.
//
//	payload, err := events.DecodeAs[events.AlertTransitionEvent](ev)
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
