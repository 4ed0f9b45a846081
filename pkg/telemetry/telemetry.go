// Package telemetry publishes readings to an MQTT broker for home
// automation dashboards.
package telemetry

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/sensor"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "salt_level"

// Publisher sends a reading to the outside world.
type Publisher interface {
	Publish(ctx context.Context, m sensor.Measurement, pct level.Percent) error
	Close()
}

// Nop drops everything. It is used when telemetry is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, sensor.Measurement, level.Percent) error { return nil }
func (Nop) Close()                                                           {}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

type statePayload struct {
	Distance float64       `json:"distance"`
	Percent  level.Percent `json:"percent"`
	Ts       int64         `json:"ts"`
}

// messages returns what one reading publishes:
//
//	<prefix>/distance_cm  "46.0"
//	<prefix>/percent      "31.6" (only when defined)
//	<prefix>/state        {"distance":46,"percent":31.6,"ts":...}
func messages(prefix string, m sensor.Measurement, pct level.Percent, now time.Time) ([]message, error) {
	prefix = strings.TrimRight(prefix, "/")

	msgs := []message{{
		topic:    prefix + "/distance_cm",
		payload:  []byte(strconv.FormatFloat(m.Distance, 'f', 1, 64)),
		retained: true,
	}}
	if pct.Defined {
		msgs = append(msgs, message{
			topic:    prefix + "/percent",
			payload:  []byte(strconv.FormatFloat(pct.Value, 'f', 1, 64)),
			retained: true,
		})
	}

	state, err := json.Marshal(statePayload{Distance: m.Distance, Percent: pct, Ts: now.Unix()})
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, message{topic: prefix + "/state", payload: state, retained: true})

	return msgs, nil
}
