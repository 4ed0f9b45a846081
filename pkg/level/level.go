// Package level maps a distance reading to a fill percentage using the
// tank calibration.
package level

import (
	"encoding/json"
	"math"

	"github.com/charlie0129/saltlevel/pkg/sensor"
)

// Percent is a fill level in [0, 100]. Defined is false when no level could
// be computed.
type Percent struct {
	Value   float64
	Defined bool
}

// Undefined is the sentinel Percent.
var Undefined = Percent{Value: -1, Defined: false}

func (p Percent) String() string {
	if !p.Defined {
		return "n/a"
	}
	return formatPercent(p.Value)
}

func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(math.Round(p.Value*10) / 10)
}

func (p *Percent) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = Percent{Value: v, Defined: true}
	return nil
}

// ToPercent converts a measurement to a fill percentage. The sensor sits at
// the top of the tank, so a shorter distance means more salt.
func ToPercent(m sensor.Measurement, c Calibration) Percent {
	if !m.Valid {
		return Undefined
	}
	span := c.EmptyDistance - c.FullDistance
	if span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return Undefined
	}

	v := (c.EmptyDistance - m.Distance) / span * 100
	return Percent{Value: clamp(v, 0, 100), Defined: true}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
