package daemon

import (
	"sync"
	"time"

	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/sensor"
)

// Trigger names what started a measurement.
const (
	TriggerBoot       = "boot"
	TriggerSchedule   = "schedule"
	TriggerOnDemand   = "on-demand"
	defaultHistoryLen = 48
)

// Reading is one completed measurement cycle.
type Reading struct {
	Measurement sensor.Measurement `json:"measurement"`
	Percent     level.Percent      `json:"percent"`
	Trigger     string             `json:"trigger"`
	Time        time.Time          `json:"time"`
}

// ReadingRecorder keeps the last N readings in memory.
type ReadingRecorder struct {
	MaxRecordCount int
	readings       []Reading
	mu             *sync.Mutex
}

func NewReadingRecorder(maxRecordCount int) *ReadingRecorder {
	return &ReadingRecorder{
		MaxRecordCount: maxRecordCount,
		readings:       make([]Reading, 0, maxRecordCount),
		mu:             &sync.Mutex{},
	}
}

// Add appends r, dropping the oldest reading when full.
func (r *ReadingRecorder) Add(rd Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip monotonic clock reading.
	rd.Time = rd.Time.Round(0)

	if len(r.readings) >= r.MaxRecordCount {
		r.readings = r.readings[1:]
	}
	r.readings = append(r.readings, rd)
}

// Last returns the most recent reading.
func (r *ReadingRecorder) Last() (Reading, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.readings) == 0 {
		return Reading{}, false
	}
	return r.readings[len(r.readings)-1], true
}

// Since returns the readings taken in the last duration, newest first.
func (r *ReadingRecorder) Since(now time.Time, last time.Duration) []Reading {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Reading
	for i := len(r.readings) - 1; i >= 0; i-- {
		if now.Sub(r.readings[i].Time) > last {
			break
		}
		out = append(out, r.readings[i])
	}
	return out
}

// All returns a copy of every reading, oldest first.
func (r *ReadingRecorder) All() []Reading {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Reading, len(r.readings))
	copy(out, r.readings)
	return out
}
