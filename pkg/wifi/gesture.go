package wifi

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"
)

const (
	DefaultResetDebounce = 50 * time.Millisecond
	DefaultResetHold     = 5 * time.Second
)

// Button is the physical reset input.
type Button interface {
	Pressed() (bool, error)
}

// ResetGesture detects a long press on the reset button. It is polled from
// a tick; there are no interrupts or goroutines involved. A press counts
// once the input has been stable for the debounce period, and fires after
// it has been held for the hold period. Releasing early cancels it.
type ResetGesture struct {
	button   Button
	clock    clockz.Clock
	debounce time.Duration
	hold     time.Duration

	raw        bool
	rawSince   time.Time
	stable     bool
	stableFrom time.Time
	fired      bool
}

func NewResetGesture(b Button, clock clockz.Clock, debounce, hold time.Duration) *ResetGesture {
	if clock == nil {
		clock = clockz.RealClock
	}
	if debounce <= 0 {
		debounce = DefaultResetDebounce
	}
	if hold <= 0 {
		hold = DefaultResetHold
	}
	return &ResetGesture{
		button:   b,
		clock:    clock,
		debounce: debounce,
		hold:     hold,
		rawSince: clock.Now(),
	}
}

// Poll samples the button and returns true exactly once per completed
// long press.
func (g *ResetGesture) Poll() bool {
	pressed, err := g.button.Pressed()
	if err != nil {
		logrus.WithError(err).Debug("failed to read reset button")
		return false
	}
	return g.observe(pressed, g.clock.Now())
}

func (g *ResetGesture) observe(pressed bool, now time.Time) bool {
	if pressed != g.raw {
		g.raw = pressed
		g.rawSince = now
	}

	if g.raw != g.stable && now.Sub(g.rawSince) >= g.debounce {
		g.stable = g.raw
		g.stableFrom = g.rawSince
		if !g.stable {
			if !g.fired {
				logrus.Debug("reset button released early")
			}
			g.fired = false
		} else {
			logrus.Debug("reset button pressed")
		}
	}

	if g.stable && !g.fired && now.Sub(g.stableFrom) >= g.hold {
		g.fired = true
		logrus.WithField("hold", g.hold).Warn("reset button held")
		return true
	}
	return false
}
