// Package alert decides when a low salt level becomes worth a notification.
//
// A single low reading is not enough: the level has to be seen at or past
// the warn distance on Threshold consecutive measurements before anything is
// sent, and seen above it Threshold times before the alert re-arms. The
// counters are persisted so a power cut neither loses progress towards an
// alert nor re-sends one that was already delivered.
package alert

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/saltlevel/pkg/events"
	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/notify"
	"github.com/charlie0129/saltlevel/pkg/sensor"
	"github.com/charlie0129/saltlevel/pkg/store"
)

// DefaultThreshold is the number of consecutive readings needed to change
// state.
const DefaultThreshold = 3

const (
	keyLow      = "low"
	keyHigh     = "high"
	keyNotified = "notified"
)

// Notifier sends the low-salt alert.
type Notifier interface {
	Dispatch(ctx context.Context, distance float64, pct level.Percent) notify.Result
}

// State is the persisted alert state.
type State struct {
	ConsecutiveLow  uint16 `json:"consecutiveLow"`
	ConsecutiveHigh uint16 `json:"consecutiveHigh"`
	Notified        bool   `json:"notified"`
}

// Phase names the two externally visible states.
func (s State) Phase() string {
	if s.Notified {
		return "alerted"
	}
	return "quiet"
}

// Transition is the outcome of one evaluation.
type Transition int

const (
	None Transition = iota
	// Alerted means a notification was attempted.
	Alerted
	// Cleared means the level recovered and the alert re-armed.
	Cleared
)

func (t Transition) String() string {
	switch t {
	case Alerted:
		return "alerted"
	case Cleared:
		return "cleared"
	default:
		return "none"
	}
}

// Machine is the alert state machine.
type Machine struct {
	mu        sync.Mutex
	store     store.Store
	notifier  Notifier
	hub       *events.EventHub
	threshold uint16
	state     State
}

// New loads the persisted state from s. A threshold below 1 uses
// DefaultThreshold. hub may be nil.
func New(s store.Store, n Notifier, threshold int, hub *events.EventHub) *Machine {
	m := &Machine{
		store:    s,
		notifier: n,
		hub:      hub,
	}
	m.SetThreshold(threshold)
	m.Load()
	return m
}

// SetThreshold changes the number of consecutive readings needed.
func (m *Machine) SetThreshold(threshold int) {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	if threshold > math.MaxUint16 {
		threshold = math.MaxUint16
	}
	m.mu.Lock()
	m.threshold = uint16(threshold)
	m.mu.Unlock()
}

// Load restores the state from the store. Missing or corrupt values read as
// zero.
func (m *Machine) Load() State {
	st := State{
		ConsecutiveLow:  store.Load(m.store, store.NamespaceAlert, keyLow, uint16(0)),
		ConsecutiveHigh: store.Load(m.store, store.NamespaceAlert, keyHigh, uint16(0)),
		Notified:        store.Load(m.store, store.NamespaceAlert, keyNotified, false),
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"low":      st.ConsecutiveLow,
		"high":     st.ConsecutiveHigh,
		"notified": st.Notified,
	}).Debug("loaded alert state")
	return st
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset erases the persisted state.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = State{}
	return m.store.Clear(store.NamespaceAlert)
}

// Evaluate feeds one measurement into the machine. warn is the warn
// distance of the active calibration. Readings without a distance or a
// percentage are ignored and change nothing.
func (m *Machine) Evaluate(ctx context.Context, meas sensor.Measurement, pct level.Percent, warn float64) (Transition, error) {
	if !meas.Valid || !pct.Defined {
		logrus.Debug("no usable reading, skipping alert evaluation")
		return None, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	next := prev

	if meas.Distance >= warn {
		next.ConsecutiveLow = saturatingInc(next.ConsecutiveLow)
		next.ConsecutiveHigh = 0
	} else {
		next.ConsecutiveHigh = saturatingInc(next.ConsecutiveHigh)
		next.ConsecutiveLow = 0
	}

	if err := m.persistCounters(prev, next); err != nil {
		return None, err
	}
	m.state = next

	transition := None
	switch {
	case !next.Notified && next.ConsecutiveLow >= m.threshold:
		res := m.notifier.Dispatch(ctx, meas.Distance, pct)
		logrus.WithFields(logrus.Fields{
			"distance":  meas.Distance,
			"percent":   pct.String(),
			"attempted": res.Attempted,
			"succeeded": res.Succeeded,
		}).Info("salt level low")
		if res.Attempted > 0 {
			transition = Alerted
			next.Notified = true
		}
	case next.Notified && next.ConsecutiveHigh >= m.threshold:
		transition = Cleared
		next.Notified = false
		logrus.WithField("distance", meas.Distance).Info("salt level restored, alert re-armed")
	}

	if next.Notified != m.state.Notified {
		if err := store.Save(m.store, store.NamespaceAlert, keyNotified, next.Notified); err != nil {
			return None, err
		}
		m.state = next
	}

	if transition != None {
		m.hub.Publish(events.AlertTransition, events.AlertTransitionEvent{
			From:     prev.Phase(),
			To:       next.Phase(),
			Distance: meas.Distance,
			Ts:       time.Now().Unix(),
		})
	}

	return transition, nil
}

func (m *Machine) persistCounters(prev, next State) error {
	if next.ConsecutiveLow != prev.ConsecutiveLow {
		if err := store.Save(m.store, store.NamespaceAlert, keyLow, next.ConsecutiveLow); err != nil {
			return err
		}
	}
	if next.ConsecutiveHigh != prev.ConsecutiveHigh {
		if err := store.Save(m.store, store.NamespaceAlert, keyHigh, next.ConsecutiveHigh); err != nil {
			return err
		}
	}
	return nil
}

func saturatingInc(v uint16) uint16 {
	if v == math.MaxUint16 {
		return v
	}
	return v + 1
}
