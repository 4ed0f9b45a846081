package level

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/saltlevel/pkg/store"
)

// ErrInvalidCalibration is returned when a calibration violates
// full < warn <= empty.
var ErrInvalidCalibration = errors.New("invalid calibration")

// keyTank holds the whole Calibration as one value so an update is never
// stored half written.
const keyTank = "tank"

// Calibration holds the tank geometry in centimetres, measured from the
// sensor face.
type Calibration struct {
	FullDistance  float64 `json:"fullDistance"`
	EmptyDistance float64 `json:"emptyDistance"`
	WarnDistance  float64 `json:"warnDistance"`
}

// DefaultCalibration fits a typical cabinet softener brine tank.
func DefaultCalibration() Calibration {
	return Calibration{
		FullDistance:  20,
		EmptyDistance: 58,
		WarnDistance:  45,
	}
}

func (c Calibration) Validate() error {
	for name, v := range map[string]float64{
		"full":  c.FullDistance,
		"empty": c.EmptyDistance,
		"warn":  c.WarnDistance,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s distance must be a positive number, got %v", ErrInvalidCalibration, name, v)
		}
	}
	if c.FullDistance >= c.WarnDistance {
		return fmt.Errorf("%w: full distance (%.1fcm) must be less than warn distance (%.1fcm)",
			ErrInvalidCalibration, c.FullDistance, c.WarnDistance)
	}
	if c.WarnDistance > c.EmptyDistance {
		return fmt.Errorf("%w: warn distance (%.1fcm) must not exceed empty distance (%.1fcm)",
			ErrInvalidCalibration, c.WarnDistance, c.EmptyDistance)
	}
	return nil
}

// Calibrator owns the active calibration and its persisted copy.
type Calibrator struct {
	mu    sync.RWMutex
	store store.Store
	cur   Calibration
}

// NewCalibrator loads the calibration from s. A missing calibration takes
// the defaults; a stored one that does not validate is ignored.
func NewCalibrator(s store.Store) *Calibrator {
	c := &Calibrator{store: s}
	c.Load()
	return c
}

// Load re-reads the calibration from the store.
func (c *Calibrator) Load() Calibration {
	def := DefaultCalibration()
	loaded := store.Load(c.store, store.NamespaceCalibration, keyTank, def)

	if err := loaded.Validate(); err != nil {
		logrus.WithError(err).WithField("stored", loaded).Warn("stored calibration is invalid, using defaults")
		loaded = def
	}

	c.mu.Lock()
	c.cur = loaded
	c.mu.Unlock()

	return loaded
}

// Calibration returns the active calibration.
func (c *Calibrator) Calibration() Calibration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

// UpdateCalibration validates and persists cal, then makes it active. An
// invalid calibration is rejected and the previous one stays in effect.
func (c *Calibrator) UpdateCalibration(cal Calibration) error {
	if err := cal.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := store.Save(c.store, store.NamespaceCalibration, keyTank, cal); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"full":  cal.FullDistance,
		"empty": cal.EmptyDistance,
		"warn":  cal.WarnDistance,
	}).Info("calibration updated")
	c.cur = cal
	return nil
}
