// Package daemon runs the salt level monitor: the measurement schedule, the
// alert state machine, connectivity supervision and the local HTTP API.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"

	"github.com/charlie0129/saltlevel/pkg/alert"
	"github.com/charlie0129/saltlevel/pkg/events"
	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/locale"
	"github.com/charlie0129/saltlevel/pkg/notify"
	"github.com/charlie0129/saltlevel/pkg/sensor"
	"github.com/charlie0129/saltlevel/pkg/store"
	"github.com/charlie0129/saltlevel/pkg/system"
	"github.com/charlie0129/saltlevel/pkg/telemetry"
	"github.com/charlie0129/saltlevel/pkg/wifi"
)

// Measurer takes one distance reading.
type Measurer interface {
	Measure(ctx context.Context) sensor.Measurement
}

// Connectivity is the part of wifi.Manager the daemon drives.
type Connectivity interface {
	Boot(ctx context.Context) error
	CheckLiveness(ctx context.Context) error
	CheckInterval() time.Duration
	State() wifi.State
	SSID() string
	FactoryReset(reason string) error
}

// Gesture reports a completed long press of the reset button.
type Gesture interface {
	Poll() bool
}

// Options are the collaborators of a Daemon. Store, Measurer, Dispatcher
// and Wifi are required.
type Options struct {
	Store      store.Store
	Measurer   Measurer
	Dispatcher *notify.Dispatcher
	Wifi       Connectivity
	Gesture    Gesture
	Publisher  telemetry.Publisher
	Watchdog   system.Watchdog
	Hub        *events.EventHub
	Clock      clockz.Clock

	Schedule        string
	AlertThreshold  int
	ChannelDefaults notify.Settings
	HistorySize     int
}

// Daemon is the device. Everything that changes device state goes through
// cycleMu, so a measurement cycle never interleaves with an API mutation.
type Daemon struct {
	store      store.Store
	measurer   Measurer
	calibrator *level.Calibrator
	alerts     *alert.Machine
	dispatcher *notify.Dispatcher
	wifi       Connectivity
	gesture    Gesture
	publisher  telemetry.Publisher
	watchdog   system.Watchdog
	hub        *events.EventHub
	clock      clockz.Clock
	scheduler  *Scheduler
	history    *ReadingRecorder
	metrics    *metrics

	channelDefaults notify.Settings
	startedAt       time.Time
	// rescheduled wakes the loop after the next run moved.
	rescheduled chan struct{}

	cycleMu sync.Mutex
}

func New(o Options) (*Daemon, error) {
	if o.Clock == nil {
		o.Clock = clockz.RealClock
	}
	if o.Hub == nil {
		o.Hub = events.NewEventHub()
	}
	if o.Publisher == nil {
		o.Publisher = telemetry.Nop{}
	}
	if o.HistorySize <= 0 {
		o.HistorySize = defaultHistoryLen
	}
	if o.Schedule == "" {
		o.Schedule = DefaultSchedule
	}

	d := &Daemon{
		store:           o.Store,
		measurer:        o.Measurer,
		calibrator:      level.NewCalibrator(o.Store),
		dispatcher:      o.Dispatcher,
		wifi:            o.Wifi,
		gesture:         o.Gesture,
		publisher:       o.Publisher,
		watchdog:        o.Watchdog,
		hub:             o.Hub,
		clock:           o.Clock,
		scheduler:       NewScheduler(),
		history:         NewReadingRecorder(o.HistorySize),
		metrics:         newMetrics(),
		channelDefaults: o.ChannelDefaults,
		startedAt:       o.Clock.Now(),
		rescheduled:     make(chan struct{}, 1),
	}

	if err := d.scheduler.Schedule(o.Schedule, d.clock.Now()); err != nil {
		return nil, err
	}

	d.calibrator.Load()
	d.dispatcher.Apply(notify.LoadSettings(d.store, d.channelDefaults))
	d.alerts = alert.New(d.store, &meteredNotifier{dispatcher: d.dispatcher, metrics: d.metrics}, o.AlertThreshold, d.hub)
	d.metrics.observeAlert(d.alerts.State())

	return d, nil
}

// meteredNotifier counts channel attempts of alert notifications.
type meteredNotifier struct {
	dispatcher *notify.Dispatcher
	metrics    *metrics
}

func (n *meteredNotifier) Dispatch(ctx context.Context, distance float64, pct level.Percent) notify.Result {
	res := n.dispatcher.Dispatch(ctx, distance, pct)
	n.metrics.observeNotify(res)
	return res
}

// Cycle runs one measurement: acquire, map, feed the alert state machine
// when evaluate is set, then publish.
func (d *Daemon) Cycle(ctx context.Context, trigger string, evaluate bool) Reading {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()
	return d.cycle(ctx, trigger, evaluate)
}

func (d *Daemon) cycle(ctx context.Context, trigger string, evaluate bool) Reading {
	m := d.measurer.Measure(ctx)
	cal := d.calibrator.Calibration()
	pct := level.ToPercent(m, cal)

	r := Reading{
		Measurement: m,
		Percent:     pct,
		Trigger:     trigger,
		Time:        d.clock.Now(),
	}
	d.history.Add(r)
	d.metrics.observeReading(r)

	l := logrus.WithFields(logrus.Fields{
		"trigger":  trigger,
		"distance": m.Distance,
		"percent":  pct.String(),
	})
	if m.Valid {
		l.Info("measured salt level")
	} else {
		l.Warn("no valid reading, out of range or no echo")
	}

	if evaluate {
		tr, err := d.alerts.Evaluate(ctx, m, pct, cal.WarnDistance)
		if err != nil {
			l.WithError(err).Error("failed to evaluate alert")
		}
		if tr != alert.None {
			l.WithField("transition", tr.String()).Info("alert state changed")
		}
		d.metrics.observeAlert(d.alerts.State())
	}

	if err := d.publisher.Publish(ctx, m, pct); err != nil {
		l.WithError(err).Warn("failed to publish telemetry")
	}
	d.hub.Publish(events.Measurement, measurementEvent(r))

	return r
}

func measurementEvent(r Reading) events.MeasurementEvent {
	ev := events.MeasurementEvent{
		Trigger: r.Trigger,
		Ts:      r.Time.Unix(),
	}
	if r.Measurement.Valid {
		d := r.Measurement.Distance
		ev.Distance = &d
	}
	if r.Percent.Defined {
		p := r.Percent.Value
		ev.Percent = &p
	}
	return ev
}

// Status is the device snapshot served by GET /status.
type Status struct {
	Reading      *Reading          `json:"reading,omitempty"`
	Calibration  level.Calibration `json:"calibration"`
	Alert        alert.State       `json:"alert"`
	AlertPhase   string            `json:"alertPhase"`
	Channels     []string          `json:"channels"`
	Language     string            `json:"language"`
	Wifi         WifiStatus        `json:"wifi"`
	Schedule     string            `json:"schedule"`
	NextRun      time.Time         `json:"nextRun"`
	StartedAt    time.Time         `json:"startedAt"`
	RecentCycles []Reading         `json:"recentCycles,omitempty"`
}

// WifiStatus is the connectivity part of Status.
type WifiStatus struct {
	State wifi.State `json:"state"`
	SSID  string     `json:"ssid,omitempty"`
}

// Status returns the current device snapshot.
func (d *Daemon) Status() Status {
	st := d.alerts.State()
	s := Status{
		Calibration: d.calibrator.Calibration(),
		Alert:       st,
		AlertPhase:  st.Phase(),
		Channels:    d.dispatcher.Enabled(),
		Language:    locale.Load(d.store),
		Wifi:        d.wifiStatus(),
		Schedule:    d.scheduler.Expr(),
		NextRun:     d.scheduler.Next(),
		StartedAt:   d.startedAt,
	}
	if r, ok := d.history.Last(); ok {
		s.Reading = &r
	}
	s.RecentCycles = d.history.Since(d.clock.Now(), 24*time.Hour)
	if s.Channels == nil {
		s.Channels = []string{}
	}
	return s
}

func (d *Daemon) wifiStatus() WifiStatus {
	return WifiStatus{State: d.wifi.State(), SSID: d.wifi.SSID()}
}

// UpdateCalibration validates and persists a new calibration.
func (d *Daemon) UpdateCalibration(cal level.Calibration) error {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()
	return d.calibrator.UpdateCalibration(cal)
}

// UpdateChannels applies a partial channel update and persists the result.
func (d *Daemon) UpdateChannels(p notify.SettingsPatch) (notify.Settings, error) {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	next := p.Apply(d.dispatcher.Settings())
	if err := notify.SaveSettings(d.store, next); err != nil {
		return notify.Settings{}, err
	}
	d.dispatcher.Apply(next)

	logrus.WithField("enabled", d.dispatcher.Enabled()).Info("updated notification channels")
	return next, nil
}

// SetLanguage persists the UI language and returns the matched tag.
func (d *Daemon) SetLanguage(tag string) (string, error) {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()
	return locale.Save(d.store, tag)
}

// TestNotify sends a test message on every enabled channel.
func (d *Daemon) TestNotify(ctx context.Context) notify.Result {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	res := d.dispatcher.Test(ctx)
	d.metrics.observeNotify(res)
	return res
}

// FactoryReset erases user state and restarts the device.
func (d *Daemon) FactoryReset(reason string) error {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	return d.wifi.FactoryReset(reason)
}

// Reload applies the hot-reloadable parts of the configuration.
func (d *Daemon) Reload(schedule string, threshold int, channelDefaults notify.Settings) error {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	if schedule == "" {
		schedule = DefaultSchedule
	}
	if schedule != d.scheduler.Expr() {
		if err := d.scheduler.Schedule(schedule, d.clock.Now()); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"schedule": schedule,
			"nextRun":  d.scheduler.Next(),
		}).Info("measurement schedule changed")
	}

	d.alerts.SetThreshold(threshold)

	d.channelDefaults = channelDefaults
	d.dispatcher.Apply(notify.LoadSettings(d.store, channelDefaults))
	return nil
}

// SkipNext drops the next scheduled measurement and returns the run after
// it.
func (d *Daemon) SkipNext() (time.Time, error) {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	if err := d.scheduler.Skip(); err != nil {
		return time.Time{}, err
	}
	next := d.scheduler.Next()
	logrus.WithField("nextRun", next).Info("skipped next measurement")

	select {
	case d.rescheduled <- struct{}{}:
	default:
	}
	return next, nil
}

func (d *Daemon) kick() {
	if d.watchdog != nil {
		d.watchdog.Kick()
	}
}
