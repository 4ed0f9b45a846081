package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/saltlevel/pkg/wifi"
)

const (
	buttonPollInterval = 20 * time.Millisecond
	defaultKickEvery   = 10 * time.Second
)

// Boot brings up connectivity and takes the boot measurement. The boot
// reading is published but does not count towards the alert.
func (d *Daemon) Boot(ctx context.Context) error {
	if err := d.wifi.Boot(ctx); err != nil {
		return err
	}
	d.metrics.observeWifi(d.wifi.State())

	d.Cycle(ctx, TriggerBoot, false)
	return nil
}

// Loop is the control loop. It returns when ctx is done or the device asked
// for a restart. reload delivers config changes and may be nil.
func (d *Daemon) Loop(ctx context.Context, kickEvery time.Duration, reload <-chan struct{}, onReload func()) error {
	if kickEvery <= 0 {
		kickEvery = defaultKickEvery
	}

	liveness := d.clock.NewTicker(d.wifi.CheckInterval())
	defer liveness.Stop()
	kick := d.clock.NewTicker(kickEvery)
	defer kick.Stop()

	var button <-chan time.Time
	if d.gesture != nil {
		t := d.clock.NewTicker(buttonPollInterval)
		defer t.Stop()
		button = t.C()
	}

	// A fired timer is replaced rather than Reset so fake clocks re-arm it.
	measure := d.clock.NewTimer(d.scheduler.Wait(d.clock.Now()))
	rearm := func() {
		measure.Stop()
		measure = d.clock.NewTimer(d.scheduler.Wait(d.clock.Now()))
	}
	defer func() { measure.Stop() }()

	logrus.WithField("nextRun", d.scheduler.Next()).Debug("control loop started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-measure.C():
			d.kick()
			d.Cycle(ctx, TriggerSchedule, true)
			next := d.scheduler.Advance(d.clock.Now())
			logrus.WithField("nextRun", next).Debug("next measurement scheduled")
			rearm()

		case <-liveness.C():
			d.kick()
			if err := d.checkLiveness(ctx); err != nil {
				return err
			}

		case <-button:
			if d.gesture.Poll() {
				logrus.Warn("reset button held, factory resetting")
				if err := d.FactoryReset("reset button"); err != nil {
					return err
				}
			}

		case <-kick.C():
			d.kick()

		case <-d.rescheduled:
			rearm()

		case _, ok := <-reload:
			if !ok {
				reload = nil
				continue
			}
			if onReload != nil {
				onReload()
			}
			// The schedule may have changed.
			rearm()
		}
	}
}

func (d *Daemon) checkLiveness(ctx context.Context) error {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	err := d.wifi.CheckLiveness(ctx)
	d.metrics.observeWifi(d.wifi.State())
	if errors.Is(err, wifi.ErrRestartRequested) {
		return err
	}
	if err != nil {
		logrus.WithError(err).Warn("liveness check failed")
	}
	return nil
}
