// Package system talks to the service manager: readiness, watchdog kicks
// and restarts.
package system

import (
	"os"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
)

// RestartExitCode is the exit status used to ask systemd for a restart.
// EX_TEMPFAIL, so Restart=on-failure units restart too.
const RestartExitCode = 75

// Watchdog is kicked periodically to prove the process is alive.
type Watchdog interface {
	Kick()
}

// Restarter restarts the whole device process. In production Restart does
// not return.
type Restarter interface {
	Restart(reason string)
}

var _ Watchdog = &Systemd{}

// Systemd implements Watchdog with sd_notify. Outside of systemd every call
// is a no-op.
type Systemd struct {
	once     sync.Once
	interval time.Duration
}

// Ready tells systemd that startup finished.
func (s *Systemd) Ready() {
	notify(daemon.SdNotifyReady)
}

// Stopping tells systemd that shutdown started.
func (s *Systemd) Stopping() {
	notify(daemon.SdNotifyStopping)
}

func (s *Systemd) Kick() {
	notify(daemon.SdNotifyWatchdog)
}

// Interval returns WatchdogSec as configured in the unit, or 0 when the
// watchdog is disabled.
func (s *Systemd) Interval() time.Duration {
	s.once.Do(func() {
		d, err := daemon.SdWatchdogEnabled(false)
		if err != nil {
			logrus.WithError(err).Warn("failed to read watchdog settings")
			return
		}
		s.interval = d
	})
	return s.interval
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logrus.WithError(err).WithField("state", state).Warn("failed to notify systemd")
		return
	}
	if sent {
		logrus.WithField("state", state).Trace("notified systemd")
	}
}

var _ Restarter = &ProcessRestarter{}

// ProcessRestarter exits the process and relies on the unit's Restart=
// setting to bring it back.
type ProcessRestarter struct {
	mu      sync.Mutex
	cleanup []func()
	exit    func(int)
}

// NewProcessRestarter runs cleanup (in order) before exiting.
func NewProcessRestarter(cleanup ...func()) *ProcessRestarter {
	return &ProcessRestarter{cleanup: cleanup, exit: os.Exit}
}

// OnRestart adds a cleanup function.
func (r *ProcessRestarter) OnRestart(f func()) {
	r.mu.Lock()
	r.cleanup = append(r.cleanup, f)
	r.mu.Unlock()
}

func (r *ProcessRestarter) Restart(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logrus.WithField("reason", reason).Warn("restarting")
	notify(daemon.SdNotifyStopping)
	for _, f := range r.cleanup {
		f()
	}
	r.exit(RestartExitCode)
}
