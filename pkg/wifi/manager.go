package wifi

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"

	"github.com/charlie0129/saltlevel/pkg/events"
	"github.com/charlie0129/saltlevel/pkg/locale"
	"github.com/charlie0129/saltlevel/pkg/store"
	"github.com/charlie0129/saltlevel/pkg/system"
)

// Options configures a Manager. Zero values take the defaults below.
type Options struct {
	// Defaults are the credentials shipped with the device. They are used
	// when nothing is stored and are never erased.
	Defaults Credentials

	MaxAttempts         int
	AttemptDelay        time.Duration
	CheckInterval       time.Duration
	ProvisioningTimeout time.Duration

	// APName is the provisioning access point SSID.
	APName string
	// PortalAddr and DNSAddr are the listen addresses of the captive
	// portal. DNSAddr empty disables the DNS responder.
	PortalAddr string
	DNSAddr    string

	Clock clockz.Clock
	// Language returns the UI language of the portal.
	Language func() string
	// OnTick runs on every provisioning tick, e.g. to poll the reset
	// button while the control loop is parked.
	OnTick func()
}

const (
	DefaultMaxAttempts         = 20
	DefaultAttemptDelay        = 500 * time.Millisecond
	DefaultCheckInterval       = 5 * time.Minute
	DefaultProvisioningTimeout = 10 * time.Minute
	DefaultPortalAddr          = ":80"
	DefaultDNSAddr             = ":53"
)

type credSource int

const (
	sourceNone credSource = iota
	sourceStored
	sourceDefault
)

func (s credSource) String() string {
	switch s {
	case sourceStored:
		return "stored"
	case sourceDefault:
		return "default"
	default:
		return "none"
	}
}

// Manager is the connectivity state machine.
type Manager struct {
	driver    Driver
	store     store.Store
	watchdog  system.Watchdog
	restarter system.Restarter
	hub       *events.EventHub
	opts      Options

	mu     sync.RWMutex
	state  State
	creds  Credentials
	source credSource
	apIP   net.IP
}

func NewManager(d Driver, s store.Store, wd system.Watchdog, r system.Restarter, hub *events.EventHub, opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.AttemptDelay < 0 {
		opts.AttemptDelay = 0
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.ProvisioningTimeout <= 0 {
		opts.ProvisioningTimeout = DefaultProvisioningTimeout
	}
	if opts.APName == "" {
		opts.APName = "SaltLevel-" + system.DeviceSuffix("wlan0")
	}
	if opts.PortalAddr == "" {
		opts.PortalAddr = DefaultPortalAddr
	}
	if opts.Clock == nil {
		opts.Clock = clockz.RealClock
	}
	if opts.Language == nil {
		opts.Language = func() string { return locale.Default }
	}

	return &Manager{
		driver:    d,
		store:     s,
		watchdog:  wd,
		restarter: r,
		hub:       hub,
		opts:      opts,
		state:     Disconnected,
	}
}

// State returns the current connectivity state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SSID returns the network the manager is using, if any.
func (m *Manager) SSID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.SSID
}

// CheckInterval is how often CheckLiveness should run.
func (m *Manager) CheckInterval() time.Duration {
	return m.opts.CheckInterval
}

// Online reports whether the station link is up.
func (m *Manager) Online(ctx context.Context) bool {
	if m.State() != Connected {
		return false
	}
	st, err := m.driver.Status(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to read link status")
		return false
	}
	return st.Connected
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	ssid := m.creds.SSID
	m.mu.Unlock()

	if prev == s {
		return
	}
	logrus.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   s.String(),
	}).Info("wifi state changed")
	m.hub.Publish(events.WifiState, events.WifiStateEvent{
		From: prev.String(),
		To:   s.String(),
		SSID: ssid,
		Ts:   m.opts.Clock.Now().Unix(),
	})
}

func (m *Manager) kick() {
	if m.watchdog != nil {
		m.watchdog.Kick()
	}
}

// Boot picks credentials and either connects or starts provisioning.
// Stored credentials win over the defaults.
func (m *Manager) Boot(ctx context.Context) error {
	stored := LoadCredentials(m.store)

	m.mu.Lock()
	switch {
	case stored.Usable():
		m.creds, m.source = stored, sourceStored
	case m.opts.Defaults.SSID != "":
		m.creds = Credentials{SSID: m.opts.Defaults.SSID, Password: m.opts.Defaults.Password, Valid: true}
		m.source = sourceDefault
	default:
		m.creds, m.source = Credentials{}, sourceNone
	}
	source := m.source
	ssid := m.creds.SSID
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"source": source.String(),
		"ssid":   ssid,
	}).Info("booting wifi")

	if source == sourceNone {
		return m.Provision(ctx)
	}
	return m.Connect(ctx)
}

// Connect joins the selected network, polling the link up to MaxAttempts
// times. When the network cannot be joined, stored credentials are erased
// as suspect and the device restarts.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.RLock()
	creds, source := m.creds, m.source
	m.mu.RUnlock()

	if source == sourceNone {
		return m.Provision(ctx)
	}

	m.setState(Connecting)
	l := logrus.WithField("ssid", creds.SSID)

	if err := m.driver.Associate(ctx, creds.SSID, creds.Password); err != nil {
		l.WithError(err).Warn("failed to start association")
	}

	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		m.kick()

		st, err := m.driver.Status(ctx)
		if err != nil {
			l.WithError(err).Debug("failed to read link status")
		} else if st.Connected {
			m.setState(Connected)
			l.WithFields(logrus.Fields{
				"ip":       st.IP.String(),
				"attempts": attempt,
			}).Info("wifi connected")
			return nil
		}

		if attempt < m.opts.MaxAttempts {
			if err := m.sleep(ctx, m.opts.AttemptDelay); err != nil {
				return err
			}
		}
	}

	m.setState(Disconnected)
	l.WithField("attempts", m.opts.MaxAttempts).Error("failed to connect to wifi")

	if source == sourceStored {
		if err := EraseCredentials(m.store); err != nil {
			l.WithError(err).Error("failed to erase stored credentials")
		} else {
			l.Warn("erased stored credentials")
		}
	}

	m.restarter.Restart("wifi connection failed")
	return ErrRestartRequested
}

// CheckLiveness reconnects when the link dropped.
func (m *Manager) CheckLiveness(ctx context.Context) error {
	if m.State() == Provisioning {
		return nil
	}

	st, err := m.driver.Status(ctx)
	if err == nil && st.Connected {
		if m.State() != Connected {
			m.setState(Connected)
		}
		return nil
	}
	if err != nil {
		logrus.WithError(err).Warn("failed to read link status")
	}

	logrus.Warn("wifi link lost, reconnecting")
	m.setState(Disconnected)
	return m.Connect(ctx)
}

// FactoryReset erases the Wi-Fi credentials, calibration and alert state,
// then restarts.
func (m *Manager) FactoryReset(reason string) error {
	logrus.WithField("reason", reason).Warn("factory reset")

	for _, ns := range []string{store.NamespaceWifi, store.NamespaceCalibration, store.NamespaceAlert} {
		if err := m.store.Clear(ns); err != nil {
			logrus.WithError(err).WithField("namespace", ns).Error("failed to clear namespace")
			return err
		}
	}

	m.restarter.Restart("factory reset")
	return ErrRestartRequested
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := m.opts.Clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
