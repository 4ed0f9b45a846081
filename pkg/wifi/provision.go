package wifi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const provisionTick = time.Second

// provisioning is one run of the access point and portal.
type provisioning struct {
	portal   *Portal
	server   *http.Server
	cancel   context.CancelFunc
	deadline time.Time
}

func (p *provisioning) close() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.server.Shutdown(ctx)
	}
}

// Provision opens the access point and the captive portal and waits for
// credentials. It is driven by a one second tick that also kicks the
// watchdog. It ends in a restart: after valid credentials were saved, after
// a factory reset, or after ProvisioningTimeout.
func (m *Manager) Provision(ctx context.Context) error {
	m.setState(Provisioning)

	ip, err := m.driver.StartAccessPoint(ctx, m.opts.APName)
	if err != nil {
		logrus.WithError(err).WithField("name", m.opts.APName).Error("failed to start access point")
		m.restarter.Restart("access point failed")
		return ErrRestartRequested
	}
	m.mu.Lock()
	m.apIP = ip
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"name":    m.opts.APName,
		"ip":      ip.String(),
		"timeout": m.opts.ProvisioningTimeout,
	}).Info("provisioning started")

	p := m.newProvisioning(ip)
	p.server = &http.Server{
		Addr:              m.opts.PortalAddr,
		Handler:           p.portal.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("portal server failed")
		}
	}()

	if m.opts.DNSAddr != "" {
		dnsCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel
		go func() {
			if err := NewDNSResponder(m.opts.DNSAddr, ip).ListenAndServe(dnsCtx); err != nil {
				logrus.WithError(err).Error("captive dns failed")
			}
		}()
	}
	defer p.close()

	t := m.opts.Clock.NewTimer(provisionTick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.stopAccessPoint()
			return ctx.Err()
		case <-t.C():
		}

		if done, err := m.provisionStep(p); done {
			return err
		}
		t.Reset(provisionTick)
	}
}

func (m *Manager) newProvisioning(ip net.IP) *provisioning {
	return &provisioning{
		portal:   NewPortal(m.driver, m.opts.APName, ip, m.opts.Language),
		deadline: m.opts.Clock.Now().Add(m.opts.ProvisioningTimeout),
	}
}

// provisionStep runs one tick. It reports whether provisioning is over.
func (m *Manager) provisionStep(p *provisioning) (bool, error) {
	m.kick()
	if m.opts.OnTick != nil {
		m.opts.OnTick()
	}

	select {
	case creds := <-p.portal.Submitted():
		if err := SaveCredentials(m.store, creds); err != nil {
			// keep the portal up so the user can try again
			logrus.WithError(err).Error("failed to save wifi credentials")
			return false, nil
		}
		logrus.WithField("ssid", creds.SSID).Info("wifi credentials saved")
		p.close()
		m.stopAccessPoint()
		m.restarter.Restart("wifi credentials saved")
		return true, ErrRestartRequested

	case <-p.portal.ResetRequested():
		p.close()
		m.stopAccessPoint()
		return true, m.FactoryReset("requested from portal")

	default:
	}

	if !m.opts.Clock.Now().Before(p.deadline) {
		logrus.WithField("timeout", m.opts.ProvisioningTimeout).Warn("provisioning timed out")
		p.close()
		m.stopAccessPoint()
		m.restarter.Restart("provisioning timed out")
		return true, ErrRestartRequested
	}

	return false, nil
}

func (m *Manager) stopAccessPoint() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.driver.StopAccessPoint(ctx); err != nil {
		logrus.WithError(err).Warn("failed to stop access point")
	}
}
