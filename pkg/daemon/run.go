package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"

	"github.com/charlie0129/saltlevel/pkg/config"
	"github.com/charlie0129/saltlevel/pkg/events"
	"github.com/charlie0129/saltlevel/pkg/locale"
	"github.com/charlie0129/saltlevel/pkg/notify"
	"github.com/charlie0129/saltlevel/pkg/sensor"
	"github.com/charlie0129/saltlevel/pkg/store"
	"github.com/charlie0129/saltlevel/pkg/system"
	"github.com/charlie0129/saltlevel/pkg/telemetry"
	"github.com/charlie0129/saltlevel/pkg/wifi"
)

// channelDefaults are the channel settings used until the user changes them
// through the API.
func channelDefaults(v config.Values, suffix string) notify.Settings {
	topic := v.Ntfy.Topic
	if topic == "" {
		topic = notify.DefaultNtfyTopicPrefix + strings.ToLower(suffix)
	}
	return notify.Settings{
		BarkEnabled:     v.Bark.Enabled,
		BarkKey:         v.Bark.Key,
		NtfyEnabled:     v.Ntfy.Enabled,
		NtfyTopic:       topic,
		TelegramEnabled: v.Telegram.Enabled,
		TelegramToken:   v.Telegram.Token,
		TelegramChat:    v.Telegram.Chat,
	}
}

func setLogLevel(lvl string) {
	if lvl == "" {
		return
	}
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		logrus.WithError(err).Warn("invalid log level in config, ignoring")
		return
	}
	if l != logrus.GetLevel() {
		logrus.SetLevel(l)
		logrus.WithField("level", l.String()).Info("log level changed")
	}
}

func Run(configPath, envPath, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath, envPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Info("config loaded")
	v := conf.Values()
	setLogLevel(v.LogLevel)

	st, err := store.OpenBolt(v.StorePath)
	if err != nil {
		return err
	}
	logrus.WithField("path", st.Path()).Info("opened device store")

	sd := &system.Systemd{}
	restarter := system.NewProcessRestarter()
	hub := events.NewEventHub()
	suffix := system.DeviceSuffix(v.Wifi.Interface)
	deviceName := "SaltLevel-" + suffix
	lang := func() string { return locale.Load(st) }

	sampler, err := sensor.NewGPIOSampler(v.Sensor.Chip, v.Sensor.TriggerLine, v.Sensor.EchoLine)
	if err != nil {
		_ = st.Close()
		return err
	}
	acquirer := sensor.NewAcquirer(sampler, sensor.Options{
		Samples:       v.Sensor.Samples,
		SampleTimeout: v.Sensor.SampleTimeout,
		Settle:        v.Sensor.Settle,
	})

	nm, err := wifi.NewNetworkManager(v.Wifi.Interface)
	if err != nil {
		_ = sampler.Close()
		_ = st.Close()
		return err
	}

	var (
		gesture *wifi.ResetGesture
		mgr     *wifi.Manager
	)
	button, err := wifi.NewGPIOButton(v.Sensor.Chip, v.Wifi.ResetLine)
	if err != nil {
		logrus.WithError(err).Warn("reset button unavailable")
	} else {
		gesture = wifi.NewResetGesture(button, clockz.RealClock, v.Wifi.ResetDebounce, v.Wifi.ResetHold)
	}

	mgr = wifi.NewManager(nm, st, sd, restarter, hub, wifi.Options{
		Defaults:            wifi.Credentials{SSID: v.Wifi.SSID, Password: v.Wifi.Password, Valid: v.Wifi.SSID != ""},
		MaxAttempts:         v.Wifi.MaxAttempts,
		AttemptDelay:        v.Wifi.AttemptDelay,
		CheckInterval:       v.Wifi.CheckInterval,
		ProvisioningTimeout: v.Wifi.ProvisioningTimeout,
		APName:              deviceName,
		PortalAddr:          v.Wifi.PortalAddr,
		DNSAddr:             v.Wifi.DNSAddr,
		Language:            lang,
		OnTick: func() {
			// The control loop is parked while provisioning.
			if gesture != nil && gesture.Poll() {
				_ = mgr.FactoryReset("reset button")
			}
		},
	})

	var publisher telemetry.Publisher = telemetry.Nop{}
	if v.MQTT.Enabled {
		publisher = telemetry.NewMQTT(telemetry.Options{
			Broker:   v.MQTT.Broker,
			ClientID: "saltlevel-" + strings.ToLower(suffix),
			Username: v.MQTT.Username,
			Password: v.MQTT.Password,
			Prefix:   v.MQTT.Prefix,
		})
	}

	dispatcher := notify.NewDispatcher(notify.Options{
		BarkServer: v.Bark.Server,
		NtfyServer: v.Ntfy.Server,
		DeviceName: deviceName,
		Online:     mgr.Online,
		Language:   lang,
	}, notify.Settings{})

	opts := Options{
		Store:           st,
		Measurer:        acquirer,
		Dispatcher:      dispatcher,
		Wifi:            mgr,
		Publisher:       publisher,
		Watchdog:        sd,
		Hub:             hub,
		Schedule:        v.Schedule,
		AlertThreshold:  v.AlertThreshold,
		ChannelDefaults: channelDefaults(v, suffix),
	}
	if gesture != nil {
		opts.Gesture = gesture
	}
	d, err := New(opts)
	if err != nil {
		publisher.Close()
		_ = sampler.Close()
		_ = st.Close()
		return err
	}

	closeHardware := func() {
		publisher.Close()
		if err := sampler.Close(); err != nil {
			logrus.WithError(err).Warn("failed to release sensor lines")
		}
		if button != nil {
			if err := button.Close(); err != nil {
				logrus.WithError(err).Warn("failed to release reset button line")
			}
		}
		if err := st.Close(); err != nil {
			logrus.WithError(err).Error("failed to close store")
		}
	}
	restarter.OnRestart(closeHardware)

	srv := &http.Server{
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to remove stale socket")
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		closeHardware()
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}
	if allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			closeHardware()
			return pkgerrors.Wrapf(err, "failed to chmod %s", unixSocketPath)
		}
	}
	listeners := []net.Listener{l}

	if v.Listen != "" {
		tl, err := net.Listen("tcp", v.Listen)
		if err != nil {
			logrus.WithError(err).WithField("addr", v.Listen).Error("failed to listen on tcp, api is only available on the unix socket")
		} else {
			listeners = append(listeners, tl)
		}
	}

	for _, l := range listeners {
		go func(l net.Listener) {
			logrus.Infof("http server listening on %s", l.Addr().String())
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithError(err).Error("http server stopped")
			}
		}(l)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloadc := make(chan struct{}, 1)
	trigger := func() {
		select {
		case reloadc <- struct{}{}:
		default:
		}
	}

	if changed, err := conf.Watch(ctx); err != nil {
		logrus.WithError(err).Warn("config file will not be watched, send SIGHUP to reload")
	} else {
		go func() {
			for range changed {
				trigger()
			}
		}()
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			trigger()
		}
	}()

	reload := func() {
		if err := conf.Load(); err != nil {
			logrus.Errorf("failed to reload config: %v", err)
			return
		}
		v := conf.Values()
		setLogLevel(v.LogLevel)
		if err := d.Reload(v.Schedule, v.AlertThreshold, channelDefaults(v, suffix)); err != nil {
			logrus.WithError(err).Error("failed to apply reloaded config")
			return
		}
		hub.Publish(events.ConfigReloaded, struct {
			Path string `json:"path"`
		}{conf.Path()})
		logrus.Infof("config reloaded")
	}

	kickEvery := sd.Interval() / 2
	sd.Ready()

	errc := make(chan error, 1)
	go func() {
		logrus.Debugln("control loop starts")
		err := d.Boot(ctx)
		if err == nil {
			err = d.Loop(ctx, kickEvery, reloadc, reload)
		}
		errc <- err
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err := <-errc:
		if err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("control loop exited")
			runErr = err
		}
	}
	sd.Stopping()
	cancel()

	logrus.Info("shutting down http server")
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(sctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	scancel()

	// Wait for the cycle in progress so the store is not closed under it.
	d.cycleMu.Lock()
	closeHardware()
	d.cycleMu.Unlock()

	logrus.Info("exiting")
	return runErr
}
