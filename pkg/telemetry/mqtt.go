package telemetry

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/sensor"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// Options configures the MQTT publisher.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	Timeout  time.Duration
}

var _ Publisher = &MQTT{}

// MQTT publishes readings to a broker. <prefix>/status is a retained
// "online", replaced by the broker with "offline" when the device drops
// off.
type MQTT struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

// NewMQTT starts connecting to the broker in the background. It does not
// wait for the connection; publishes fail until it is up.
func NewMQTT(o Options) *MQTT {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	statusTopic := o.Prefix + "/status"

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetUsername(o.Username)
	opts.SetPassword(o.Password)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(30 * time.Second)
	opts.SetWill(statusTopic, statusOffline, 1, true)

	opts.OnConnect = func(c mqtt.Client) {
		logrus.WithField("broker", o.Broker).Info("connected to mqtt broker")
		c.Publish(statusTopic, 1, true, statusOnline)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logrus.WithError(err).Warn("lost connection to mqtt broker")
	}

	client := mqtt.NewClient(opts)
	client.Connect()

	return &MQTT{client: client, prefix: o.Prefix, timeout: o.Timeout}
}

func (p *MQTT) Publish(ctx context.Context, m sensor.Measurement, pct level.Percent) error {
	if !m.Valid {
		logrus.Debug("no reading, nothing to publish")
		return nil
	}
	if !p.client.IsConnectionOpen() {
		return pkgerrors.New("mqtt broker not connected")
	}

	msgs, err := messages(p.prefix, m, pct, time.Now())
	if err != nil {
		return err
	}

	timeout := p.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}

	for _, msg := range msgs {
		token := p.client.Publish(msg.topic, 0, msg.retained, msg.payload)
		if !token.WaitTimeout(timeout) {
			return pkgerrors.Errorf("timed out publishing to %s", msg.topic)
		}
		if err := token.Error(); err != nil {
			return pkgerrors.Wrapf(err, "failed to publish to %s", msg.topic)
		}
	}

	logrus.WithFields(logrus.Fields{
		"prefix":   p.prefix,
		"distance": m.Distance,
	}).Debug("published reading")
	return nil
}

// Close marks the device offline and disconnects.
func (p *MQTT) Close() {
	if p.client.IsConnectionOpen() {
		token := p.client.Publish(p.prefix+"/status", 1, true, statusOffline)
		token.WaitTimeout(p.timeout)
	}
	p.client.Disconnect(250)
}
