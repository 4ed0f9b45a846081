package client

import (
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/saltlevel/pkg/daemon"
	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/notify"
)

func getJSON[T any](c *Client, path, what string) (T, error) {
	var v T
	ret, err := c.Get(path)
	if err != nil {
		return v, pkgerrors.Wrapf(err, "failed to get %s", what)
	}
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return v, nil
}

func sendJSON[T any](c *Client, method, path string, in any, what string) (T, error) {
	var v T
	payload, err := json.Marshal(in)
	if err != nil {
		return v, err
	}
	if in == nil {
		payload = nil
	}
	ret, err := c.Send(method, path, string(payload))
	if err != nil {
		return v, pkgerrors.Wrapf(err, "failed to %s", what)
	}
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return v, pkgerrors.Wrapf(err, "failed to unmarshal response to %s", what)
	}
	return v, nil
}

func (c *Client) GetStatus() (daemon.Status, error) {
	return getJSON[daemon.Status](c, "/status", "status")
}

func (c *Client) GetHistory() ([]daemon.Reading, error) {
	return getJSON[[]daemon.Reading](c, "/history", "measurement history")
}

// Measure takes a reading now. It does not count towards the alert.
func (c *Client) Measure() (daemon.Reading, error) {
	return sendJSON[daemon.Reading](c, "POST", "/measure", nil, "measure")
}

// SkipNext drops the next scheduled reading and returns the run after it.
func (c *Client) SkipNext() (time.Time, error) {
	r, err := sendJSON[daemon.NextRun](c, "POST", "/schedule/skip", nil, "skip next reading")
	return r.NextRun, err
}

func (c *Client) GetCalibration() (level.Calibration, error) {
	return getJSON[level.Calibration](c, "/calibration", "calibration")
}

func (c *Client) SetCalibration(cal level.Calibration) (level.Calibration, error) {
	return sendJSON[level.Calibration](c, "PUT", "/calibration", cal, "set calibration")
}

// GetChannels returns the channel settings with secrets masked.
func (c *Client) GetChannels() (notify.Settings, error) {
	return getJSON[notify.Settings](c, "/channels", "notification channels")
}

func (c *Client) SetChannels(p notify.SettingsPatch) (notify.Settings, error) {
	return sendJSON[notify.Settings](c, "PUT", "/channels", p, "set notification channels")
}

func (c *Client) GetLanguage() (string, error) {
	return getJSON[string](c, "/language", "language")
}

func (c *Client) SetLanguage(tag string) (string, error) {
	return sendJSON[string](c, "PUT", "/language", tag, "set language")
}

func (c *Client) TestNotify() (notify.Result, error) {
	return sendJSON[notify.Result](c, "POST", "/notify/test", nil, "send test notification")
}

// FactoryReset erases Wi-Fi credentials, calibration and alert state. The
// daemon restarts afterwards.
func (c *Client) FactoryReset() (string, error) {
	return sendJSON[string](c, "POST", "/factory-reset", nil, "factory reset")
}

func (c *Client) GetWifi() (daemon.WifiStatus, error) {
	return getJSON[daemon.WifiStatus](c, "/wifi", "wifi status")
}

func (c *Client) GetVersion() (string, error) {
	return getJSON[string](c, "/version", "version")
}
