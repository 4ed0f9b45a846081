// Package config reads the daemon configuration file.
//
// Settings the user changes at runtime (calibration, notification channels,
// language, Wi-Fi credentials) live in the persistent store, not here. The
// file holds hardware wiring, timings and the shipped defaults.
package config

import "time"

type Config interface {
	Values() Values
	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}

// Values is the resolved configuration with every default applied.
type Values struct {
	StorePath      string
	Listen         string
	LogLevel       string
	Schedule       string
	AlertThreshold int

	Sensor   SensorValues
	Wifi     WifiValues
	MQTT     MQTTValues
	Bark     BarkValues
	Ntfy     NtfyValues
	Telegram TelegramValues
}

type SensorValues struct {
	Chip          string
	TriggerLine   int
	EchoLine      int
	Samples       int
	SampleTimeout time.Duration
	Settle        time.Duration
}

type WifiValues struct {
	Interface           string
	SSID                string
	Password            string
	MaxAttempts         int
	AttemptDelay        time.Duration
	CheckInterval       time.Duration
	ProvisioningTimeout time.Duration
	PortalAddr          string
	DNSAddr             string
	ResetLine           int
	ResetHold           time.Duration
	ResetDebounce       time.Duration
}

type MQTTValues struct {
	Enabled  bool
	Broker   string
	Username string
	Password string
	Prefix   string
}

type BarkValues struct {
	Enabled bool
	Server  string
	Key     string
}

type NtfyValues struct {
	Enabled bool
	Server  string
	Topic   string
}

type TelegramValues struct {
	Enabled bool
	Token   string
	Chat    int64
}
