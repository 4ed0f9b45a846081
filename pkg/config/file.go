package config

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/saltlevel/pkg/utils/ptr"
)

const (
	DefaultConfigPath = "/etc/saltlevel/config.yaml"
	DefaultEnvPath    = "/etc/saltlevel/saltlevel.env"
)

var defaultValues = Values{
	StorePath:      "/var/lib/saltlevel/state.db",
	LogLevel:       "info",
	Schedule:       "@every 1h",
	AlertThreshold: 3,
	Sensor: SensorValues{
		Chip:          "gpiochip0",
		TriggerLine:   5,
		EchoLine:      18,
		Samples:       3,
		SampleTimeout: 30 * time.Millisecond,
		Settle:        50 * time.Millisecond,
	},
	Wifi: WifiValues{
		Interface:           "wlan0",
		MaxAttempts:         20,
		AttemptDelay:        500 * time.Millisecond,
		CheckInterval:       5 * time.Minute,
		ProvisioningTimeout: 10 * time.Minute,
		PortalAddr:          ":80",
		DNSAddr:             ":53",
		ResetLine:           17,
		ResetHold:           5 * time.Second,
		ResetDebounce:       50 * time.Millisecond,
	},
	MQTT: MQTTValues{
		Broker: "tcp://localhost:1883",
		Prefix: "salt_level",
	},
	Bark: BarkValues{
		Server: "https://api.day.app",
	},
	Ntfy: NtfyValues{
		Enabled: true,
		Server:  "https://ntfy.sh",
	},
}

// Defaults returns the values used for keys missing from the file.
func Defaults() Values {
	return defaultValues
}

var _ Config = &File{}

// File is a Config backed by a YAML file, with secrets optionally supplied
// by environment variables (SALTLEVEL_*) or a dotenv file.
type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
	envpath  string
}

func NewFile(configPath, envPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		envpath:  envPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// Path returns the config file path.
func (f *File) Path() string {
	return f.filepath
}

type RawFileConfig struct {
	StorePath      *string `yaml:"storePath,omitempty"`
	Listen         *string `yaml:"listen,omitempty"`
	LogLevel       *string `yaml:"logLevel,omitempty"`
	Schedule       *string `yaml:"schedule,omitempty"`
	AlertThreshold *int    `yaml:"alertThreshold,omitempty"`

	Sensor   RawSensorConfig   `yaml:"sensor,omitempty"`
	Wifi     RawWifiConfig     `yaml:"wifi,omitempty"`
	MQTT     RawMQTTConfig     `yaml:"mqtt,omitempty"`
	Bark     RawBarkConfig     `yaml:"bark,omitempty"`
	Ntfy     RawNtfyConfig     `yaml:"ntfy,omitempty"`
	Telegram RawTelegramConfig `yaml:"telegram,omitempty"`
}

type RawSensorConfig struct {
	Chip          *string   `yaml:"chip,omitempty"`
	TriggerLine   *int      `yaml:"triggerLine,omitempty"`
	EchoLine      *int      `yaml:"echoLine,omitempty"`
	Samples       *int      `yaml:"samples,omitempty"`
	SampleTimeout *Duration `yaml:"sampleTimeout,omitempty"`
	Settle        *Duration `yaml:"settle,omitempty"`
}

type RawWifiConfig struct {
	Interface           *string   `yaml:"interface,omitempty"`
	SSID                *string   `yaml:"ssid,omitempty"`
	Password            *string   `yaml:"password,omitempty"`
	MaxAttempts         *int      `yaml:"maxAttempts,omitempty"`
	AttemptDelay        *Duration `yaml:"attemptDelay,omitempty"`
	CheckInterval       *Duration `yaml:"checkInterval,omitempty"`
	ProvisioningTimeout *Duration `yaml:"provisioningTimeout,omitempty"`
	PortalAddr          *string   `yaml:"portalAddr,omitempty"`
	DNSAddr             *string   `yaml:"dnsAddr,omitempty"`
	ResetLine           *int      `yaml:"resetLine,omitempty"`
	ResetHold           *Duration `yaml:"resetHold,omitempty"`
	ResetDebounce       *Duration `yaml:"resetDebounce,omitempty"`
}

type RawMQTTConfig struct {
	Enabled  *bool   `yaml:"enabled,omitempty"`
	Broker   *string `yaml:"broker,omitempty"`
	Username *string `yaml:"username,omitempty"`
	Password *string `yaml:"password,omitempty"`
	Prefix   *string `yaml:"prefix,omitempty"`
}

type RawBarkConfig struct {
	Enabled *bool   `yaml:"enabled,omitempty"`
	Server  *string `yaml:"server,omitempty"`
	Key     *string `yaml:"key,omitempty"`
}

type RawNtfyConfig struct {
	Enabled *bool   `yaml:"enabled,omitempty"`
	Server  *string `yaml:"server,omitempty"`
	Topic   *string `yaml:"topic,omitempty"`
}

type RawTelegramConfig struct {
	Enabled *bool   `yaml:"enabled,omitempty"`
	Token   *string `yaml:"token,omitempty"`
	Chat    *int64  `yaml:"chat,omitempty"`
}

// NewRawFileConfigFromConfig returns a fully populated raw config, e.g. to
// write out a default file.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}
	v := c.Values()
	d := func(x time.Duration) *Duration { return ptr.To(Duration(x)) }

	return &RawFileConfig{
		StorePath:      ptr.To(v.StorePath),
		Listen:         ptr.To(v.Listen),
		LogLevel:       ptr.To(v.LogLevel),
		Schedule:       ptr.To(v.Schedule),
		AlertThreshold: ptr.To(v.AlertThreshold),
		Sensor: RawSensorConfig{
			Chip:          ptr.To(v.Sensor.Chip),
			TriggerLine:   ptr.To(v.Sensor.TriggerLine),
			EchoLine:      ptr.To(v.Sensor.EchoLine),
			Samples:       ptr.To(v.Sensor.Samples),
			SampleTimeout: d(v.Sensor.SampleTimeout),
			Settle:        d(v.Sensor.Settle),
		},
		Wifi: RawWifiConfig{
			Interface:           ptr.To(v.Wifi.Interface),
			MaxAttempts:         ptr.To(v.Wifi.MaxAttempts),
			AttemptDelay:        d(v.Wifi.AttemptDelay),
			CheckInterval:       d(v.Wifi.CheckInterval),
			ProvisioningTimeout: d(v.Wifi.ProvisioningTimeout),
			PortalAddr:          ptr.To(v.Wifi.PortalAddr),
			DNSAddr:             ptr.To(v.Wifi.DNSAddr),
			ResetLine:           ptr.To(v.Wifi.ResetLine),
			ResetHold:           d(v.Wifi.ResetHold),
			ResetDebounce:       d(v.Wifi.ResetDebounce),
		},
		MQTT: RawMQTTConfig{
			Enabled: ptr.To(v.MQTT.Enabled),
			Broker:  ptr.To(v.MQTT.Broker),
			Prefix:  ptr.To(v.MQTT.Prefix),
		},
		Bark: RawBarkConfig{
			Enabled: ptr.To(v.Bark.Enabled),
			Server:  ptr.To(v.Bark.Server),
		},
		Ntfy: RawNtfyConfig{
			Enabled: ptr.To(v.Ntfy.Enabled),
			Server:  ptr.To(v.Ntfy.Server),
		},
		Telegram: RawTelegramConfig{
			Enabled: ptr.To(v.Telegram.Enabled),
		},
	}, nil
}

func (f *File) Values() Values {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	c, d := f.c, defaultValues
	return Values{
		StorePath:      ptr.Deref(c.StorePath, d.StorePath),
		Listen:         ptr.Deref(c.Listen, d.Listen),
		LogLevel:       ptr.Deref(c.LogLevel, d.LogLevel),
		Schedule:       ptr.Deref(c.Schedule, d.Schedule),
		AlertThreshold: ptr.Deref(c.AlertThreshold, d.AlertThreshold),
		Sensor: SensorValues{
			Chip:          ptr.Deref(c.Sensor.Chip, d.Sensor.Chip),
			TriggerLine:   ptr.Deref(c.Sensor.TriggerLine, d.Sensor.TriggerLine),
			EchoLine:      ptr.Deref(c.Sensor.EchoLine, d.Sensor.EchoLine),
			Samples:       ptr.Deref(c.Sensor.Samples, d.Sensor.Samples),
			SampleTimeout: durationOr(c.Sensor.SampleTimeout, d.Sensor.SampleTimeout),
			Settle:        durationOr(c.Sensor.Settle, d.Sensor.Settle),
		},
		Wifi: WifiValues{
			Interface:           ptr.Deref(c.Wifi.Interface, d.Wifi.Interface),
			SSID:                ptr.Deref(c.Wifi.SSID, d.Wifi.SSID),
			Password:            ptr.Deref(c.Wifi.Password, d.Wifi.Password),
			MaxAttempts:         ptr.Deref(c.Wifi.MaxAttempts, d.Wifi.MaxAttempts),
			AttemptDelay:        durationOr(c.Wifi.AttemptDelay, d.Wifi.AttemptDelay),
			CheckInterval:       durationOr(c.Wifi.CheckInterval, d.Wifi.CheckInterval),
			ProvisioningTimeout: durationOr(c.Wifi.ProvisioningTimeout, d.Wifi.ProvisioningTimeout),
			PortalAddr:          ptr.Deref(c.Wifi.PortalAddr, d.Wifi.PortalAddr),
			DNSAddr:             ptr.Deref(c.Wifi.DNSAddr, d.Wifi.DNSAddr),
			ResetLine:           ptr.Deref(c.Wifi.ResetLine, d.Wifi.ResetLine),
			ResetHold:           durationOr(c.Wifi.ResetHold, d.Wifi.ResetHold),
			ResetDebounce:       durationOr(c.Wifi.ResetDebounce, d.Wifi.ResetDebounce),
		},
		MQTT: MQTTValues{
			Enabled:  ptr.Deref(c.MQTT.Enabled, d.MQTT.Enabled),
			Broker:   ptr.Deref(c.MQTT.Broker, d.MQTT.Broker),
			Username: ptr.Deref(c.MQTT.Username, d.MQTT.Username),
			Password: ptr.Deref(c.MQTT.Password, d.MQTT.Password),
			Prefix:   ptr.Deref(c.MQTT.Prefix, d.MQTT.Prefix),
		},
		Bark: BarkValues{
			Enabled: ptr.Deref(c.Bark.Enabled, d.Bark.Enabled),
			Server:  ptr.Deref(c.Bark.Server, d.Bark.Server),
			Key:     ptr.Deref(c.Bark.Key, d.Bark.Key),
		},
		Ntfy: NtfyValues{
			Enabled: ptr.Deref(c.Ntfy.Enabled, d.Ntfy.Enabled),
			Server:  ptr.Deref(c.Ntfy.Server, d.Ntfy.Server),
			Topic:   ptr.Deref(c.Ntfy.Topic, d.Ntfy.Topic),
		},
		Telegram: TelegramValues{
			Enabled: ptr.Deref(c.Telegram.Enabled, d.Telegram.Enabled),
			Token:   ptr.Deref(c.Telegram.Token, d.Telegram.Token),
			Chat:    ptr.Deref(c.Telegram.Chat, d.Telegram.Chat),
		},
	}
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	conf := RawFileConfig{}
	if err := readYAML(f.filepath, &conf); err != nil {
		return err
	}
	if err := applyEnv(&conf, f.envpath); err != nil {
		return err
	}
	f.c = &conf

	return nil
}

func readYAML(path string, conf *RawFileConfig) error {
	fp, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file means all defaults.
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", path)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", path)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", path)
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil
	}

	if err := yaml.Unmarshal(b, conf); err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", path)
	}
	return nil
}

// applyEnv overrides secrets from the environment. Variables already set in
// the process environment win over the dotenv file.
func applyEnv(conf *RawFileConfig, envPath string) error {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return pkgerrors.Wrapf(err, "failed to load env file %s", envPath)
		}
	}

	strs := map[string]**string{
		"SALTLEVEL_WIFI_SSID":      &conf.Wifi.SSID,
		"SALTLEVEL_WIFI_PASSWORD":  &conf.Wifi.Password,
		"SALTLEVEL_MQTT_BROKER":    &conf.MQTT.Broker,
		"SALTLEVEL_MQTT_USERNAME":  &conf.MQTT.Username,
		"SALTLEVEL_MQTT_PASSWORD":  &conf.MQTT.Password,
		"SALTLEVEL_BARK_KEY":       &conf.Bark.Key,
		"SALTLEVEL_NTFY_TOPIC":     &conf.Ntfy.Topic,
		"SALTLEVEL_TELEGRAM_TOKEN": &conf.Telegram.Token,
	}
	for name, field := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*field = ptr.To(v)
		}
	}

	if v, ok := os.LookupEnv("SALTLEVEL_TELEGRAM_CHAT"); ok {
		chat, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return pkgerrors.Wrapf(err, "invalid SALTLEVEL_TELEGRAM_CHAT %q", v)
		}
		conf.Telegram.Chat = ptr.To(chat)
	}

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := yaml.NewEncoder(fp)
	enc.SetIndent(2)
	if err := enc.Encode(f.c); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return enc.Close()
}

func (f *File) LogrusFields() logrus.Fields {
	v := f.Values()

	return logrus.Fields{
		"storePath":       v.StorePath,
		"listen":          v.Listen,
		"schedule":        v.Schedule,
		"alertThreshold":  v.AlertThreshold,
		"sensorChip":      v.Sensor.Chip,
		"triggerLine":     v.Sensor.TriggerLine,
		"echoLine":        v.Sensor.EchoLine,
		"wifiInterface":   v.Wifi.Interface,
		"defaultSSID":     v.Wifi.SSID,
		"mqttEnabled":     v.MQTT.Enabled,
		"barkEnabled":     v.Bark.Enabled,
		"ntfyEnabled":     v.Ntfy.Enabled,
		"telegramEnabled": v.Telegram.Enabled,
	}
}
