package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/locale"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Result counts delivery attempts of one dispatch.
type Result struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
}

// OK reports whether at least one channel delivered.
func (r Result) OK() bool { return r.Succeeded > 0 }

// Options configures the Dispatcher. Zero values take defaults.
type Options struct {
	BarkServer       string
	NtfyServer       string
	TelegramEndpoint string
	Timeout          time.Duration
	Client           HTTPClient
	// DeviceName appears in test notifications.
	DeviceName string
	// Online is consulted before every dispatch. When it returns false no
	// channel is attempted.
	Online func(ctx context.Context) bool
	// Language returns the UI language for message text.
	Language func() string
}

// Dispatcher sends a message on every enabled channel.
type Dispatcher struct {
	opts Options

	mu       sync.RWMutex
	settings Settings
	channels []Channel
}

func NewDispatcher(opts Options, settings Settings) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Language == nil {
		opts.Language = func() string { return locale.Default }
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "saltlevel"
	}

	d := &Dispatcher{opts: opts}
	d.Apply(settings)
	return d
}

// NewDispatcherWithChannels is used when the channel set is built by the
// caller.
func NewDispatcherWithChannels(opts Options, channels ...Channel) *Dispatcher {
	d := NewDispatcher(opts, Settings{})
	d.mu.Lock()
	d.channels = channels
	d.mu.Unlock()
	return d
}

// Apply rebuilds the channels from settings.
func (d *Dispatcher) Apply(s Settings) {
	channels := []Channel{
		&Bark{Server: d.opts.BarkServer, Key: s.BarkKey, On: s.BarkEnabled, Client: d.opts.Client},
		&Ntfy{Server: d.opts.NtfyServer, Topic: s.NtfyTopic, On: s.NtfyEnabled, Client: d.opts.Client},
		&Telegram{
			Endpoint: d.opts.TelegramEndpoint,
			Token:    s.TelegramToken,
			ChatID:   s.TelegramChat,
			On:       s.TelegramEnabled,
			Client:   d.opts.Client,
		},
	}

	d.mu.Lock()
	d.settings = s
	d.channels = channels
	d.mu.Unlock()
}

// Settings returns the settings last applied.
func (d *Dispatcher) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// Enabled returns the names of the enabled channels.
func (d *Dispatcher) Enabled() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	for _, c := range d.channels {
		if c.Enabled() {
			names = append(names, c.Name())
		}
	}
	return names
}

// Dispatch sends the low-salt alert.
func (d *Dispatcher) Dispatch(ctx context.Context, distance float64, pct level.Percent) Result {
	lang := d.opts.Language()
	value := 0.0
	if pct.Defined {
		value = pct.Value
	}
	title := locale.T(lang, locale.AlertTitle)
	body := locale.T(lang, locale.AlertBody, distance, value)
	return d.Send(ctx, title, body)
}

// Test sends a test notification so the user can check their setup.
func (d *Dispatcher) Test(ctx context.Context) Result {
	lang := d.opts.Language()
	return d.Send(ctx, locale.T(lang, locale.TestTitle), locale.T(lang, locale.TestBody, d.opts.DeviceName))
}

// Send delivers title and body on every enabled channel. Channels are tried
// one after another; a failure on one does not affect the others.
func (d *Dispatcher) Send(ctx context.Context, title, body string) Result {
	var res Result

	if d.opts.Online != nil && !d.opts.Online(ctx) {
		logrus.Warn("network is down, skipping notification")
		return res
	}

	d.mu.RLock()
	channels := d.channels
	d.mu.RUnlock()

	for _, c := range channels {
		if !c.Enabled() {
			continue
		}
		res.Attempted++

		start := time.Now()
		err := d.sendOne(ctx, c, title, body)
		l := logrus.WithFields(logrus.Fields{
			"channel": c.Name(),
			"elapsed": time.Since(start),
		})
		if err != nil {
			l.WithError(err).Error("failed to send notification")
			continue
		}
		res.Succeeded++
		l.Info("notification sent")
	}

	if res.Attempted == 0 {
		logrus.Warn("no notification channel is enabled")
	}
	return res
}

func (d *Dispatcher) sendOne(ctx context.Context, c Channel, title, body string) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	return c.Send(ctx, title, body)
}
