package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/notify"
	"github.com/charlie0129/saltlevel/pkg/sensor"
	"github.com/charlie0129/saltlevel/pkg/store"
	"github.com/charlie0129/saltlevel/pkg/wifi"
)

type fakeMeasurer struct {
	mu       sync.Mutex
	distance float64
	valid    bool
}

func (f *fakeMeasurer) set(d float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distance, f.valid = d, d >= 0
}

func (f *fakeMeasurer) Measure(context.Context) sensor.Measurement {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.valid {
		return sensor.NoReading
	}
	return sensor.Measurement{Distance: f.distance, Valid: true}
}

type fakeWifi struct {
	mu     sync.Mutex
	resets int
}

func (f *fakeWifi) Boot(context.Context) error          { return nil }
func (f *fakeWifi) CheckLiveness(context.Context) error { return nil }
func (f *fakeWifi) CheckInterval() time.Duration        { return time.Hour }
func (f *fakeWifi) State() wifi.State                   { return wifi.Connected }
func (f *fakeWifi) SSID() string                        { return "home" }

func (f *fakeWifi) FactoryReset(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return wifi.ErrRestartRequested
}

func (f *fakeWifi) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

type gestureFunc func() bool

func (g gestureFunc) Poll() bool { return g() }

// ntfyServer counts notifications.
type ntfyServer struct {
	*httptest.Server
	mu     sync.Mutex
	titles []string
}

func newNtfyServer(t *testing.T) *ntfyServer {
	s := &ntfyServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.titles = append(s.titles, r.Header.Get("Title"))
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *ntfyServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.titles)
}

type fixture struct {
	d        *Daemon
	store    store.Store
	measurer *fakeMeasurer
	wifi     *fakeWifi
	ntfy     *ntfyServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithClock(t, nil)
}

func newFixtureWithClock(t *testing.T, clock clockz.Clock) *fixture {
	t.Helper()

	f := &fixture{
		store:    store.NewMemory(),
		measurer: &fakeMeasurer{},
		wifi:     &fakeWifi{},
		ntfy:     newNtfyServer(t),
	}
	f.measurer.set(30)

	dispatcher := notify.NewDispatcher(notify.Options{NtfyServer: f.ntfy.URL}, notify.Settings{})
	d, err := New(Options{
		Store:           f.store,
		Measurer:        f.measurer,
		Dispatcher:      dispatcher,
		Wifi:            f.wifi,
		Clock:           clock,
		ChannelDefaults: notify.Settings{NtfyEnabled: true, NtfyTopic: "saltlevelmonitor-abc123"},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	f.d = d
	return f
}

func TestScheduledCyclesAlertOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.measurer.set(50)
	for i := 0; i < 2; i++ {
		f.d.Cycle(ctx, TriggerSchedule, true)
	}
	if got := f.ntfy.count(); got != 0 {
		t.Fatalf("expected no notification before the threshold, got %d", got)
	}

	for i := 0; i < 5; i++ {
		f.d.Cycle(ctx, TriggerSchedule, true)
	}
	if got := f.ntfy.count(); got != 1 {
		t.Fatalf("expected exactly one notification, got %d", got)
	}
	if st := f.d.Status(); !st.Alert.Notified || st.AlertPhase != "alerted" {
		t.Fatalf("expected alerted state, got %+v", st.Alert)
	}

	f.measurer.set(25)
	for i := 0; i < 3; i++ {
		f.d.Cycle(ctx, TriggerSchedule, true)
	}
	if st := f.d.Status(); st.Alert.Notified {
		t.Fatalf("expected alert to clear after recovery")
	}
}

func TestBootAndOnDemandDoNotAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.measurer.set(55)
	if err := f.d.Boot(ctx); err != nil {
		t.Fatalf("Boot() failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		f.d.Cycle(ctx, TriggerOnDemand, false)
	}

	if got := f.ntfy.count(); got != 0 {
		t.Fatalf("expected no notification, got %d", got)
	}
	if st := f.d.Status(); st.Alert.ConsecutiveLow != 0 {
		t.Fatalf("boot and on-demand readings must not count, got %+v", st.Alert)
	}
	if got := len(f.d.history.All()); got != 6 {
		t.Fatalf("expected 6 readings in history, got %d", got)
	}
}

func TestInvalidReadingRecorded(t *testing.T) {
	f := newFixture(t)

	f.measurer.set(-1)
	r := f.d.Cycle(context.Background(), TriggerSchedule, true)
	if r.Measurement.Valid || r.Percent.Defined {
		t.Fatalf("expected an undefined reading, got %+v", r)
	}
	if st := f.d.Status(); st.Alert.ConsecutiveLow != 0 || st.Alert.ConsecutiveHigh != 0 {
		t.Fatalf("invalid reading changed alert counters: %+v", st.Alert)
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t)

	if err := f.d.Reload("@every 10m", 5, notify.Settings{}); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	if got := f.d.scheduler.Expr(); got != "@every 10m" {
		t.Fatalf("schedule not applied, got %q", got)
	}
	// Stored settings are absent, so the new defaults disable ntfy.
	if got := f.d.dispatcher.Enabled(); len(got) != 0 {
		t.Fatalf("expected no enabled channel, got %v", got)
	}

	if err := f.d.Reload("every now and then", 5, notify.Settings{}); err == nil {
		t.Fatalf("expected an invalid schedule to be rejected")
	}
	if got := f.d.scheduler.Expr(); got != "@every 10m" {
		t.Fatalf("invalid schedule replaced the active one: %q", got)
	}
}

func TestUpdateChannelsPersists(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.UpdateChannels(notify.SettingsPatch{NtfyTopic: strPtr("other")})
	if err != nil {
		t.Fatalf("UpdateChannels() failed: %v", err)
	}
	got := notify.LoadSettings(f.store, notify.Settings{})
	if got.NtfyTopic != "other" || !got.NtfyEnabled {
		t.Fatalf("settings not persisted: %+v", got)
	}
}

func strPtr(s string) *string { return &s }

func TestLoopFactoryResetOnGesture(t *testing.T) {
	f := newFixture(t)
	f.d.gesture = gestureFunc(func() bool { return true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := f.d.Loop(ctx, time.Second, nil, nil)
	if !errors.Is(err, wifi.ErrRestartRequested) {
		t.Fatalf("expected restart request, got %v", err)
	}
	if f.wifi.resetCount() != 1 {
		t.Fatalf("expected one factory reset, got %d", f.wifi.resetCount())
	}
}

func TestLoopRunsSchedule(t *testing.T) {
	f := newFixture(t)
	if err := f.d.Reload("@every 1s", 3, notify.Settings{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	err := f.d.Loop(ctx, time.Second, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the loop to run until the deadline, got %v", err)
	}
	n := 0
	for _, r := range f.d.history.All() {
		if r.Trigger == TriggerSchedule {
			n++
		}
	}
	if n < 1 {
		t.Fatalf("expected at least one scheduled measurement")
	}
}

func scheduledCount(d *Daemon) int {
	n := 0
	for _, r := range d.history.All() {
		if r.Trigger == TriggerSchedule {
			n++
		}
	}
	return n
}

func TestLoopFollowsInjectedClock(t *testing.T) {
	clock := clockz.NewFakeClock()
	f := newFixtureWithClock(t, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.d.Loop(ctx, time.Minute, nil, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for !clock.HasWaiters() {
		if time.Now().After(deadline) {
			t.Fatalf("loop did not arm its timers")
		}
		time.Sleep(time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond)
	if n := scheduledCount(f.d); n != 0 {
		t.Fatalf("measured %d times before the fake clock moved", n)
	}

	clock.Advance(time.Hour)
	clock.BlockUntilReady()

	for scheduledCount(f.d) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduled measurement did not run after advancing the clock")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected loop error %v", err)
	}
}

func TestSkipNext(t *testing.T) {
	clock := clockz.NewFakeClock()
	f := newFixtureWithClock(t, clock)

	first := f.d.scheduler.Next()
	next, err := f.d.SkipNext()
	if err != nil {
		t.Fatalf("SkipNext failed: %v", err)
	}
	if want := first.Add(time.Hour); !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}
	if got := f.d.Status().NextRun; !got.Equal(next) {
		t.Fatalf("status next run = %v, want %v", got, next)
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	h := f.d.Router()

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		contains string
	}{
		{"status", http.MethodGet, "/status", "", http.StatusOK, `"schedule": "@every 1h"`},
		{"measure", http.MethodPost, "/measure", "", http.StatusOK, `"trigger": "on-demand"`},
		{"history", http.MethodGet, "/history", "", http.StatusOK, `"on-demand"`},
		{"get calibration", http.MethodGet, "/calibration", "", http.StatusOK, `"warnDistance": 45`},
		{"invalid calibration", http.MethodPut, "/calibration", `{"fullDistance":50,"emptyDistance":58,"warnDistance":45}`, http.StatusBadRequest, "full distance"},
		{"malformed calibration", http.MethodPut, "/calibration", `{`, http.StatusBadRequest, ""},
		{"set calibration", http.MethodPut, "/calibration", `{"fullDistance":15,"emptyDistance":60,"warnDistance":50}`, http.StatusCreated, `"emptyDistance": 60`},
		{"get channels", http.MethodGet, "/channels", "", http.StatusOK, `"ntfyTopic": "saltlevelmonitor-abc123"`},
		{"empty channel patch", http.MethodPut, "/channels", `{}`, http.StatusBadRequest, "no channel setting"},
		{"set channels", http.MethodPut, "/channels", `{"barkEnabled":true,"barkKey":"abcdefgh"}`, http.StatusCreated, `"barkKey": "ab****gh"`},
		{"set language", http.MethodPut, "/language", `"fr-CA"`, http.StatusCreated, `"fr"`},
		{"get language", http.MethodGet, "/language", "", http.StatusOK, `"fr"`},
		{"unsupported language", http.MethodPut, "/language", `"de"`, http.StatusBadRequest, "unsupported"},
		{"wifi", http.MethodGet, "/wifi", "", http.StatusOK, `"state": "connected"`},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK, "saltlevel_measurements_total"},
		{"version", http.MethodGet, "/version", "", http.StatusOK, ""},
		{"skip next", http.MethodPost, "/schedule/skip", "", http.StatusOK, `"nextRun"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, h, tt.method, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("%s %s = %d, want %d: %s", tt.method, tt.path, w.Code, tt.wantCode, w.Body.String())
			}
			if tt.contains != "" && !strings.Contains(w.Body.String(), tt.contains) {
				t.Fatalf("%s %s body %q does not contain %q", tt.method, tt.path, w.Body.String(), tt.contains)
			}
		})
	}

	if got := f.d.calibrator.Calibration(); got.EmptyDistance != 60 {
		t.Fatalf("calibration not applied: %+v", got)
	}
	if got := notify.LoadSettings(f.store, notify.Settings{}); got.BarkKey != "abcdefgh" {
		t.Fatalf("bark key should be stored unredacted, got %q", got.BarkKey)
	}
}

func TestTestNotifyHandler(t *testing.T) {
	f := newFixture(t)

	w := serve(t, f.d.Router(), http.MethodPost, "/notify/test", "")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	var res notify.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Attempted != 1 || res.Succeeded != 1 || f.ntfy.count() != 1 {
		t.Fatalf("unexpected result %+v, server saw %d", res, f.ntfy.count())
	}
}

func TestStatusCarriesLastReading(t *testing.T) {
	f := newFixture(t)
	f.measurer.set(39)
	f.d.Cycle(context.Background(), TriggerOnDemand, false)

	w := serve(t, f.d.Router(), http.MethodGet, "/status", "")
	var st Status
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Reading == nil || st.Reading.Measurement.Distance != 39 {
		t.Fatalf("expected last reading in status, got %+v", st.Reading)
	}
	want := level.ToPercent(sensor.Measurement{Distance: 39, Valid: true}, level.DefaultCalibration())
	if !st.Reading.Percent.Defined || st.Reading.Percent.Value != want.Value {
		t.Fatalf("percent = %v, want %v", st.Reading.Percent, want)
	}
	if st.Wifi.SSID != "home" || len(st.Channels) != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestFactoryResetHandler(t *testing.T) {
	f := newFixture(t)

	w := serve(t, f.d.Router(), http.MethodPost, "/factory-reset", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d", w.Code)
	}
	if !w.Flushed {
		t.Fatalf("response was not flushed before the reset started")
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.wifi.resetCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("factory reset did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	readings []sensor.Measurement
}

func (p *fakePublisher) Publish(_ context.Context, m sensor.Measurement, _ level.Percent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readings = append(p.readings, m)
	return nil
}

func (p *fakePublisher) Close() {}

func TestEveryCyclePublishes(t *testing.T) {
	f := newFixture(t)
	pub := &fakePublisher{}
	f.d.publisher = pub
	ctx := context.Background()

	f.d.Cycle(ctx, TriggerBoot, false)
	f.measurer.set(-1)
	f.d.Cycle(ctx, TriggerSchedule, true)
	f.measurer.set(44)
	f.d.Cycle(ctx, TriggerOnDemand, false)

	if len(pub.readings) != 3 {
		t.Fatalf("expected 3 published readings, got %d", len(pub.readings))
	}
	if pub.readings[1].Valid {
		t.Fatalf("the no-reading sentinel should be published as is")
	}
	if pub.readings[2].Distance != 44 {
		t.Fatalf("unexpected published distance %v", pub.readings[2].Distance)
	}
}
