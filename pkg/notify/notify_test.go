package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/store"
	"github.com/charlie0129/saltlevel/pkg/utils/ptr"
)

type fakeChannel struct {
	name    string
	enabled bool
	err     error
	// block makes Send wait for its context to end.
	block bool

	mu    sync.Mutex
	calls int
	title string
	body  string
}

func (f *fakeChannel) Name() string  { return f.name }
func (f *fakeChannel) Enabled() bool { return f.enabled }

func (f *fakeChannel) Send(ctx context.Context, title, body string) error {
	f.mu.Lock()
	f.calls++
	f.title, f.body = title, body
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func TestBarkSend(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	b := &Bark{Server: srv.URL, Key: "abc", On: true, Client: srv.Client()}
	if err := b.Send(context.Background(), "Salt Level Low", "Distance 46.0cm (32% full)"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if want := "/abc/Salt Level Low/Distance 46.0cm (32% full)"; gotPath != want {
		t.Fatalf("path = %q, want %q", gotPath, want)
	}
}

func TestNtfySend(t *testing.T) {
	var hdr http.Header
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		if r.URL.Path != "/saltlevelmonitor-a1b2c3" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	n := &Ntfy{Server: srv.URL, Topic: "saltlevelmonitor-a1b2c3", On: true, Client: srv.Client()}
	if err := n.Send(context.Background(), "Salt Level Low", "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if body != "hello" {
		t.Fatalf("body = %q", body)
	}
	if hdr.Get("Title") != "Salt Level Low" || hdr.Get("Priority") != "high" || hdr.Get("Tags") != "droplet,warning" {
		t.Fatalf("unexpected headers %v", hdr)
	}
}

func TestNon200IsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	n := &Ntfy{Server: srv.URL, Topic: "t", On: true, Client: srv.Client()}
	err := n.Send(context.Background(), "a", "b")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("expected StatusError 403, got %v", err)
	}
}

func TestTelegramSend(t *testing.T) {
	var chatID, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bottok/getMe":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"salt","username":"salt_bot"}}`)
		case "/bottok/sendMessage":
			_ = r.ParseForm()
			chatID, text = r.FormValue("chat_id"), r.FormValue("text")
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tg := &Telegram{
		Endpoint: srv.URL + "/bot%s/%s",
		Token:    "tok",
		ChatID:   42,
		On:       true,
		Client:   srv.Client(),
	}
	if err := tg.Send(context.Background(), "Salt Level Low", "body"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if chatID != "42" || !strings.Contains(text, "Salt Level Low") || !strings.Contains(text, "body") {
		t.Fatalf("unexpected message chat=%q text=%q", chatID, text)
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	bad := &fakeChannel{name: "bark", enabled: true, err: errors.New("boom")}
	good := &fakeChannel{name: "ntfy", enabled: true}
	off := &fakeChannel{name: "telegram", enabled: false}

	d := NewDispatcherWithChannels(Options{}, bad, good, off)
	res := d.Dispatch(context.Background(), 46, level.Percent{Value: 31.6, Defined: true})

	if res.Attempted != 2 || res.Succeeded != 1 || !res.OK() {
		t.Fatalf("unexpected result %+v", res)
	}
	if off.calls != 0 {
		t.Fatalf("disabled channel was called")
	}
	if good.title != "Salt Level Low" || good.body != "Distance 46.0cm (32% full)" {
		t.Fatalf("unexpected message %q / %q", good.title, good.body)
	}
}

func TestDispatchTimeout(t *testing.T) {
	stuck := &fakeChannel{name: "bark", enabled: true, block: true}
	good := &fakeChannel{name: "ntfy", enabled: true}

	d := NewDispatcherWithChannels(Options{Timeout: 50 * time.Millisecond}, stuck, good)

	start := time.Now()
	res := d.Dispatch(context.Background(), 46, level.Percent{Value: 31.6, Defined: true})
	elapsed := time.Since(start)

	if res.Attempted != 2 || res.Succeeded != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if good.calls != 1 {
		t.Fatalf("channel after the stuck one was not attempted")
	}
	if elapsed > time.Second {
		t.Fatalf("dispatch took %v, want about 50ms", elapsed)
	}
}

func TestTelegramSendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	tg := &Telegram{
		Endpoint: srv.URL + "/bot%s/%s",
		Token:    "tok",
		ChatID:   42,
		On:       true,
		// no client timeout; only ctx bounds the attempt
		Client: &http.Client{},
	}

	d := NewDispatcherWithChannels(Options{Timeout: 50 * time.Millisecond}, tg)

	start := time.Now()
	res := d.Send(context.Background(), "a", "b")
	elapsed := time.Since(start)

	if res.Attempted != 1 || res.Succeeded != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if elapsed > time.Second {
		t.Fatalf("telegram attempt took %v, want about 50ms", elapsed)
	}
}

func TestDispatchAllFail(t *testing.T) {
	d := NewDispatcherWithChannels(Options{},
		&fakeChannel{name: "a", enabled: true, err: errors.New("x")},
		&fakeChannel{name: "b", enabled: true, err: errors.New("y")},
	)
	res := d.Dispatch(context.Background(), 50, level.Percent{Value: 21, Defined: true})
	if res.Attempted != 2 || res.OK() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDispatchOffline(t *testing.T) {
	ch := &fakeChannel{name: "a", enabled: true}
	d := NewDispatcherWithChannels(Options{
		Online: func(context.Context) bool { return false },
	}, ch)

	res := d.Dispatch(context.Background(), 50, level.Percent{Value: 21, Defined: true})
	if res.Attempted != 0 || ch.calls != 0 {
		t.Fatalf("expected nothing attempted while offline, got %+v", res)
	}
}

func TestDispatchFrench(t *testing.T) {
	ch := &fakeChannel{name: "a", enabled: true}
	d := NewDispatcherWithChannels(Options{Language: func() string { return "fr" }}, ch)
	d.Dispatch(context.Background(), 46, level.Percent{Value: 31.6, Defined: true})
	if ch.title != "Niveau de sel bas" {
		t.Fatalf("unexpected title %q", ch.title)
	}
}

func TestSettingsRoundTripThroughStore(t *testing.T) {
	s := store.NewMemory()
	def := Settings{NtfyEnabled: true, NtfyTopic: "saltlevelmonitor-a1b2c3"}

	if got := LoadSettings(s, def); got != def {
		t.Fatalf("expected defaults on empty store, got %+v", got)
	}

	want := Settings{BarkEnabled: true, BarkKey: "k", TelegramEnabled: true, TelegramToken: "t", TelegramChat: 9}
	if err := SaveSettings(s, want); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if got := LoadSettings(s, def); got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestApplyEnablesChannels(t *testing.T) {
	d := NewDispatcher(Options{}, Settings{BarkEnabled: true, BarkKey: "k", NtfyEnabled: true})
	got := d.Enabled()
	if len(got) != 1 || got[0] != "bark" {
		t.Fatalf("expected only bark enabled (ntfy has no topic), got %v", got)
	}
}

func TestRedacted(t *testing.T) {
	s := Settings{BarkKey: "abcdefgh", TelegramToken: "xy"}.Redacted()
	if s.BarkKey != "ab****gh" || s.TelegramToken != "****" {
		t.Fatalf("unexpected redaction %+v", s)
	}
}

func TestSettingsPatch(t *testing.T) {
	base := Settings{BarkEnabled: true, BarkKey: "old", NtfyTopic: "topic", TelegramChat: 7}

	if !(SettingsPatch{}).Empty() {
		t.Fatalf("zero patch should be empty")
	}
	if got := (SettingsPatch{}).Apply(base); got != base {
		t.Fatalf("empty patch changed settings: %+v", got)
	}

	got := SettingsPatch{
		BarkEnabled:  ptr.To(false),
		NtfyEnabled:  ptr.To(true),
		TelegramChat: ptr.To(int64(42)),
	}.Apply(base)
	want := Settings{BarkEnabled: false, BarkKey: "old", NtfyEnabled: true, NtfyTopic: "topic", TelegramChat: 42}
	if got != want {
		t.Fatalf("Apply() = %+v, want %+v", got, want)
	}
}
