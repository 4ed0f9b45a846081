package wifi

import (
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

type fakeButton struct {
	pressed bool
}

func (b *fakeButton) Pressed() (bool, error) { return b.pressed, nil }

// pollFor polls every 10ms for d and reports whether the gesture fired.
func pollFor(g *ResetGesture, clock *clockz.FakeClock, d time.Duration) int {
	fired := 0
	for elapsed := time.Duration(0); elapsed < d; elapsed += 10 * time.Millisecond {
		clock.Advance(10 * time.Millisecond)
		if g.Poll() {
			fired++
		}
	}
	return fired
}

func TestResetGestureFiresAfterHold(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := &fakeButton{}
	g := NewResetGesture(b, clock, 50*time.Millisecond, 5*time.Second)

	b.pressed = true
	if n := pollFor(g, clock, 4900*time.Millisecond); n != 0 {
		t.Fatalf("fired before hold elapsed")
	}
	if n := pollFor(g, clock, 200*time.Millisecond); n != 1 {
		t.Fatalf("expected to fire once, fired %d", n)
	}
	// Keeping it pressed does not fire again.
	if n := pollFor(g, clock, 10*time.Second); n != 0 {
		t.Fatalf("fired again while still held")
	}
}

func TestResetGestureReleaseCancels(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := &fakeButton{}
	g := NewResetGesture(b, clock, 50*time.Millisecond, 5*time.Second)

	b.pressed = true
	pollFor(g, clock, 3*time.Second)
	b.pressed = false
	pollFor(g, clock, 100*time.Millisecond)

	b.pressed = true
	if n := pollFor(g, clock, 4*time.Second); n != 0 {
		t.Fatalf("hold time carried over a release")
	}
	if n := pollFor(g, clock, 1200*time.Millisecond); n != 1 {
		t.Fatalf("expected to fire after a full hold, fired %d", n)
	}
}

func TestResetGestureIgnoresBounce(t *testing.T) {
	clock := clockz.NewFakeClock()
	b := &fakeButton{}
	g := NewResetGesture(b, clock, 50*time.Millisecond, 5*time.Second)

	// Glitches shorter than the debounce never register as a press.
	for i := 0; i < 200; i++ {
		b.pressed = i%2 == 0
		pollFor(g, clock, 20*time.Millisecond)
	}
	if g.stable {
		t.Fatalf("bouncing input registered as pressed")
	}

	// A glitch while held does not restart the hold.
	b.pressed = true
	pollFor(g, clock, 3*time.Second)
	b.pressed = false
	pollFor(g, clock, 20*time.Millisecond)
	b.pressed = true
	if n := pollFor(g, clock, 2100*time.Millisecond); n != 1 {
		t.Fatalf("short release restarted the hold")
	}
}
