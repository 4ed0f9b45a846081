package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestBoltSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	if s.Path() != path {
		t.Fatalf("Path() = %q, want %q", s.Path(), path)
	}
	if err := Save(s, NamespaceAlert, "low", 2); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt (reopen) failed: %v", err)
	}
	defer s.Close()

	if got := Load(s, NamespaceAlert, "low", 0); got != 2 {
		t.Fatalf("expected 2 after reopen, got %d", got)
	}
}

func TestClear(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemory(),
	}
	b, err := OpenBolt(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer b.Close()
	stores["bolt"] = b

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			if err := Save(s, NamespaceWifi, "ssid", "home"); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := Save(s, NamespaceUI, "lang", "fr"); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if err := s.Clear(NamespaceWifi); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if _, err := s.Get(NamespaceWifi, "ssid"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after clear, got %v", err)
			}
			if got := Load(s, NamespaceUI, "lang", "en"); got != "fr" {
				t.Fatalf("clearing one namespace touched another: got %q", got)
			}
			// Clearing twice is fine.
			if err := s.Clear(NamespaceWifi); err != nil {
				t.Fatalf("second Clear failed: %v", err)
			}
		})
	}
}

func TestLoadFallsBackOnCorruption(t *testing.T) {
	s := NewMemory()
	_ = s.Put(NamespaceCalibration, "full_cm", []byte("not json"))

	if got := Load(s, NamespaceCalibration, "full_cm", 20.0); got != 20.0 {
		t.Fatalf("expected default for corrupt value, got %v", got)
	}
	if got := Load(s, NamespaceCalibration, "missing", 58.0); got != 58.0 {
		t.Fatalf("expected default for missing value, got %v", got)
	}
}
