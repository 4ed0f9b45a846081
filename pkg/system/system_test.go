package system

import (
	"net"
	"testing"
)

func TestSuffixOf(t *testing.T) {
	tests := []struct {
		hw   net.HardwareAddr
		want string
		ok   bool
	}{
		{net.HardwareAddr{0xb8, 0x27, 0xeb, 0xa1, 0xb2, 0xc3}, "A1B2C3", true},
		{net.HardwareAddr{0, 0, 0, 0, 0, 0}, "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		got, ok := suffixOf(tt.hw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("suffixOf(%v) = %q, %v; want %q, %v", tt.hw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDeviceSuffixFormat(t *testing.T) {
	s := DeviceSuffix("wlan0")
	if len(s) != 6 {
		t.Fatalf("expected six characters, got %q", s)
	}
}

func TestProcessRestarterRunsCleanup(t *testing.T) {
	var order []string
	r := NewProcessRestarter(func() { order = append(order, "store") })
	r.OnRestart(func() { order = append(order, "mqtt") })

	code := -1
	r.exit = func(c int) { code = c }
	r.Restart("test")

	if code != RestartExitCode {
		t.Fatalf("exit code = %d", code)
	}
	if len(order) != 2 || order[0] != "store" || order[1] != "mqtt" {
		t.Fatalf("unexpected cleanup order %v", order)
	}
}
