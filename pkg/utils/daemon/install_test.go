package daemon

import (
	"io"
	"strings"
	"testing"

	"github.com/coreos/go-systemd/v22/unit"
)

func TestUnitOptions(t *testing.T) {
	opts := UnitOptions("/usr/local/bin/saltlevel", InstallOptions{
		ConfigPath:         "/etc/saltlevel/config.yaml",
		EnvPath:            "/etc/saltlevel/saltlevel.env",
		SocketPath:         "/var/run/saltlevel.sock",
		AllowNonRootAccess: true,
		WatchdogSec:        60,
	})

	b, err := io.ReadAll(unit.Serialize(opts))
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)

	for _, want := range []string{
		"Type=notify",
		"ExecStart=/usr/local/bin/saltlevel daemon --config=/etc/saltlevel/config.yaml",
		"--always-allow-non-root-access",
		"SuccessExitStatus=75",
		"WatchdogSec=60",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("unit file does not contain %q:\n%s", want, s)
		}
	}

	parsed, err := unit.DeserializeOptions(strings.NewReader(s))
	if err != nil {
		t.Fatalf("generated unit does not parse: %v", err)
	}
	if len(parsed) != len(opts) {
		t.Fatalf("round trip lost options: %d != %d", len(parsed), len(opts))
	}
}

func TestUnitOptionsWithoutWatchdog(t *testing.T) {
	opts := UnitOptions("/bin/saltlevel", InstallOptions{})
	for _, o := range opts {
		if o.Name == "WatchdogSec" {
			t.Fatalf("watchdog should be omitted")
		}
		if o.Name == "ExecStart" && strings.Contains(o.Value, "non-root") {
			t.Fatalf("non-root access should be off by default")
		}
	}
}
