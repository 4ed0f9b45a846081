// Package daemon installs the saltlevel daemon as a systemd service.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/unit"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/saltlevel/pkg/system"
)

const (
	UnitName = "saltlevel.service"
)

var (
	unitPath = "/etc/systemd/system/" + UnitName
	// NetworkManager's dnsmasq would otherwise hold port 53 on the
	// provisioning access point.
	dnsmasqSharedPath = "/etc/NetworkManager/dnsmasq-shared.d/saltlevel.conf"
)

// InstallOptions are passed to the daemon command line of the unit.
type InstallOptions struct {
	ConfigPath         string
	EnvPath            string
	SocketPath         string
	AllowNonRootAccess bool
	// WatchdogSec is the systemd watchdog timeout. 0 disables it.
	WatchdogSec int
}

// UnitOptions returns the unit file for exePath.
func UnitOptions(exePath string, o InstallOptions) []*unit.UnitOption {
	cmdline := fmt.Sprintf("%s daemon --config=%s --env-file=%s --daemon-socket=%s",
		exePath, o.ConfigPath, o.EnvPath, o.SocketPath)
	if o.AllowNonRootAccess {
		cmdline += " --always-allow-non-root-access"
	}

	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "Salt level monitor"),
		unit.NewUnitOption("Unit", "Wants", "NetworkManager.service"),
		unit.NewUnitOption("Unit", "After", "NetworkManager.service"),
		unit.NewUnitOption("Service", "Type", "notify"),
		unit.NewUnitOption("Service", "ExecStart", cmdline),
		unit.NewUnitOption("Service", "Restart", "always"),
		unit.NewUnitOption("Service", "RestartSec", "2"),
		unit.NewUnitOption("Service", "SuccessExitStatus", strconv.Itoa(system.RestartExitCode)),
		unit.NewUnitOption("Install", "WantedBy", "multi-user.target"),
	}
	if o.WatchdogSec > 0 {
		opts = append(opts, unit.NewUnitOption("Service", "WatchdogSec", strconv.Itoa(o.WatchdogSec)))
	}
	return opts
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	// warn if the file already exists
	if _, err := os.Stat(path); err == nil {
		logrus.Warnf("%s already exists, overwriting", path)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func Install(ctx context.Context, o InstallOptions) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	logrus.Infof("writing systemd unit to %s", unitPath)
	if err := writeFile(unitPath, unit.Serialize(UnitOptions(exePath, o))); err != nil {
		return err
	}

	logrus.Infof("disabling NetworkManager dnsmasq DNS on the access point")
	if err := writeFile(dnsmasqSharedPath, strings.NewReader("port=0\n")); err != nil {
		return err
	}

	conn, err := sddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{unitPath}, false, true); err != nil {
		return fmt.Errorf("failed to enable %s: %w", UnitName, err)
	}

	logrus.Infof("starting saltlevel")

	done := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, UnitName, "replace", done); err != nil {
		return fmt.Errorf("failed to start %s: %w", UnitName, err)
	}
	select {
	case res := <-done:
		if res != "done" {
			return fmt.Errorf("failed to start %s: job %s", UnitName, res)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
