package daemon

import (
	"context"
	"fmt"
	"os"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/sirupsen/logrus"
)

func Uninstall(ctx context.Context) error {
	conn, err := sddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w. Are you root?", err)
	}
	defer conn.Close()

	logrus.Infof("stopping saltlevel")

	done := make(chan string, 1)
	if _, err := conn.StopUnitContext(ctx, UnitName, "replace", done); err != nil {
		logrus.WithError(err).Warnf("failed to stop %s", UnitName)
	} else {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if _, err := conn.DisableUnitFilesContext(ctx, []string{UnitName}, false); err != nil {
		logrus.WithError(err).Warnf("failed to disable %s", UnitName)
	}

	logrus.Infof("removing systemd unit")

	for _, path := range []string{unitPath, dnsmasqSharedPath} {
		// if the file doesn't exist, we don't need to remove it
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w. Are you root?", path, err)
		}
	}

	return conn.ReloadContext(ctx)
}
