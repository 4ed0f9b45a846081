package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	daemonutils "github.com/charlie0129/saltlevel/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false
	watchdogSec := 60

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install saltlevel as a systemd service",
		GroupID: gInstallation,
		Long: `Install saltlevel daemon as a systemd service.

This makes saltlevel run in the background and automatically start on boot. You must run this command as root.

By default, only root user is allowed to access the daemon. If you want to allow non-root users, use the --allow-non-root-access flag, so you don't have to use sudo every time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the saltlevel daemon.")
			} else {
				logrus.Info("only root user is allowed to access the saltlevel daemon.")
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			err := daemonutils.Install(ctx, daemonutils.InstallOptions{
				ConfigPath:         configPath,
				EnvPath:            envPath,
				SocketPath:         unixSocketPath,
				AllowNonRootAccess: allowNonRootAccess,
				WatchdogSec:        watchdogSec,
			})
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `saltlevel install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access saltlevel daemon.")
	cmd.Flags().IntVar(&watchdogSec, "watchdog-sec", watchdogSec, "systemd watchdog timeout in seconds, 0 disables it.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall the saltlevel systemd service",
		GroupID: gInstallation,
		Long: `Uninstall saltlevel daemon from systemd.

This stops saltlevel and removes its unit. Stored calibration and settings are kept.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			err := daemonutils.Uninstall(ctx)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			cmd.Println("successfully uninstalled saltlevel")
			return nil
		},
	}
}
