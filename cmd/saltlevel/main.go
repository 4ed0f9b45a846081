package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/saltlevel/pkg/client"
	"github.com/charlie0129/saltlevel/pkg/config"
	"github.com/charlie0129/saltlevel/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/saltlevel.sock"
	configPath     = config.DefaultConfigPath
	envPath        = config.DefaultEnvPath
)

var (
	gBasic        = "Basic:"
	gNotify       = "Notifications:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gNotify,
		gAdvanced,
		gInstallation,
	}
)

var apiClient *client.Client

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: saltlevel daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you installed it? Check with 'systemctl status saltlevel'.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or reinstall the daemon with the '--allow-non-root-access' flag to grant permissions to your user")
	}
}

func main() {
	// The monitor runs on small boards and needs very little.
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

// checkVersion warns when the client and the daemon were built from
// different versions.
func checkVersion() {
	daemonVersion, err := apiClient.GetVersion()
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			logrus.Error("saltlevel daemon is too old to report its version. Reinstall it to make sure client and daemon are the same version.")
		}
		return
	}
	if daemonVersion != version.Version {
		logrus.WithFields(logrus.Fields{
			"clientVersion": version.Version,
			"daemonVersion": daemonVersion,
		}).Warn("Version mismatch between client and daemon. Reinstall to make sure both are the same version.")
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saltlevel",
		Short: "saltlevel monitors the salt level of a water softener brine tank",
		Long: `saltlevel monitors the salt level of a water softener brine tank with an
ultrasonic distance sensor, and notifies you when it is time to add salt.

This command controls the saltlevel daemon running on the device.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			// The daemon itself and the installer do not talk to a daemon.
			if cmd.GroupID == gInstallation || cmd.Name() == "daemon" || cmd.Name() == "version" {
				return nil
			}
			checkVersion()

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&envPath, "env-file", envPath, "dotenv file with secrets")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "saltlevel daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewMeasureCommand(),
		NewHistoryCommand(),
		NewCalibrationCommand(),
		NewNotifyCommand(),
		NewLanguageCommand(),
		NewWifiCommand(),
		NewWatchCommand(),
		NewFactoryResetCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
