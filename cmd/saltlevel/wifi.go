package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/saltlevel/pkg/events"
)

func NewWifiCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "wifi",
		GroupID: gAdvanced,
		Short:   "Show the Wi-Fi connection state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := apiClient.GetWifi()
			if err != nil {
				return err
			}
			cmd.Printf("State: %s\n", bold("%s", w.State))
			if w.SSID != "" {
				cmd.Printf("Network: %s\n", bold("%s", w.SSID))
			}
			return nil
		},
	}
}

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		GroupID: gAdvanced,
		Short:   "Print daemon events as they happen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for ev := range apiClient.SubscribeEvents(ctx) {
				switch ev.Name {
				case events.Measurement:
					m, err := events.DecodeAs[events.MeasurementEvent](ev)
					if err != nil {
						logrus.WithError(err).Error("failed to decode measurement event")
						continue
					}
					if m.Distance == nil {
						cmd.Printf("%s reading: out of range / no echo\n", m.Trigger)
						continue
					}
					pct := "unknown"
					if m.Percent != nil {
						pct = fmt.Sprintf("%.1f%%", *m.Percent)
					}
					cmd.Printf("%s reading: %.1f cm, %s\n", m.Trigger, *m.Distance, pct)
				case events.AlertTransition:
					a, err := events.DecodeAs[events.AlertTransitionEvent](ev)
					if err != nil {
						logrus.WithError(err).Error("failed to decode alert event")
						continue
					}
					cmd.Printf("alert: %s -> %s at %.1f cm\n", a.From, a.To, a.Distance)
				case events.WifiState:
					w, err := events.DecodeAs[events.WifiStateEvent](ev)
					if err != nil {
						logrus.WithError(err).Error("failed to decode wifi event")
						continue
					}
					cmd.Printf("wifi: %s -> %s\n", w.From, w.To)
				default:
					cmd.Printf("%s: %s\n", ev.Name, string(ev.Data))
				}
			}
			return nil
		},
	}
}

func NewFactoryResetCommand() *cobra.Command {
	yes := false

	cmd := &cobra.Command{
		Use:     "factory-reset",
		GroupID: gAdvanced,
		Short:   "Erase Wi-Fi credentials, calibration and alert state",
		Long: `Erase Wi-Fi credentials, calibration and alert state, then restart.

The device comes back with its setup access point unless default Wi-Fi
credentials are configured. This is the same as holding the reset button.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				cmd.Print("This erases the Wi-Fi credentials and calibration. Continue? [y/N] ")
				answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					return fmt.Errorf("aborted")
				}
			}

			msg, err := apiClient.FactoryReset()
			if err != nil {
				return err
			}
			logrus.Info(msg)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation.")

	return cmd
}
