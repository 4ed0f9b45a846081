package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charlie0129/saltlevel/pkg/wifi"
)

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of the monitor",
		Long:    `Get the last salt level reading, alert state, calibration, notification channels and connectivity.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			cmd.Println(bold("Salt level:"))
			if st.Reading == nil {
				cmd.Println("  No reading yet.")
			} else {
				cmd.Printf("  Level: %s\n", percentText(st.Reading.Percent, st.Calibration))
				cmd.Printf("  Distance: %s\n", distanceText(*st.Reading))
				cmd.Printf("  Measured: %s (%s)\n", ago(st.Reading.Time), st.Reading.Trigger)
			}
			cmd.Printf("  Schedule: %s, next %s\n", bold("%s", st.Schedule), ago(st.NextRun))
			cmd.Println()

			cmd.Println(bold("Alert:"))
			if st.Alert.Notified {
				cmd.Printf("  State: %s\n", bold("alerted, add salt"))
				cmd.Println("    Another notification will be sent after the level recovers and drops again.")
			} else {
				cmd.Printf("  State: %s\n", bold("quiet"))
			}
			cmd.Printf("  Consecutive low/high readings: %d/%d\n", st.Alert.ConsecutiveLow, st.Alert.ConsecutiveHigh)
			cmd.Println()

			cmd.Println(bold("Calibration:"))
			cmd.Printf("  Full: %s\n", bold("%.1f cm", st.Calibration.FullDistance))
			cmd.Printf("  Empty: %s\n", bold("%.1f cm", st.Calibration.EmptyDistance))
			cmd.Printf("  Warn: %s\n", bold("%.1f cm", st.Calibration.WarnDistance))
			cmd.Println()

			cmd.Println(bold("Notifications:"))
			if len(st.Channels) == 0 {
				cmd.Printf("  Channels: %s (no channel enabled)\n", bool2Text(false))
			} else {
				cmd.Printf("  Channels: %s\n", bold("%s", strings.Join(st.Channels, ", ")))
			}
			cmd.Printf("  Language: %s\n", bold("%s", st.Language))
			cmd.Println()

			cmd.Println(bold("Wi-Fi:"))
			cmd.Printf("  Connected: %s\n", bool2Text(st.Wifi.State == wifi.Connected))
			cmd.Printf("  State: %s\n", st.Wifi.State)
			if st.Wifi.SSID != "" {
				cmd.Printf("  Network: %s\n", bold("%s", st.Wifi.SSID))
			}
			cmd.Printf("  Daemon up since: %s\n", ago(st.StartedAt))

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON.")

	return cmd
}

func NewMeasureCommand() *cobra.Command {
	skipNext := false

	cmd := &cobra.Command{
		Use:     "measure",
		GroupID: gBasic,
		Short:   "Take a reading now",
		Long: `Take a reading now and publish it to MQTT.

On-demand readings do not count towards the low-salt alert.

With --skip-next no reading is taken; the next scheduled reading is skipped
instead, for example while the tank is being refilled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if skipNext {
				next, err := apiClient.SkipNext()
				if err != nil {
					return err
				}
				cmd.Printf("Skipped the next reading. Next reading %s.\n", bold("%s", ago(next)))
				return nil
			}

			r, err := apiClient.Measure()
			if err != nil {
				return err
			}
			cal, err := apiClient.GetCalibration()
			if err != nil {
				return err
			}
			cmd.Printf("Distance: %s\n", distanceText(r))
			cmd.Printf("Level: %s\n", percentText(r.Percent, cal))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipNext, "skip-next", false, "Skip the next scheduled reading instead of measuring now.")

	return cmd
}

func NewHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "history",
		GroupID: gBasic,
		Short:   "List recent readings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			readings, err := apiClient.GetHistory()
			if err != nil {
				return err
			}
			cal, err := apiClient.GetCalibration()
			if err != nil {
				return err
			}
			if len(readings) == 0 {
				cmd.Println("No readings yet.")
				return nil
			}
			for i := len(readings) - 1; i >= 0; i-- {
				r := readings[i]
				cmd.Printf("%-16s %-10s %s  %s\n", ago(r.Time), r.Trigger, percentText(r.Percent, cal), distanceText(r))
			}
			return nil
		},
	}
}
