package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		GroupID: gBasic,
		Short:   "Show or change the tank calibration",
		Long: `Show or change the tank calibration.

Distances are measured from the sensor to the salt surface, in centimetres:
  full   the distance when the tank is full (100%)
  empty  the distance when the tank is empty (0%)
  warn   a low-salt alert is raised at or beyond this distance

full must be less than warn, and warn must not exceed empty.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cal, err := apiClient.GetCalibration()
			if err != nil {
				return err
			}
			cmd.Printf("Full: %s\n", bold("%.1f cm", cal.FullDistance))
			cmd.Printf("Empty: %s\n", bold("%.1f cm", cal.EmptyDistance))
			cmd.Printf("Warn: %s\n", bold("%.1f cm", cal.WarnDistance))
			return nil
		},
	}

	cmd.AddCommand(newCalibrationSetCommand())

	return cmd
}

func newCalibrationSetCommand() *cobra.Command {
	var full, empty, warn string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more calibration distances",
		Example: `  saltlevel calibration set --full 18 --empty 60
  saltlevel calibration set --warn 48`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cal, err := apiClient.GetCalibration()
			if err != nil {
				return err
			}

			for _, f := range []struct {
				name string
				raw  string
				dst  *float64
			}{
				{"full", full, &cal.FullDistance},
				{"empty", empty, &cal.EmptyDistance},
				{"warn", warn, &cal.WarnDistance},
			} {
				if !cmd.Flags().Changed(f.name) {
					continue
				}
				v, err := parseFloatArg(f.raw, f.name+" distance")
				if err != nil {
					return err
				}
				*f.dst = v
			}

			if !cmd.Flags().Changed("full") && !cmd.Flags().Changed("empty") && !cmd.Flags().Changed("warn") {
				return fmt.Errorf("nothing to change, use --full, --empty or --warn")
			}

			got, err := apiClient.SetCalibration(cal)
			if err != nil {
				return fmt.Errorf("failed to set calibration: %v", err)
			}

			logrus.Infof("calibration set to full %.1fcm, empty %.1fcm, warn %.1fcm",
				got.FullDistance, got.EmptyDistance, got.WarnDistance)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&full, "full", "", "distance in cm when the tank is full")
	f.StringVar(&empty, "empty", "", "distance in cm when the tank is empty")
	f.StringVar(&warn, "warn", "", "distance in cm at which to alert")

	return cmd
}
