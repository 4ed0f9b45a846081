package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/charlie0129/saltlevel/pkg/daemon"
	"github.com/charlie0129/saltlevel/pkg/level"
	"github.com/charlie0129/saltlevel/pkg/sensor"
)

func parseFloatArg(s, valueName string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}
	return v, nil
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// percentText colors the fill level against the warn level of cal.
func percentText(p level.Percent, cal level.Calibration) string {
	if !p.Defined {
		return color.New(color.Bold, color.FgYellow).Sprint("unknown")
	}
	warn := level.ToPercent(sensor.Measurement{Distance: cal.WarnDistance, Valid: true}, cal)
	switch {
	case p.Value <= warn.Value:
		return color.New(color.Bold, color.FgRed).Sprintf("%s%%", p)
	case p.Value <= warn.Value+15:
		return color.New(color.Bold, color.FgYellow).Sprintf("%s%%", p)
	default:
		return color.New(color.Bold, color.FgGreen).Sprintf("%s%%", p)
	}
}

func distanceText(r daemon.Reading) string {
	if !r.Measurement.Valid {
		return color.New(color.Bold, color.FgYellow).Sprint("out of range / no echo")
	}
	return bold("%.1f cm", r.Measurement.Distance)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
