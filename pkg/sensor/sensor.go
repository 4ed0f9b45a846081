// Package sensor acquires distance readings from an ultrasonic time-of-flight
// sensor. A reading is the median of a few echo samples; samples that time
// out are discarded.
package sensor

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoEcho is returned by a Sampler when no echo arrived in time.
var ErrNoEcho = errors.New("no echo")

// MaxRange is the largest distance, in centimetres, the sensor can physically
// report. Anything beyond is noise.
const MaxRange = 600.0

// speed of sound in cm/µs, halved for the round trip.
const cmPerMicrosecond = 0.0343 / 2

// Sampler triggers one ping and returns the echo pulse width.
type Sampler interface {
	Sample(ctx context.Context) (time.Duration, error)
}

// Measurement is a single distance reading in centimetres.
type Measurement struct {
	Distance float64 `json:"distance"`
	Valid    bool    `json:"valid"`
}

// NoReading is the sentinel returned when every sample failed.
var NoReading = Measurement{Distance: -1, Valid: false}

// Options configures an Acquirer.
type Options struct {
	Samples       int
	SampleTimeout time.Duration
	Settle        time.Duration
}

// DefaultOptions returns the acquisition parameters used by the device.
func DefaultOptions() Options {
	return Options{
		Samples:       3,
		SampleTimeout: 30 * time.Millisecond,
		Settle:        50 * time.Millisecond,
	}
}

// Acquirer takes median-of-N measurements from a Sampler.
type Acquirer struct {
	sampler Sampler
	opts    Options
	sleep   func(context.Context, time.Duration) error
}

func NewAcquirer(sampler Sampler, opts Options) *Acquirer {
	if opts.Samples <= 0 {
		opts.Samples = DefaultOptions().Samples
	}
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = DefaultOptions().SampleTimeout
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	return &Acquirer{
		sampler: sampler,
		opts:    opts,
		sleep:   sleepContext,
	}
}

// Measure takes Options.Samples samples and returns their median. It returns
// NoReading when no sample produced a usable echo.
func (a *Acquirer) Measure(ctx context.Context) Measurement {
	distances := make([]float64, 0, a.opts.Samples)
	failures := 0

	for i := 0; i < a.opts.Samples; i++ {
		if i > 0 && a.opts.Settle > 0 {
			if err := a.sleep(ctx, a.opts.Settle); err != nil {
				break
			}
		}

		d, err := a.sampleOnce(ctx)
		if err != nil {
			failures++
			continue
		}
		distances = append(distances, d)
	}

	if len(distances) == 0 {
		logrus.WithFields(logrus.Fields{
			"samples":  a.opts.Samples,
			"failures": failures,
		}).Warn("no valid echo from sensor")
		return NoReading
	}

	m := Measurement{Distance: Median(distances), Valid: true}
	logrus.WithFields(logrus.Fields{
		"distance": m.Distance,
		"valid":    len(distances),
		"failures": failures,
	}).Debug("measured distance")
	return m
}

func (a *Acquirer) sampleOnce(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.SampleTimeout)
	defer cancel()

	width, err := a.sampler.Sample(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoEcho) && !errors.Is(err, context.DeadlineExceeded) {
			logrus.WithError(err).Debug("sample failed")
		}
		return 0, ErrNoEcho
	}

	d := EchoToDistance(width)
	if d <= 0 || d > MaxRange || math.IsNaN(d) {
		return 0, ErrNoEcho
	}
	return d, nil
}

// EchoToDistance converts an echo pulse width to centimetres.
func EchoToDistance(width time.Duration) float64 {
	us := float64(width) / float64(time.Microsecond)
	return us * cmPerMicrosecond
}

// Median returns the median of values. For an even count it is the mean of
// the two middle values. The input is not modified.
func Median(values []float64) float64 {
	n := len(values)
	switch n {
	case 0:
		return math.NaN()
	case 1:
		return values[0]
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
