package sensor

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const (
	consumer      = "saltlevel"
	triggerPulse  = 10 * time.Microsecond
	edgeQueueSize = 8
)

var _ Sampler = &GPIOSampler{}

// GPIOSampler drives a JSN-SR04T/HC-SR04 style sensor through the GPIO
// character device. The echo pulse width is taken from kernel event
// timestamps, so scheduling jitter in this process does not skew readings.
type GPIOSampler struct {
	mu      sync.Mutex
	trigger *gpiocdev.Line
	echo    *gpiocdev.Line
	edges   chan gpiocdev.LineEvent
}

// NewGPIOSampler requests the trigger and echo lines on chip (e.g.
// "gpiochip0").
func NewGPIOSampler(chip string, triggerOffset, echoOffset int) (*GPIOSampler, error) {
	s := &GPIOSampler{
		edges: make(chan gpiocdev.LineEvent, edgeQueueSize),
	}

	trigger, err := gpiocdev.RequestLine(chip, triggerOffset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(consumer),
	)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to request trigger line %s:%d", chip, triggerOffset)
	}

	echo, err := gpiocdev.RequestLine(chip, echoOffset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(s.onEdge),
	)
	if err != nil {
		_ = trigger.Close()
		return nil, pkgerrors.Wrapf(err, "failed to request echo line %s:%d", chip, echoOffset)
	}

	s.trigger = trigger
	s.echo = echo
	return s, nil
}

func (s *GPIOSampler) onEdge(evt gpiocdev.LineEvent) {
	select {
	case s.edges <- evt:
	default:
	}
}

// Sample fires one trigger pulse and waits for the echo rising and falling
// edges. It returns ErrNoEcho when ctx expires first.
func (s *GPIOSampler) Sample(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drain()

	if err := s.trigger.SetValue(1); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to raise trigger")
	}
	time.Sleep(triggerPulse)
	if err := s.trigger.SetValue(0); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to lower trigger")
	}

	var rise time.Duration
	rising := false
	for {
		select {
		case <-ctx.Done():
			return 0, ErrNoEcho
		case evt := <-s.edges:
			switch evt.Type {
			case gpiocdev.LineEventRisingEdge:
				rise = evt.Timestamp
				rising = true
			case gpiocdev.LineEventFallingEdge:
				if !rising {
					continue
				}
				return evt.Timestamp - rise, nil
			}
		}
	}
}

func (s *GPIOSampler) drain() {
	for {
		select {
		case <-s.edges:
		default:
			return
		}
	}
}

func (s *GPIOSampler) Close() error {
	var errs []error
	if s.echo != nil {
		errs = append(errs, s.echo.Close())
	}
	if s.trigger != nil {
		errs = append(errs, s.trigger.Close())
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
