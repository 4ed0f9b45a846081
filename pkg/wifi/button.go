package wifi

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

var _ Button = &GPIOButton{}

// GPIOButton is a normally-open button wired between a GPIO line and
// ground, using the internal pull-up.
type GPIOButton struct {
	line *gpiocdev.Line
}

func NewGPIOButton(chip string, offset int) (*GPIOButton, error) {
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.AsActiveLow,
		gpiocdev.WithConsumer("saltlevel-reset"),
	)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to request reset line %s:%d", chip, offset)
	}
	return &GPIOButton{line: line}, nil
}

func (b *GPIOButton) Pressed() (bool, error) {
	v, err := b.line.Value()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

func (b *GPIOButton) Close() error {
	return b.line.Close()
}
