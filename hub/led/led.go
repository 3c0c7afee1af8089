// Package led drives the status LED that mirrors link state, the way
// a board's onboard LED is used during network bring-up.
package led

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

type LED struct {
	pin gpio.PinIO
}

// Open claims a GPIO pin by name (e.g. "GPIO2") and starts with the
// LED off.
func Open(name string) (*LED, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("no such gpio pin %q", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, errors.Wrapf(err, "init led pin %q", name)
	}
	return &LED{pin: pin}, nil
}

func (l *LED) Set(on bool) {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	_ = l.pin.Out(level)
}
