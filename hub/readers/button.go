package readers

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/edgehub/sensorhub/hub"
)

// Button reads a momentary switch wired against a pull-up. The raw
// level is inverted: pressed reads low and is reported as 1.
type Button struct{}

func (b *Button) Read(desc *hub.SensorDescriptor) ([]hub.Reading, error) {
	if len(desc.Pins) < 1 {
		return nil, errors.Errorf("button %q needs one pin", desc.Key)
	}
	pin := gpioreg.ByName(pinName(desc.Pins[0]))
	if pin == nil {
		return nil, errors.Errorf("no such gpio pin %d", desc.Pins[0])
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, errors.Wrap(err, "configure pin")
	}

	value := 0.0
	if pin.Read() == gpio.Low {
		value = 1.0
	}
	r, ok := desc.NewReading("state", value)
	if !ok {
		return nil, nil
	}
	return []hub.Reading{r}, nil
}
