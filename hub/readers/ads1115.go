package readers

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/edgehub/sensorhub/hub"
)

const (
	ads1115Addr      = 0x48
	adsRegConversion = 0x00
	adsRegConfig     = 0x01
)

// analog sensor classes report under one of these measurement names
var adsMeasurements = []string{"light", "moisture", "voltage"}

// ADS1115 reads one single-ended channel of the ADS1115 ADC over I2C.
// It backs analog sensor classes such as LDR light sensors and soil
// moisture probes; pins[0] selects the ADC channel, bus names the I2C
// bus (empty picks the platform default).
type ADS1115 struct {
	Addr uint16 // defaults to 0x48
}

func (a *ADS1115) Read(desc *hub.SensorDescriptor) ([]hub.Reading, error) {
	if len(desc.Pins) < 1 {
		return nil, errors.Errorf("analog sensor %q needs a channel in pins", desc.Key)
	}
	channel := desc.Pins[0]
	if channel < 0 || channel > 3 {
		return nil, errors.Errorf("ads1115 channel out of range: %d", channel)
	}

	bus, err := i2creg.Open(desc.Bus)
	if err != nil {
		return nil, errors.Wrap(err, "open i2c bus")
	}
	defer bus.Close()

	addr := a.Addr
	if addr == 0 {
		addr = ads1115Addr
	}
	dev := &i2c.Dev{Bus: bus, Addr: addr}

	raw, err := adsConvert(dev, channel)
	if err != nil {
		return nil, err
	}
	// FSR ±4.096V over a signed 16-bit result
	volts := float64(raw) * 4.096 / 32768.0

	var readings []hub.Reading
	for _, name := range adsMeasurements {
		if r, ok := desc.NewReading(name, volts); ok {
			readings = append(readings, r)
		}
	}
	return readings, nil
}

// adsConvert triggers one single-shot conversion and polls the ready
// bit with a bounded deadline.
func adsConvert(dev *i2c.Dev, channel int) (int16, error) {
	// OS=1, single-ended MUX on the channel, PGA ±4.096V, single-shot
	// mode, 128SPS, comparator disabled
	config := uint16(0x8000) | uint16(4+channel)<<12 | 0x0200 | 0x0100 | 0x0080 | 0x0003
	if err := dev.Tx([]byte{adsRegConfig, byte(config >> 8), byte(config)}, nil); err != nil {
		return 0, errors.Wrap(err, "start conversion")
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	buf := make([]byte, 2)
	for {
		if err := dev.Tx([]byte{adsRegConfig}, buf); err != nil {
			return 0, errors.Wrap(err, "poll conversion")
		}
		if buf[0]&0x80 != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, errors.New("conversion timed out")
		}
		time.Sleep(time.Millisecond)
	}

	if err := dev.Tx([]byte{adsRegConversion}, buf); err != nil {
		return 0, errors.Wrap(err, "read conversion")
	}
	return int16(uint16(buf[0])<<8 | uint16(buf[1])), nil
}
