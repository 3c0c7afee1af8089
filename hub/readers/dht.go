package readers

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/edgehub/sensorhub/hub"
)

type DHTModel int

const (
	ModelDHT11 DHTModel = iota
	ModelDHT22
)

// DHT reads the single-wire DHT11/DHT22 temperature and humidity
// sensors. The 40-bit frame is sampled by busy-polling the data pin
// inside a hard-bounded window; an absent or stuck sensor costs at
// most the start signal plus that window.
type DHT struct {
	Model DHTModel
}

// the whole frame takes about 5ms on the wire
const dhtFrameWindow = 10 * time.Millisecond

func (d *DHT) Read(desc *hub.SensorDescriptor) ([]hub.Reading, error) {
	if len(desc.Pins) < 1 {
		return nil, errors.Errorf("dht sensor %q needs one data pin", desc.Key)
	}
	pin := gpioreg.ByName(pinName(desc.Pins[0]))
	if pin == nil {
		return nil, errors.Errorf("no such gpio pin %d", desc.Pins[0])
	}

	temp, hum, err := d.sample(pin)
	if err != nil {
		return nil, err
	}

	readings := make([]hub.Reading, 0, 2)
	if r, ok := desc.NewReading("temperature", temp); ok {
		readings = append(readings, r)
	}
	if r, ok := desc.NewReading("humidity", hum); ok {
		readings = append(readings, r)
	}
	return readings, nil
}

func (d *DHT) sample(pin gpio.PinIO) (temp, hum float64, err error) {
	// start signal: hold the line low, then release it and let the
	// sensor answer
	if err := pin.Out(gpio.Low); err != nil {
		return 0, 0, errors.Wrap(err, "start signal")
	}
	time.Sleep(18 * time.Millisecond)
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return 0, 0, errors.Wrap(err, "release line")
	}

	pulses := highPulses(pin, dhtFrameWindow)
	if len(pulses) < 40 {
		return 0, 0, errors.Errorf("short frame from sensor: %d pulses", len(pulses))
	}

	// the last 40 highs are the data bits; anything before them is
	// the response preamble
	data, err := decodeFrame(pulses[len(pulses)-40:])
	if err != nil {
		return 0, 0, err
	}
	temp, hum = d.convert(data)
	return temp, hum, nil
}

// highPulses busy-samples the data line and returns the duration of
// every completed high period seen inside the window.
func highPulses(pin gpio.PinIO, window time.Duration) []time.Duration {
	deadline := time.Now().Add(window)
	var pulses []time.Duration
	level := pin.Read()
	start := time.Now()
	for time.Now().Before(deadline) {
		next := pin.Read()
		if next == level {
			continue
		}
		if level == gpio.High {
			pulses = append(pulses, time.Since(start))
		}
		level = next
		start = time.Now()
	}
	return pulses
}

// decodeFrame turns 40 high-pulse widths into the sensor's 5 data
// bytes and verifies the checksum. A high of ~28us is a 0 bit, ~70us a
// 1 bit.
func decodeFrame(bits []time.Duration) ([5]byte, error) {
	var data [5]byte
	for i, w := range bits {
		data[i/8] <<= 1
		if w > 50*time.Microsecond {
			data[i/8] |= 1
		}
	}
	if data[0]+data[1]+data[2]+data[3] != data[4] {
		return data, errors.New("checksum mismatch")
	}
	return data, nil
}

func (d *DHT) convert(data [5]byte) (temp, hum float64) {
	if d.Model == ModelDHT11 {
		return float64(data[2]), float64(data[0])
	}
	hum = float64(uint16(data[0])<<8|uint16(data[1])) / 10.0
	raw := uint16(data[2])<<8 | uint16(data[3])
	temp = float64(raw&0x7fff) / 10.0
	if raw&0x8000 != 0 {
		temp = -temp
	}
	return temp, hum
}
