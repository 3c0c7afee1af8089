package readers

import (
	"math"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/edgehub/sensorhub/hub"
)

const (
	mpuAddr     = 0x68
	mpuRegPower = 0x6B
	mpuRegAccel = 0x3B
)

// emission order, so the batch layout stays deterministic
var mpuMeasurements = []string{"accel_x", "accel_y", "accel_z", "temp", "gyro_x", "gyro_y", "gyro_z"}

// MPU6050 reads the GY-521 accelerometer/gyro module over I2C. The
// raw 16-bit registers are scaled to g, °/s and °C using the power-on
// default full-scale ranges.
type MPU6050 struct {
	Addr uint16 // defaults to 0x68
}

func (m *MPU6050) Read(desc *hub.SensorDescriptor) ([]hub.Reading, error) {
	bus, err := i2creg.Open(desc.Bus)
	if err != nil {
		return nil, errors.Wrap(err, "open i2c bus")
	}
	defer bus.Close()

	addr := m.Addr
	if addr == 0 {
		addr = mpuAddr
	}
	dev := &i2c.Dev{Bus: bus, Addr: addr}

	// clear the sleep bit; the chip powers up asleep
	if err := dev.Tx([]byte{mpuRegPower, 0x00}, nil); err != nil {
		return nil, errors.Wrap(err, "wake sensor")
	}

	// accel xyz, temp, gyro xyz are 14 contiguous bytes
	raw := make([]byte, 14)
	if err := dev.Tx([]byte{mpuRegAccel}, raw); err != nil {
		return nil, errors.Wrap(err, "read registers")
	}
	word := func(i int) float64 {
		return float64(int16(uint16(raw[i])<<8 | uint16(raw[i+1])))
	}

	values := map[string]float64{
		"accel_x": word(0) / 16384.0,
		"accel_y": word(2) / 16384.0,
		"accel_z": word(4) / 16384.0,
		"temp":    word(6)/340.0 + 36.53,
		"gyro_x":  word(8) / 131.0,
		"gyro_y":  word(10) / 131.0,
		"gyro_z":  word(12) / 131.0,
	}

	readings := make([]hub.Reading, 0, len(mpuMeasurements))
	for _, name := range mpuMeasurements {
		if r, ok := desc.NewReading(name, round2(values[name])); ok {
			readings = append(readings, r)
		}
	}
	return readings, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
