// Package readers contains the built-in reader capabilities. Each
// file implements one sensor class; RegisterDefaults wires them all
// into a dispatch under their type tags.
package readers

import (
	"fmt"

	"github.com/edgehub/sensorhub/hub"
)

// RegisterDefaults registers every built-in reader under its type tag.
func RegisterDefaults(d *hub.Dispatch) {
	d.Register("DHT11", &DHT{Model: ModelDHT11})
	d.Register("DHT22", &DHT{Model: ModelDHT22})
	d.Register("DS18B20", &DS18B20{})
	d.Register("Button", &Button{})
	d.Register("LDR", &ADS1115{})
	d.Register("SoilMoisture", &ADS1115{})
	d.Register("GY521", &MPU6050{})
	d.Register("WavePlus", &WavePlus{})
}

func pinName(n int) string {
	return fmt.Sprintf("GPIO%d", n)
}
