package readers

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/edgehub/sensorhub/hub"
)

const w1Dir = "/sys/bus/w1/devices"

// DS18B20 reads every probe on the 1-Wire bus through the kernel w1
// subsystem. One descriptor fans out to one Reading per discovered
// device; sensor ids are the configured id_prefix plus the tail of the
// ROM code, so a whole bus of probes shares a single config entry.
type DS18B20 struct {
	// Dir overrides the sysfs root, for tests.
	Dir string
}

func (s *DS18B20) Read(desc *hub.SensorDescriptor) ([]hub.Reading, error) {
	dir := s.Dir
	if dir == "" {
		dir = w1Dir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "scan w1 bus")
	}

	var readings []hub.Reading
	for _, e := range entries {
		// 0x28 is the DS18B20 family code
		if !strings.HasPrefix(e.Name(), "28-") {
			continue
		}
		temp, err := readW1Slave(filepath.Join(dir, e.Name(), "w1_slave"))
		if err != nil {
			// one bad probe on the bus is not fatal to the others
			log.Warnf("ds18b20 %s: %s", e.Name(), err)
			continue
		}
		rom := strings.TrimPrefix(e.Name(), "28-")
		suffix := rom
		if len(rom) > 4 {
			suffix = rom[len(rom)-4:]
		}
		if r, ok := desc.PrefixedReading("temperature", suffix, temp); ok {
			readings = append(readings, r)
		}
	}
	return readings, nil
}

func readW1Slave(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "read w1_slave")
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) < 2 {
		return 0, errors.New("short w1_slave payload")
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, errors.New("crc check failed")
	}
	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return 0, errors.New("no temperature in w1_slave payload")
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][idx+2:]))
	if err != nil {
		return 0, errors.Wrap(err, "parse temperature")
	}
	return float64(milli) / 1000.0, nil
}
