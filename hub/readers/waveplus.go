package readers

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/edgehub/sensorhub/hub"
)

const (
	wavePlusServiceUUID        = "b42e1c08ade711e489d3123b93f75cba"
	wavePlusCharacteristicUUID = "b42e2a68ade711e489d3123b93f75cba"
)

var wavePlusMeasurements = []string{"humidity", "radon_short", "radon_long", "temperature", "atm_pressure", "co2", "voc"}

// WavePlus reads an Airthings Wave Plus air monitor over BLE. The
// descriptor's bus field carries the device MAC address; the current
// sensor values all live in a single GATT characteristic.
type WavePlus struct {
	ScanDuration time.Duration // per connect attempt, default 5s
	Retries      int           // default 3

	initOnce sync.Once
	initErr  error
}

func (w *WavePlus) Read(desc *hub.SensorDescriptor) ([]hub.Reading, error) {
	if desc.Bus == "" {
		return nil, errors.Errorf("waveplus sensor %q needs the device address in bus", desc.Key)
	}
	if err := w.initBLE(); err != nil {
		return nil, err
	}

	values, err := w.receive(desc.Bus)
	if err != nil {
		return nil, err
	}

	readings := make([]hub.Reading, 0, len(wavePlusMeasurements))
	for _, name := range wavePlusMeasurements {
		if r, ok := desc.NewReading(name, values[name]); ok {
			readings = append(readings, r)
		}
	}
	return readings, nil
}

func (w *WavePlus) initBLE() error {
	w.initOnce.Do(func() {
		d, err := linux.NewDevice()
		if err != nil {
			w.initErr = errors.Wrap(err, "open ble")
			return
		}
		ble.SetDefaultDevice(d)
	})
	return w.initErr
}

func (w *WavePlus) receive(addr string) (map[string]float64, error) {
	retries := w.Retries
	if retries <= 0 {
		retries = 3
	}
	var lastErr error
	for i := 0; i < retries; i++ {
		values, err := w.receiveOnce(addr)
		if err == nil {
			return values, nil
		}
		lastErr = err
		log.Errorf("retrying error in receive: %s", err)
		time.Sleep(w.scanDuration()) // self-pacing interval in an attempt to fix freezes
	}
	return nil, errors.Wrap(lastErr, "all retries to receive failed")
}

func (w *WavePlus) receiveOnce(addr string) (map[string]float64, error) {
	filter := func(a ble.Advertisement) bool {
		return strings.EqualFold(a.Addr().String(), addr)
	}

	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(), w.scanDuration()))
	cln, err := ble.Connect(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't connect to ble")
	}

	// the remote peripheral can disconnect asynchronously, so the
	// disconnect is awaited in a goroutine
	done := make(chan struct{})
	go func() {
		<-cln.Disconnected()
		close(done)
	}()
	defer func() {
		_ = cln.CancelConnection()
		<-done
	}()

	serviceUUID, err := ble.Parse(wavePlusServiceUUID)
	if err != nil {
		return nil, errors.Wrap(err, "parse service uuid")
	}
	services, err := cln.DiscoverServices([]ble.UUID{serviceUUID})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't discover services")
	}
	if len(services) == 0 {
		return nil, errors.New("did not find expected sensor service")
	}

	charUUID, err := ble.Parse(wavePlusCharacteristicUUID)
	if err != nil {
		return nil, errors.Wrap(err, "parse characteristic uuid")
	}
	characteristics, err := cln.DiscoverCharacteristics([]ble.UUID{charUUID}, services[0])
	if err != nil {
		return nil, errors.Wrap(err, "couldn't discover characteristic")
	}
	if len(characteristics) == 0 {
		return nil, errors.New("did not find expected characteristic")
	}

	sensorBytes, err := cln.ReadCharacteristic(characteristics[0])
	if err != nil {
		return nil, errors.Wrap(err, "failed to read characteristic value")
	}

	raw := rawWavePlusValues{}
	buf := bytes.NewBuffer(sensorBytes)
	if err := binary.Read(buf, binary.LittleEndian, &raw); err != nil {
		return nil, errors.Wrap(err, "unpack characteristic value")
	}
	return refineWavePlusValues(raw), nil
}

func (w *WavePlus) scanDuration() time.Duration {
	if w.ScanDuration <= 0 {
		return 5 * time.Second
	}
	return w.ScanDuration
}

type rawWavePlusValues struct {
	Version     uint8
	Humidity    uint8
	Unk2        uint8
	Unk3        uint8
	RadonShort  uint16
	RadonLong   uint16
	Temperature uint16
	AtmPressure uint16
	Co2         uint16
	Voc         uint16
	Unk10       uint16
	Unk11       uint16
}

func refineWavePlusValues(raw rawWavePlusValues) map[string]float64 {
	return map[string]float64{
		"humidity":     float64(raw.Humidity) / 2.0,
		"radon_short":  float64(raw.RadonShort),
		"radon_long":   float64(raw.RadonLong),
		"temperature":  float64(raw.Temperature) / 100.0,
		"atm_pressure": float64(raw.AtmPressure) / 50.0,
		"co2":          float64(raw.Co2),
		"voc":          float64(raw.Voc),
	}
}
