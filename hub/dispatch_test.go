package hub

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func mustRegistry(t *testing.T, descs ...*SensorDescriptor) *Registry {
	t.Helper()
	reg, err := NewRegistry(descs)
	if err != nil {
		t.Fatalf("registry should load: %s", err)
	}
	return reg
}

func fakeDHTReader() Reader {
	return ReaderFunc(func(desc *SensorDescriptor) ([]Reading, error) {
		var out []Reading
		if r, ok := desc.NewReading("temperature", 22.5); ok {
			out = append(out, r)
		}
		if r, ok := desc.NewReading("humidity", 48.0); ok {
			out = append(out, r)
		}
		return out, nil
	})
}

func TestCollectDHT22(t *testing.T) {
	reg := mustRegistry(t, dht22Descriptor())
	d := NewDispatch()
	d.Register("DHT22", fakeDHTReader())

	batch := d.Collect(reg)

	assert.Len(t, batch, 2)
	assert.Equal(t, "t1", batch[0].SensorID)
	assert.Equal(t, 22.5, batch[0].Value)
	assert.Equal(t, "C", batch[0].Unit)
	assert.Equal(t, "h1", batch[1].SensorID)
	assert.Equal(t, 48.0, batch[1].Value)
	assert.Equal(t, "%", batch[1].Unit)
}

func TestCollectReaderErrorYieldsEmptyBatch(t *testing.T) {
	reg := mustRegistry(t, dht22Descriptor())
	d := NewDispatch()
	d.Register("DHT22", ReaderFunc(func(*SensorDescriptor) ([]Reading, error) {
		return nil, errors.New("hardware timeout")
	}))

	assert.Empty(t, d.Collect(reg))
}

func TestCollectIsolatesFailures(t *testing.T) {
	broken := &SensorDescriptor{
		Key: "broken", Type: "Broken", Active: true,
		Provides: map[string]Provide{"x": {ID: "bx", Unit: "raw"}},
	}
	reg := mustRegistry(t, broken, dht22Descriptor())

	d := NewDispatch()
	d.Register("Broken", ReaderFunc(func(*SensorDescriptor) ([]Reading, error) {
		return nil, errors.New("disconnected pin")
	}))
	d.Register("DHT22", fakeDHTReader())

	batch := d.Collect(reg)
	assert.Len(t, batch, 2)
	assert.Equal(t, "t1", batch[0].SensorID)
}

func TestCollectContainsPanics(t *testing.T) {
	reg := mustRegistry(t, dht22Descriptor())
	d := NewDispatch()
	d.Register("DHT22", ReaderFunc(func(*SensorDescriptor) ([]Reading, error) {
		panic("driver bug")
	}))

	assert.Empty(t, d.Collect(reg))
}

func TestCollectSkipsUnknownType(t *testing.T) {
	unknown := &SensorDescriptor{
		Key: "mystery", Type: "Unobtainium", Active: true,
		Provides: map[string]Provide{"x": {ID: "ux", Unit: "raw"}},
	}
	reg := mustRegistry(t, unknown, dht22Descriptor())

	d := NewDispatch()
	d.Register("DHT22", fakeDHTReader())

	batch := d.Collect(reg)
	assert.Len(t, batch, 2)
}

func TestCollectSkipsInactive(t *testing.T) {
	inactive := dht22Descriptor()
	inactive.Active = false
	reg := mustRegistry(t, inactive)

	d := NewDispatch()
	called := false
	d.Register("DHT22", ReaderFunc(func(*SensorDescriptor) ([]Reading, error) {
		called = true
		return nil, nil
	}))

	assert.Empty(t, d.Collect(reg))
	assert.False(t, called)
}

func TestCollectKeepsRegistryOrder(t *testing.T) {
	b := func(key, id string) *SensorDescriptor {
		return &SensorDescriptor{
			Key: key, Type: "Button", Active: true,
			Provides: map[string]Provide{"state": {ID: id, Unit: "boolean"}},
		}
	}
	reg := mustRegistry(t, b("z", "bz"), b("m", "bm"), b("a", "ba"))

	d := NewDispatch()
	d.Register("Button", ReaderFunc(func(desc *SensorDescriptor) ([]Reading, error) {
		r, _ := desc.NewReading("state", 1)
		return []Reading{r}, nil
	}))

	batch := d.Collect(reg)
	var ids []string
	for _, r := range batch {
		ids = append(ids, r.SensorID)
	}
	assert.Equal(t, []string{"bz", "bm", "ba"}, ids)
}

func TestReaderSubsetOfProvides(t *testing.T) {
	// a reader with one broken channel returns what it has; the rest
	// is silently omitted for the cycle
	reg := mustRegistry(t, dht22Descriptor())
	d := NewDispatch()
	d.Register("DHT22", ReaderFunc(func(desc *SensorDescriptor) ([]Reading, error) {
		r, _ := desc.NewReading("humidity", 51.0)
		return []Reading{r}, nil
	}))

	batch := d.Collect(reg)
	assert.Len(t, batch, 1)
	assert.Equal(t, "h1", batch[0].SensorID)
}
