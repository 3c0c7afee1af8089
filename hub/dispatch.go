package hub

import (
	log "github.com/sirupsen/logrus"
)

// Dispatch maps descriptor type tags to reader capabilities. Adding a
// new sensor class means registering one Reader under its tag; no
// other component changes.
type Dispatch struct {
	readers map[string]Reader
}

func NewDispatch() *Dispatch {
	return &Dispatch{readers: map[string]Reader{}}
}

// Register binds a reader to a type tag. Later registrations replace
// earlier ones.
func (d *Dispatch) Register(typeTag string, r Reader) {
	d.readers[typeTag] = r
}

// Collect reads every active descriptor in registry order and returns
// the accumulated batch. A failing or unknown sensor never affects the
// others: its contribution is simply empty for this cycle.
func (d *Dispatch) Collect(reg *Registry) []Reading {
	batch := make([]Reading, 0, reg.Len())
	for _, desc := range reg.Descriptors() {
		if !desc.Active {
			continue
		}
		batch = append(batch, d.readOne(desc)...)
	}
	return batch
}

func (d *Dispatch) readOne(desc *SensorDescriptor) (readings []Reading) {
	reader, ok := d.readers[desc.Type]
	if !ok {
		log.Warnf("no reader registered for sensor type %q (sensor %q)", desc.Type, desc.Key)
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("reader for sensor %q panicked: %v", desc.Key, r)
			readings = nil
		}
	}()
	readings, err := reader.Read(desc)
	if err != nil {
		log.Errorf("failed to read sensor %q (%s): %s", desc.Key, desc.Type, err)
		return nil
	}
	return readings
}
