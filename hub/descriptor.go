package hub

import (
	"github.com/pkg/errors"
)

// Provide declares one measurement a descriptor yields. Exactly one of
// ID and IDPrefix must be set; IDPrefix is for bus-discovered devices
// (e.g. a 1-Wire bus of DS18B20 probes) where the final sensor id
// carries a per-device suffix.
type Provide struct {
	ID       string `json:"id,omitempty"`
	IDPrefix string `json:"id_prefix,omitempty"`
	Unit     string `json:"unit"`
}

// SensorDescriptor is the static configuration for one physical
// sensor: which reader handles it, where it is wired, and which
// measurements it provides. Descriptors are built once at config load
// and never change for the process lifetime.
type SensorDescriptor struct {
	Key      string             `json:"key"`
	Type     string             `json:"type"`
	Pins     []int              `json:"pins,omitempty"`
	Bus      string             `json:"bus,omitempty"`
	Location string             `json:"location"`
	Active   bool               `json:"active"`
	Provides map[string]Provide `json:"provides"`
}

// NewReading builds a Reading for one of the descriptor's provides
// entries. ok is false when the descriptor does not declare name, so
// readers can skip measurements the configuration did not ask for.
func (d *SensorDescriptor) NewReading(name string, value float64) (Reading, bool) {
	p, ok := d.Provides[name]
	if !ok || p.ID == "" {
		return Reading{}, false
	}
	return Reading{
		SensorID:   p.ID,
		Value:      value,
		Unit:       p.Unit,
		Location:   d.Location,
		Active:     d.Active,
		SensorType: d.Type,
	}, true
}

// PrefixedReading is NewReading for id_prefix provides entries: the
// sensor id becomes "<prefix>_<suffix>", with the suffix derived from
// the discovered device (e.g. the tail of a 1-Wire ROM code).
func (d *SensorDescriptor) PrefixedReading(name, suffix string, value float64) (Reading, bool) {
	p, ok := d.Provides[name]
	if !ok || p.IDPrefix == "" {
		return Reading{}, false
	}
	return Reading{
		SensorID:   p.IDPrefix + "_" + suffix,
		Value:      value,
		Unit:       p.Unit,
		Location:   d.Location,
		Active:     d.Active,
		SensorType: d.Type,
	}, true
}

// Registry holds all configured descriptors in declaration order. It
// is the source of truth for what should be read, owned exclusively by
// the process and read-only after load.
type Registry struct {
	descriptors []*SensorDescriptor
	byKey       map[string]*SensorDescriptor
}

// NewRegistry validates the descriptors and builds the registry.
// Sensor ids (and id prefixes) must be unique across every provides
// mapping of every descriptor; a registry that violates this never
// loads.
func NewRegistry(descriptors []*SensorDescriptor) (*Registry, error) {
	byKey := make(map[string]*SensorDescriptor, len(descriptors))
	seenIDs := map[string]string{} // sensor id -> descriptor key

	for _, desc := range descriptors {
		if desc.Key == "" {
			return nil, errors.New("sensor entry without a key")
		}
		if _, dup := byKey[desc.Key]; dup {
			return nil, errors.Errorf("duplicate sensor key %q", desc.Key)
		}
		if desc.Type == "" {
			return nil, errors.Errorf("sensor %q: missing type", desc.Key)
		}
		if len(desc.Provides) == 0 {
			return nil, errors.Errorf("sensor %q: provides nothing", desc.Key)
		}
		for name, p := range desc.Provides {
			if err := checkProvide(name, p); err != nil {
				return nil, errors.Wrapf(err, "sensor %q", desc.Key)
			}
			id := p.ID
			if id == "" {
				id = p.IDPrefix
			}
			if owner, dup := seenIDs[id]; dup {
				return nil, errors.Errorf("sensor %q: sensor id %q already used by sensor %q", desc.Key, id, owner)
			}
			seenIDs[id] = desc.Key
		}
		byKey[desc.Key] = desc
	}

	return &Registry{descriptors: descriptors, byKey: byKey}, nil
}

func checkProvide(name string, p Provide) error {
	if name == "" {
		return errors.New("provides entry with empty measurement name")
	}
	if p.ID == "" && p.IDPrefix == "" {
		return errors.Errorf("provides %q: needs id or id_prefix", name)
	}
	if p.ID != "" && p.IDPrefix != "" {
		return errors.Errorf("provides %q: id and id_prefix are mutually exclusive", name)
	}
	if p.Unit == "" {
		return errors.Errorf("provides %q: missing unit", name)
	}
	return nil
}

// Descriptors returns all descriptors in declaration order.
func (r *Registry) Descriptors() []*SensorDescriptor {
	return r.descriptors
}

// Lookup finds a descriptor by its local key.
func (r *Registry) Lookup(key string) (*SensorDescriptor, bool) {
	desc, ok := r.byKey[key]
	return desc, ok
}

func (r *Registry) Len() int {
	return len(r.descriptors)
}
