package hub

// Reader is one reader capability: it turns a descriptor into Readings
// for one sensor class. How it talks to the hardware is its own
// business; the dispatch only wants values or an error back.
//
// A reader builds Readings purely from the provides entries it
// recognizes and may return a subset when part of the hardware is
// unavailable. Every I/O inside Read must carry a bounded timeout so
// one stuck sensor cannot starve the rest of the cycle.
type Reader interface {
	Read(desc *SensorDescriptor) ([]Reading, error)
}

// ReaderFunc adapts a plain function to the Reader interface.
type ReaderFunc func(desc *SensorDescriptor) ([]Reading, error)

func (f ReaderFunc) Read(desc *SensorDescriptor) ([]Reading, error) {
	return f(desc)
}
