package hub

// Reading is one normalized measurement, ready for publication.
// A reader constructs it, the publish channel consumes it once, then
// it is discarded. Readings are never persisted.
type Reading struct {
	SensorID   string  `json:"sensor_id"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Location   string  `json:"location"`
	Active     bool    `json:"active"`
	SensorType string  `json:"sensor_type"`
}
