package hub

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorhub.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `{
  "interval_sec": 30,
  "broker": {"addr": "tcp://broker.local:1883"},
  "publish": {"topic_prefix": "home", "message_delay_ms": 100},
  "sensors": [
    {
      "key": "dht11",
      "type": "DHT11",
      "pins": [14],
      "location": "Living Room",
      "active": true,
      "provides": {
        "temperature": {"id": "Sensor_DHT11_Temp", "unit": "°C"},
        "humidity": {"id": "Sensor_DHT11_Hum", "unit": "%"}
      }
    },
    {
      "key": "ds18b20_bus",
      "type": "DS18B20",
      "pins": [27],
      "location": "Basement",
      "active": true,
      "provides": {
        "temperature": {"id_prefix": "Sensor_DS18B20", "unit": "°C"}
      }
    },
    {
      "key": "button",
      "type": "Button",
      "pins": [13],
      "location": "Workshop",
      "active": false,
      "provides": {
        "state": {"id": "Sensor_Button_State", "unit": "boolean"}
      }
    }
  ]
}`

func TestLoadConfig(t *testing.T) {
	t.Setenv("MQTT_USERNAME", "hub")
	t.Setenv("MQTT_PASSWORD", "hunter2")

	cfg, err := LoadConfig(writeConfig(t, validConfig))
	assert.Nil(t, err)

	assert.Equal(t, 30*time.Second, cfg.Interval())
	assert.Equal(t, "hub", cfg.Broker.Username)
	assert.Equal(t, "hunter2", cfg.Broker.Password)
	assert.NotEmpty(t, cfg.Broker.ClientID)

	// probe address defaults to the broker's host and port
	assert.Equal(t, "broker.local:1883", cfg.Link.ProbeAddr)

	assert.Equal(t, 3, cfg.Registry.Len())
	keys := []string{}
	for _, d := range cfg.Registry.Descriptors() {
		keys = append(keys, d.Key)
	}
	assert.Equal(t, []string{"dht11", "ds18b20_bus", "button"}, keys)

	pub := cfg.PublishConfig()
	assert.Equal(t, "home", pub.TopicPrefix)
	assert.True(t, pub.PerReading)
	assert.Equal(t, 100*time.Millisecond, pub.MessageDelay)
}

func TestLoadConfigBatchMode(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{
  "broker": {"addr": "tcp://b:1883"},
  "publish": {"per_reading": false},
  "sensors": []
}`))
	assert.Nil(t, err)
	assert.False(t, cfg.PublishConfig().PerReading)
}

func TestLoadConfigRejectsDuplicateIDs(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{
  "broker": {"addr": "tcp://b:1883"},
  "sensors": [
    {"key": "a", "type": "Button", "provides": {"state": {"id": "dup", "unit": "boolean"}}},
    {"key": "b", "type": "Button", "provides": {"state": {"id": "dup", "unit": "boolean"}}}
  ]
}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dup")
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{
  "broker": {"addr": "tcp://b:1883"},
  "sensors": [],
  "surprise": true
}`))
	assert.Error(t, err)
}

func TestLoadConfigRequiresBroker(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"sensors": []}`))
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
