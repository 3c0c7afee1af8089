package hub

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config is everything the hub needs at startup: the sensor registry
// plus link, broker and publish settings. Broker credentials come from
// the environment (optionally a .env file next to the binary), never
// from the config file itself.
type Config struct {
	IntervalSec int                 `json:"interval_sec,omitempty"`
	Link        LinkSettings        `json:"link"`
	Broker      BrokerSettings      `json:"broker"`
	Publish     PublishSettings     `json:"publish"`
	Sensors     []*SensorDescriptor `json:"sensors"`

	Registry *Registry `json:"-"`
}

// LinkSettings configures the connectivity probe. ProbeAddr defaults
// to the broker's host and port, which is usually the reachability
// that actually matters.
type LinkSettings struct {
	ProbeAddr      string `json:"probe_addr,omitempty"`
	Interface      string `json:"interface,omitempty"`
	TimeoutSec     int    `json:"timeout_sec,omitempty"`
	InitialWaitSec int    `json:"initial_wait_sec,omitempty"`
	MaxWaitSec     int    `json:"max_wait_sec,omitempty"`
}

type BrokerSettings struct {
	Addr       string `json:"addr"`
	ClientID   string `json:"client_id,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`

	// from MQTT_USERNAME / MQTT_PASSWORD
	Username string `json:"-"`
	Password string `json:"-"`
}

type PublishSettings struct {
	TopicPrefix    string `json:"topic_prefix,omitempty"`
	PerReading     *bool  `json:"per_reading,omitempty"` // default true, as one message per value
	MessageDelayMs int    `json:"message_delay_ms,omitempty"`
	InitialWaitSec int    `json:"initial_wait_sec,omitempty"`
	MaxWaitSec     int    `json:"max_wait_sec,omitempty"`
}

// LoadConfig reads and validates the config file and builds the sensor
// registry. Malformed entries fail the load with a descriptive error;
// there is no partial acceptance — the process must not start with an
// invalid registry.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real deployments may set the variables directly
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	cfg := &Config{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}

	if cfg.Broker.Addr == "" {
		return nil, errors.New("config: broker.addr is required")
	}
	if cfg.Link.ProbeAddr == "" {
		cfg.Link.ProbeAddr = hostPort(cfg.Broker.Addr)
	}
	if cfg.Broker.ClientID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "sensorhub"
		}
		cfg.Broker.ClientID = hostname + "-sensorhub"
	}
	cfg.Broker.Username = os.Getenv("MQTT_USERNAME")
	cfg.Broker.Password = os.Getenv("MQTT_PASSWORD")

	registry, err := NewRegistry(cfg.Sensors)
	if err != nil {
		return nil, errors.Wrap(err, "invalid sensor registry")
	}
	cfg.Registry = registry

	return cfg, nil
}

// Interval is the pause between read cycles.
func (c *Config) Interval() time.Duration {
	if c.IntervalSec <= 0 {
		return time.Minute
	}
	return time.Duration(c.IntervalSec) * time.Second
}

func (c *Config) LinkConfig() LinkConfig {
	return LinkConfig{
		Timeout:     secs(c.Link.TimeoutSec),
		InitialWait: secs(c.Link.InitialWaitSec),
		MaxWait:     secs(c.Link.MaxWaitSec),
	}
}

func (c *Config) PublishConfig() PublishConfig {
	perReading := true
	if c.Publish.PerReading != nil {
		perReading = *c.Publish.PerReading
	}
	return PublishConfig{
		TopicPrefix:  c.Publish.TopicPrefix,
		PerReading:   perReading,
		MessageDelay: time.Duration(c.Publish.MessageDelayMs) * time.Millisecond,
		Timeout:      secs(c.Broker.TimeoutSec),
		InitialWait:  secs(c.Publish.InitialWaitSec),
		MaxWait:      secs(c.Publish.MaxWaitSec),
	}
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// hostPort strips the scheme off a broker url such as
// "tcp://broker:1883" so the bare address can be dialed by the link
// probe.
func hostPort(addr string) string {
	if idx := strings.Index(addr, "://"); idx >= 0 {
		return addr[idx+3:]
	}
	return addr
}
