package hub

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Session is the boundary to the broker client. An implementation owns
// exactly one broker connection; only the publish channel touches it,
// and never outside its connected state.
type Session interface {
	Connect(timeout time.Duration) error
	Publish(topic string, payload []byte, timeout time.Duration) error
	Disconnect()
	IsConnected() bool
}

// ErrBrokerDown reports that a batch was dropped because no broker
// session could be established.
var ErrBrokerDown = errors.New("broker session down")

// PublishResult is the outcome of one batch. Delivery is at-most-once:
// Dropped readings are gone for good, the next cycle produces fresh
// ones.
type PublishResult struct {
	Published int
	Dropped   int
	Err       error
}

func (r PublishResult) OK() bool {
	return r.Err == nil
}

// PublishConfig tunes one publish channel. Zero values pick defaults.
type PublishConfig struct {
	TopicPrefix  string        // first topic segment, default "sensors"
	PerReading   bool          // one message per Reading instead of one per batch
	MessageDelay time.Duration // pause between per-reading messages
	Timeout      time.Duration // per connect/publish attempt
	InitialWait  time.Duration // first reconnect backoff interval
	MaxWait      time.Duration // backoff ceiling
}

// PublishChannel owns the broker session lifecycle and the wire
// encoding of Readings. Its reconnect backoff is tracked independently
// of the link's: broker reachability and link reachability are
// distinct failure domains.
type PublishChannel struct {
	session Session
	cfg     PublishConfig
	retry   *backoff.ExponentialBackOff
	nextTry time.Time
	sleep   func(time.Duration)
	now     func() time.Time
}

func NewPublishChannel(session Session, cfg PublishConfig) *PublishChannel {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "sensors"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialWait <= 0 {
		cfg.InitialWait = time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Minute
	}
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = cfg.InitialWait
	retry.MaxInterval = cfg.MaxWait
	retry.RandomizationFactor = 0
	retry.MaxElapsedTime = 0
	retry.Reset()

	return &PublishChannel{
		session: session,
		cfg:     cfg,
		retry:   retry,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// Publish encodes and sends one batch. An empty batch is a valid no-op
// publish. A failed batch is dropped, never queued or retried; the
// failure comes back as a result, never as a panic past the caller.
func (c *PublishChannel) Publish(batch []Reading) PublishResult {
	if err := c.ensureSession(); err != nil {
		return PublishResult{Dropped: len(batch), Err: err}
	}
	if len(batch) == 0 {
		return PublishResult{}
	}
	if c.cfg.PerReading {
		return c.publishEach(batch)
	}
	return c.publishBatch(batch)
}

// Close tears the broker session down. Only called on process
// shutdown.
func (c *PublishChannel) Close() {
	if c.session.IsConnected() {
		c.session.Disconnect()
	}
}

// ensureSession reconnects a dead session, at most once per backoff
// window so a hard-down broker cannot turn every cycle into a connect
// storm.
func (c *PublishChannel) ensureSession() error {
	if c.session.IsConnected() {
		return nil
	}
	if c.now().Before(c.nextTry) {
		return errors.Wrap(ErrBrokerDown, "reconnect backoff in effect")
	}
	if err := c.session.Connect(c.cfg.Timeout); err != nil {
		delay := c.retry.NextBackOff()
		c.nextTry = c.now().Add(delay)
		log.Warnf("broker connect failed, next attempt in %s: %s", delay, err)
		return errors.Wrapf(ErrBrokerDown, "connect: %s", err)
	}
	c.retry.Reset()
	c.nextTry = time.Time{}
	log.Infof("broker session established")
	return nil
}

func (c *PublishChannel) publishEach(batch []Reading) PublishResult {
	var res PublishResult
	for i, r := range batch {
		payload, err := json.Marshal(r)
		if err != nil {
			// one bad reading must not block the rest of the batch
			log.Errorf("failed to encode reading %q: %s", r.SensorID, err)
			res.Dropped++
			continue
		}
		if err := c.session.Publish(c.topicFor(r), payload, c.cfg.Timeout); err != nil {
			log.Errorf("failed to publish reading %q: %s", r.SensorID, err)
			res.Dropped++
			res.Err = errors.Wrap(err, "publish failed")
			continue
		}
		res.Published++
		if c.cfg.MessageDelay > 0 && i < len(batch)-1 {
			c.sleep(c.cfg.MessageDelay)
		}
	}
	return res
}

func (c *PublishChannel) publishBatch(batch []Reading) PublishResult {
	var res PublishResult
	encoded := make([]json.RawMessage, 0, len(batch))
	for _, r := range batch {
		payload, err := json.Marshal(r)
		if err != nil {
			log.Errorf("failed to encode reading %q: %s", r.SensorID, err)
			res.Dropped++
			continue
		}
		encoded = append(encoded, payload)
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		res.Dropped += len(encoded)
		res.Err = errors.Wrap(err, "encode batch")
		return res
	}
	if err := c.session.Publish(c.batchTopic(), payload, c.cfg.Timeout); err != nil {
		log.Errorf("failed to publish batch of %d: %s", len(encoded), err)
		res.Dropped += len(encoded)
		res.Err = errors.Wrap(err, "publish failed")
		return res
	}
	res.Published = len(encoded)
	return res
}

// topicFor derives the per-reading topic from location and sensor id,
// so downstream consumers can subscribe selectively.
func (c *PublishChannel) topicFor(r Reading) string {
	return c.cfg.TopicPrefix + "/" + topicSegment(r.Location) + "/" + r.SensorID
}

func (c *PublishChannel) batchTopic() string {
	return c.cfg.TopicPrefix + "/batch"
}

// topicSegment turns a free-text location into one safe topic level.
func topicSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '+', '#':
			return '-'
		}
		return r
	}, s)
}
