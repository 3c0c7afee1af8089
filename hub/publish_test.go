package hub

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type fakeSession struct {
	connected  bool
	connectErr error
	publishErr error
	connects   int
	topics     []string
	payloads   [][]byte
}

func (s *fakeSession) Connect(timeout time.Duration) error {
	s.connects++
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSession) Publish(topic string, payload []byte, timeout time.Duration) error {
	if s.publishErr != nil {
		s.connected = false
		return s.publishErr
	}
	s.topics = append(s.topics, topic)
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	return nil
}

func (s *fakeSession) Disconnect()       { s.connected = false }
func (s *fakeSession) IsConnected() bool { return s.connected }

func testBatch() []Reading {
	return []Reading{
		{SensorID: "t1", Value: 22.5, Unit: "C", Location: "Living Room", Active: true, SensorType: "DHT22"},
		{SensorID: "h1", Value: 48.0, Unit: "%", Location: "Living Room", Active: true, SensorType: "DHT22"},
		{SensorID: "l1", Value: 1.2, Unit: "V", Location: "Greenhouse", Active: true, SensorType: "LDR"},
	}
}

func TestPublishEmptyBatch(t *testing.T) {
	session := &fakeSession{connected: true}
	c := NewPublishChannel(session, PublishConfig{PerReading: true})

	res := c.Publish(nil)
	assert.True(t, res.OK())
	assert.Equal(t, 0, res.Published)
	assert.Empty(t, session.topics)
}

func TestPublishPerReadingTopics(t *testing.T) {
	session := &fakeSession{connected: true}
	c := NewPublishChannel(session, PublishConfig{PerReading: true})

	res := c.Publish(testBatch())
	assert.True(t, res.OK())
	assert.Equal(t, 3, res.Published)
	assert.Equal(t, []string{
		"sensors/living-room/t1",
		"sensors/living-room/h1",
		"sensors/greenhouse/l1",
	}, session.topics)
}

func TestPublishBatchMode(t *testing.T) {
	session := &fakeSession{connected: true}
	c := NewPublishChannel(session, PublishConfig{PerReading: false})

	res := c.Publish(testBatch())
	assert.True(t, res.OK())
	assert.Equal(t, 3, res.Published)
	assert.Equal(t, []string{"sensors/batch"}, session.topics)

	var decoded []Reading
	assert.Nil(t, json.Unmarshal(session.payloads[0], &decoded))
	assert.Equal(t, testBatch(), decoded)
}

func TestPublishSkipsUnencodableReading(t *testing.T) {
	session := &fakeSession{connected: true}
	c := NewPublishChannel(session, PublishConfig{PerReading: true})

	batch := testBatch()
	batch[1].Value = math.NaN() // json has no NaN

	res := c.Publish(batch)
	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Published)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, []string{"sensors/living-room/t1", "sensors/greenhouse/l1"}, session.topics)
}

func TestPublishBrokerDown(t *testing.T) {
	session := &fakeSession{connectErr: errors.New("connection refused")}
	c := NewPublishChannel(session, PublishConfig{})

	res := c.Publish(testBatch())
	assert.False(t, res.OK())
	assert.Equal(t, 3, res.Dropped)
	assert.Equal(t, ErrBrokerDown, errors.Cause(res.Err))
}

func TestPublishReconnectBackoffWindow(t *testing.T) {
	session := &fakeSession{connectErr: errors.New("connection refused")}
	c := NewPublishChannel(session, PublishConfig{InitialWait: 10 * time.Second})

	clock := time.Unix(1000, 0)
	c.now = func() time.Time { return clock }

	_ = c.Publish(testBatch())
	assert.Equal(t, 1, session.connects)

	// inside the backoff window: fail fast, no second connect storm
	res := c.Publish(testBatch())
	assert.False(t, res.OK())
	assert.Equal(t, 1, session.connects)

	// window over: the next attempt goes out and succeeds
	clock = clock.Add(11 * time.Second)
	session.connectErr = nil
	res = c.Publish(testBatch())
	assert.True(t, res.OK())
	assert.Equal(t, 2, session.connects)
	assert.Equal(t, 3, res.Published)
}

func TestPublishFailureDropsBatch(t *testing.T) {
	session := &fakeSession{connected: true, publishErr: errors.New("broker gone")}
	c := NewPublishChannel(session, PublishConfig{PerReading: true})

	res := c.Publish(testBatch())
	assert.False(t, res.OK())
	assert.Equal(t, 0, res.Published)
	assert.Equal(t, 3, res.Dropped)
}

func TestTopicSegment(t *testing.T) {
	assert.Equal(t, "living-room", topicSegment("Living Room"))
	assert.Equal(t, "unknown", topicSegment("  "))
	assert.Equal(t, "attic-north", topicSegment("Attic/North"))
	assert.Equal(t, "a-b", topicSegment("a+b"))
}
