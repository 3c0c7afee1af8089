// Package mqtt provides the paho-backed broker session used by the
// publish channel.
package mqtt

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// Session wraps one paho client. Reconnection is owned by the publish
// channel's state machine, so the client's own auto-reconnect stays
// off.
type Session struct {
	client paho.Client
	qos    byte
}

type Options struct {
	Addr      string // e.g. tcp://broker:1883
	ClientID  string
	Username  string
	Password  string
	KeepAlive time.Duration
	QoS       byte
}

func NewSession(opts Options) *Session {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 30 * time.Second
	}
	co := paho.NewClientOptions().
		AddBroker(opts.Addr).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetKeepAlive(opts.KeepAlive).
		SetAutoReconnect(false).
		SetConnectRetry(false)

	return &Session{client: paho.NewClient(co), qos: opts.QoS}
}

func (s *Session) Connect(timeout time.Duration) error {
	token := s.client.Connect()
	if !token.WaitTimeout(timeout) {
		return errors.New("broker connect timed out")
	}
	return errors.Wrap(token.Error(), "broker connect")
}

func (s *Session) Publish(topic string, payload []byte, timeout time.Duration) error {
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return errors.Errorf("publish to %q timed out", topic)
	}
	return errors.Wrapf(token.Error(), "publish to %q", topic)
}

func (s *Session) Disconnect() {
	s.client.Disconnect(250)
}

func (s *Session) IsConnected() bool {
	return s.client.IsConnectionOpen()
}
