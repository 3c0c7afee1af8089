package hub

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LinkState is the connectivity state of the network link.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnecting
	LinkConnected
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	}
	return "unknown"
}

// Prober is the boundary to the actual network link. Connect verifies
// the link can be brought up (bringing the radio itself up is the
// supervisor's job), Probe health-checks an established link. Both
// must bound their own I/O with timeout.
type Prober interface {
	Connect(timeout time.Duration) error
	Probe(timeout time.Duration) error
}

// LinkConfig tunes one link manager. Zero values pick defaults.
type LinkConfig struct {
	Timeout     time.Duration // per connect/probe attempt
	InitialWait time.Duration // first reconnect backoff interval
	MaxWait     time.Duration // backoff ceiling
}

// LinkManager owns the network link lifecycle. Reconnection always
// restarts from a clean Connecting state: a degraded link is demoted
// to Disconnected first, never repaired in place. There is no retry
// limit that gives up for good; only the backoff interval caps the
// retry rate.
type LinkManager struct {
	prober  Prober
	timeout time.Duration
	state   LinkState
	retry   *backoff.ExponentialBackOff
	sleep   func(time.Duration)
	onState func(LinkState)
}

func NewLinkManager(prober Prober, cfg LinkConfig) *LinkManager {
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
	// deterministic intervals keep the retry cadence predictable on a
	// single-flow device
	retry.RandomizationFactor = 0
	// the device has no other job, so a down link is retryable forever
	retry.MaxElapsedTime = 0
	retry.Reset()

	return &LinkManager{
		prober:  prober,
		timeout: cfg.Timeout,
		state:   LinkDisconnected,
		retry:   retry,
		sleep:   time.Sleep,
	}
}

// OnStateChange registers a hook invoked on every transition (status
// LED, metrics). Set it before the scheduler starts.
func (m *LinkManager) OnStateChange(fn func(LinkState)) {
	m.onState = fn
}

func (m *LinkManager) State() LinkState {
	return m.state
}

func (m *LinkManager) setState(s LinkState) {
	if m.state == s {
		return
	}
	m.state = s
	if m.onState != nil {
		m.onState(s)
	}
}

// EnsureConnected is idempotent: a connected link returns immediately.
// On failure the link stays Disconnected and the error is retryable;
// NextDelay tells the caller how long to wait before trying again.
func (m *LinkManager) EnsureConnected() error {
	if m.state == LinkConnected {
		return nil
	}
	m.setState(LinkConnecting)
	if err := m.prober.Connect(m.timeout); err != nil {
		m.setState(LinkDisconnected)
		return errors.Wrap(err, "link connect failed")
	}
	m.setState(LinkConnected)
	m.retry.Reset()
	log.Infof("link connected")
	return nil
}

// HealthCheck probes an established link and demotes it to
// Disconnected on failure, so the next connect starts from scratch.
// Returns true when the link is up and healthy.
func (m *LinkManager) HealthCheck() bool {
	if m.state != LinkConnected {
		return false
	}
	if err := m.prober.Probe(m.timeout); err != nil {
		log.Warnf("link health check failed, reconnecting from scratch: %s", err)
		m.setState(LinkDisconnected)
		return false
	}
	return true
}

// NextDelay returns the interval to wait before the next connect
// attempt: nondecreasing up to the configured ceiling while the link
// stays down, reset on every successful connect.
func (m *LinkManager) NextDelay() time.Duration {
	return m.retry.NextBackOff()
}

// WaitUntilConnected blocks until the link is up, sleeping the backoff
// interval between attempts. This is the scheduler's one permitted
// blocking wait per cycle; it never busy-loops on a hard-down link and
// never gives up, but it does honor ctx between attempts.
func (m *LinkManager) WaitUntilConnected(ctx context.Context) error {
	for {
		if m.HealthCheck() {
			return nil
		}
		if err := m.EnsureConnected(); err == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		delay := m.NextDelay()
		log.Infof("link down, next attempt in %s", delay)
		m.sleep(delay)
	}
}
