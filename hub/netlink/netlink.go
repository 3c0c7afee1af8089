// Package netlink implements the link prober against the operating
// system's network stack. Bringing the radio up is the job of the
// supervisor (wpa_supplicant and friends); the hub only needs to know
// whether the link is usable right now.
package netlink

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DialProber verifies connectivity by dialing a TCP endpoint. A
// successful dial proves routing end to end, which is the reachability
// the publish path actually needs.
type DialProber struct {
	Addr string

	// Interface optionally names a network interface whose operstate
	// is checked first; a down interface fails fast instead of waiting
	// out the dial timeout.
	Interface string
}

func (p *DialProber) Connect(timeout time.Duration) error {
	return p.check(timeout)
}

func (p *DialProber) Probe(timeout time.Duration) error {
	return p.check(timeout)
}

func (p *DialProber) check(timeout time.Duration) error {
	if p.Interface != "" {
		if err := interfaceUp(p.Interface); err != nil {
			return err
		}
	}
	conn, err := net.DialTimeout("tcp", p.Addr, timeout)
	if err != nil {
		return errors.Wrapf(err, "dial %s", p.Addr)
	}
	return conn.Close()
}

func interfaceUp(name string) error {
	raw, err := os.ReadFile("/sys/class/net/" + name + "/operstate")
	if err != nil {
		return errors.Wrapf(err, "read operstate of %s", name)
	}
	state := strings.TrimSpace(string(raw))
	// virtual links report "unknown" while perfectly usable
	if state != "up" && state != "unknown" {
		return errors.Errorf("interface %s is %s", name, state)
	}
	return nil
}
