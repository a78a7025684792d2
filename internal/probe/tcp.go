package probe

import (
	"context"
	"net"
	"time"

	"plexident/launchpad/internal/sequencer"
)

// dialFunc matches net.Dialer.DialContext so tests can fake the network.
type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// TCPProber succeeds once the endpoint accepts a TCP connection. The
// connection is closed immediately; nothing is written to it.
type TCPProber struct {
	timeout time.Duration
	dial    dialFunc
}

// NewTCPProber returns a TCPProber whose attempts give up after timeout.
func NewTCPProber(timeout time.Duration) *TCPProber {
	d := &net.Dialer{}
	return &TCPProber{timeout: timeout, dial: d.DialContext}
}

func (p *TCPProber) Probe(ctx context.Context, ep sequencer.Endpoint) error {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", ep.String())
	if err != nil {
		// *net.OpError already names the operation and address.
		return err
	}
	return conn.Close()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
