package netmon

import (
	"context"
	"net"
	"time"
)

// DialProber feeds the Monitor by periodically dialing a well-known endpoint.
// It only observes reachability; the transport kind stays whatever the host
// reports (we have no radio to ask, so connected probes claim wifi).
type DialProber struct {
	monitor  *Monitor
	addr     string
	interval time.Duration

	// dial is swapped out by tests.
	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// NewDialProber probes addr (host:port) every interval.
func NewDialProber(m *Monitor, addr string, interval time.Duration) *DialProber {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &DialProber{
		monitor:  m,
		addr:     addr,
		interval: interval,
		dial:     net.DialTimeout,
	}
}

// Run probes immediately and then on every tick until ctx is done.
func (p *DialProber) Run(ctx context.Context) {
	p.probe()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probe()
		case <-ctx.Done():
			return
		}
	}
}

func (p *DialProber) probe() {
	conn, err := p.dial("tcp", p.addr, 5*time.Second)
	if err != nil {
		p.monitor.SetState(State{Connected: false, Transport: TransportNone})
		return
	}
	conn.Close()
	p.monitor.SetState(State{Connected: true, Transport: TransportWiFi})
}
