package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/matst80/unirelay/internal/obs"
	"golang.org/x/net/proxy"
)

// ErrTunnelActive is reported when a CONNECT arrives while a tunnel is attached.
var ErrTunnelActive = errors.New("tunnel already attached")

const tunnelBufferSize = 32 * 1024

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, tunnelBufferSize)
		return &b
	},
}

// TunnelManager opens raw sockets for CONNECT requests and pumps their bytes to the stream.
type TunnelManager struct {
	dialer proxy.ContextDialer
}

// NewTunnelManager returns a manager dialing through d.
func NewTunnelManager(d proxy.ContextDialer) *TunnelManager {
	if d == nil {
		d = &net.Dialer{}
	}
	return &TunnelManager{dialer: d}
}

// Open dials host:port.
func (m *TunnelManager) Open(ctx context.Context, host, port string) (net.Conn, error) {
	addr := net.JoinHostPort(host, port)
	c, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		obs.ErrorsTotal.WithLabelValues("tunnel_dial").Inc()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	obs.TunnelsTotal.Inc()
	return c, nil
}

// Pump copies everything read from c to write, unmodified, one chunk per call.
// It returns nil when the target closes its side.
func (m *TunnelManager) Pump(c net.Conn, write func([]byte) error) error {
	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)
	buf := *bp
	for {
		n, err := c.Read(buf)
		if n > 0 {
			if werr := write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
