package routing

import (
	"context"
	"net"
	"time"

	"github.com/codefionn/wifichat/internal/conn"
	"github.com/codefionn/wifichat/internal/consts"
)

// TCPLinker reaches peers by dialing them directly. A peer without a port
// is dialed on Port.
type TCPLinker struct {
	Port    int
	Timeout time.Duration
}

// NewTCPLinker creates a linker using the given default port and dial timeout.
func NewTCPLinker(port int, timeout time.Duration) *TCPLinker {
	if port <= 0 {
		port = consts.DefaultPort
	}
	if timeout <= 0 {
		timeout = consts.DefaultDialTimeout
	}
	return &TCPLinker{Port: port, Timeout: timeout}
}

// RequestDirectLink dials peer.
func (l *TCPLinker) RequestDirectLink(ctx context.Context, peer string) (Link, error) {
	addr := conn.HostPort(peer, l.Port)
	dialer := net.Dialer{Timeout: l.Timeout}
	c, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpLink{conn: c, timeout: l.Timeout}, nil
}

type tcpLink struct {
	conn    net.Conn
	timeout time.Duration
}

func (l *tcpLink) Send(payload []byte) error {
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.timeout)); err != nil {
		return err
	}
	_, err := l.conn.Write(payload)
	return err
}

func (l *tcpLink) Close() error {
	return l.conn.Close()
}
