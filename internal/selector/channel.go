package selector

import (
	"fmt"
	"net"
	"sync/atomic"
)

var channelIDs atomic.Uint64

// Channel is a connected socket registered with a Loop.
type Channel struct {
	id     uint64
	loop   *Loop
	conn   net.Conn
	closed atomic.Bool
}

func newChannel(loop *Loop, conn net.Conn) *Channel {
	return &Channel{
		id:   channelIDs.Add(1),
		loop: loop,
		conn: conn,
	}
}

// ID uniquely identifies the channel within the process.
func (c *Channel) ID() uint64 {
	return c.id
}

// LoopID returns the id of the loop the channel is registered with.
func (c *Channel) LoopID() uint64 {
	return c.loop.id
}

// RemoteAddr returns the peer's host:port.
func (c *Channel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// LocalAddr returns this side's host:port.
func (c *Channel) LocalAddr() string {
	return c.conn.LocalAddr().String()
}

// LocalHost returns this side's address without the port.
func (c *Channel) LocalHost() string {
	return hostOf(c.LocalAddr())
}

// Write performs a single write on the socket.
func (c *Channel) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	return c.conn.Write(p)
}

// Close closes the socket and removes it from its loop. A locally closed
// channel is never reported as broken.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.loop.forget(c)
	return c.conn.Close()
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	return c.closed.Load()
}

func (c *Channel) String() string {
	return fmt.Sprintf("channel#%d(%s)", c.id, c.RemoteAddr())
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
