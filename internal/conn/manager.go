// Package conn owns the sockets of one device: the server's listening socket
// and its channel table, or the client's single uplink.
//
// Manager is not safe for concurrent use. The connection actor is its only
// caller, which serializes role changes without locks.
package conn

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/codefionn/wifichat/internal/consts"
	"github.com/codefionn/wifichat/internal/logger"
	"github.com/codefionn/wifichat/internal/selector"
)

// UnspecifiedHost is reported as the local address of a server listening on
// the wildcard address.
const UnspecifiedHost = "Header"

// Manager implements the role state machine and the channel table.
type Manager struct {
	sink        selector.Sink
	port        int
	dialTimeout time.Duration
	log         *logger.Logger

	role       Role
	loop       *selector.Loop
	listener   net.Listener
	channels   map[string]*selector.Channel
	uplink     *selector.Channel
	connecting bool
	remoteAddr string
	localAddr  string
}

// Option configures a Manager.
type Option func(*Manager)

// WithPort sets the port the server listens on and clients dial when the
// host has none. Port 0 picks a free port for the server.
func WithPort(port int) Option {
	return func(m *Manager) {
		m.port = port
	}
}

// WithDialTimeout bounds the client connect.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.dialTimeout = d
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// NewManager creates a manager whose event loops report to sink.
func NewManager(sink selector.Sink, opts ...Option) *Manager {
	m := &Manager{
		sink:        sink,
		port:        consts.DefaultPort,
		dialTimeout: consts.DefaultDialTimeout,
		channels:    make(map[string]*selector.Channel),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Component("conn")
	}
	return m
}

// StartAsServer tears down any client link, listens on the configured port
// and starts a fresh event loop for incoming peers. It does nothing if the
// server is already running.
func (m *Manager) StartAsServer(ctx context.Context) error {
	if m.role == RoleServer && m.loop.Alive() {
		return nil
	}
	m.StopClient()
	m.StopServer()

	lc := listenConfig()
	ln, err := lc.Listen(ctx, "tcp", ":"+strconv.Itoa(m.port))
	if err != nil {
		return &BindError{Port: m.port, Err: err}
	}

	loop := selector.New(m.sink, selector.WithLogger(m.log))
	loop.Run()
	if err := loop.RegisterAccept(ln); err != nil {
		_ = ln.Close()
		_ = loop.Close()
		return fmt.Errorf("failed to register listener: %w", err)
	}

	m.role = RoleServer
	m.loop = loop
	m.listener = ln
	m.localAddr = serverHost(ln.Addr())
	m.log.Info("server listening on %s", ln.Addr())
	return nil
}

// StartAsClient tears down the server and starts connecting to host. A host
// without a port is dialed on the configured port. Completion arrives
// through the sink. It does nothing if a client link is open or connecting.
func (m *Manager) StartAsClient(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.role == RoleClient && (m.uplink != nil || m.connecting) && m.loop.Alive() {
		return nil
	}
	m.StopServer()
	m.StopClient()

	if host == "" {
		return &ConnectError{Addr: host, Err: fmt.Errorf("empty host")}
	}
	addr := HostPort(host, m.port)
	loop := selector.New(m.sink, selector.WithLogger(m.log))
	loop.Run()
	if err := loop.Connect(addr, m.dialTimeout); err != nil {
		_ = loop.Close()
		return &ConnectError{Addr: addr, Err: err}
	}

	m.role = RoleClient
	m.loop = loop
	m.connecting = true
	m.remoteAddr = addr
	m.log.Info("connecting to %s", addr)
	return nil
}

// OnAccepted records a peer accepted by the current server loop. Channels
// from an old loop or outside the server role are closed and rejected.
func (m *Manager) OnAccepted(ch *selector.Channel) bool {
	if m.role != RoleServer || !m.current(ch.LoopID()) {
		_ = ch.Close()
		return false
	}
	m.channels[ch.RemoteAddr()] = ch
	m.log.Info("peer %s connected (%d total)", ch.RemoteAddr(), len(m.channels))
	return true
}

// OnConnectComplete records the client's uplink and captures this device's
// local address.
func (m *Manager) OnConnectComplete(ch *selector.Channel) bool {
	if m.role != RoleClient || !m.current(ch.LoopID()) {
		_ = ch.Close()
		return false
	}
	if m.uplink != nil && m.uplink != ch {
		_ = m.uplink.Close()
	}
	m.uplink = ch
	m.connecting = false
	m.localAddr = ch.LocalHost()
	m.log.Info("connected to %s as %s", ch.RemoteAddr(), ch.LocalAddr())
	return true
}

// OnConnectFailed tears down a failed client start so it can be retried.
// It returns nil for failures from an old loop.
func (m *Manager) OnConnectFailed(loopID uint64, addr string, err error) *ConnectError {
	if m.role != RoleClient || !m.current(loopID) {
		return nil
	}
	m.StopClient()
	return &ConnectError{Addr: addr, Err: err}
}

// OnBrokenConnection drops a failed channel. The server forgets the peer;
// the client loses its only uplink and tears the link down. It reports
// whether the uplink was lost.
func (m *Manager) OnBrokenConnection(ch *selector.Channel) bool {
	switch {
	case m.role == RoleServer && m.channels[ch.RemoteAddr()] == ch:
		delete(m.channels, ch.RemoteAddr())
		_ = ch.Close()
		m.log.Info("peer %s disconnected (%d left)", ch.RemoteAddr(), len(m.channels))
		return false
	case m.role == RoleClient && m.uplink == ch:
		m.log.Warn("uplink to %s lost", ch.RemoteAddr())
		m.StopClient()
		return true
	default:
		_ = ch.Close()
		return false
	}
}

// OnSelectorError tears down the role whose loop failed. It reports whether
// loopID was the current loop.
func (m *Manager) OnSelectorError(loopID uint64) bool {
	if m.loop == nil || m.loop.ID() != loopID {
		return false
	}
	switch m.role {
	case RoleServer:
		m.StopServer()
	case RoleClient:
		m.StopClient()
	default:
		_ = m.loop.Close()
		m.loop = nil
	}
	return true
}

// Write performs a single write on ch. A failed write drops the channel and
// returns an error wrapping ErrBrokenConnection.
func (m *Manager) Write(ch *selector.Channel, data []byte) (int, error) {
	if ch == nil {
		return 0, ErrNotConnected
	}
	n, err := ch.Write(data)
	if err != nil {
		m.OnBrokenConnection(ch)
		return 0, fmt.Errorf("%w: %s: %v", ErrBrokenConnection, ch.RemoteAddr(), err)
	}
	return n, nil
}

// Send writes data to ch and returns the number of bytes written. Failures
// are logged and yield 0.
func (m *Manager) Send(ch *selector.Channel, data []byte) int {
	n, err := m.Write(ch, data)
	if err != nil {
		m.log.Warn("send failed: %v", err)
		return 0
	}
	return n
}

// BroadcastToOthers sends data to every connected peer except exclude and
// returns how many peers were written to. Only the server broadcasts.
func (m *Manager) BroadcastToOthers(data []byte, exclude *selector.Channel) int {
	if m.role != RoleServer {
		return 0
	}
	sent := 0
	for _, ch := range m.snapshot() {
		if ch == exclude {
			continue
		}
		if m.Send(ch, data) > 0 {
			sent++
		}
	}
	return sent
}

// PushOut sends data over every channel of the current role: all peers for
// the server, the uplink for the client. It returns how many channels were
// written to.
func (m *Manager) PushOut(data []byte) int {
	switch m.role {
	case RoleServer:
		return m.BroadcastToOthers(data, nil)
	case RoleClient:
		if m.uplink == nil {
			m.log.Warn("dropping outgoing data: not connected yet")
			return 0
		}
		if m.Send(m.uplink, data) > 0 {
			return 1
		}
	}
	return 0
}

// StopServer closes the listening socket and every peer channel.
func (m *Manager) StopServer() {
	if m.role != RoleServer {
		return
	}
	if err := m.loop.Close(); err != nil {
		m.log.Warn("closing server loop: %v", err)
	}
	m.channels = make(map[string]*selector.Channel)
	m.listener = nil
	m.loop = nil
	m.role = RoleUnset
	m.localAddr = ""
	m.log.Info("server stopped")
}

// StopClient closes the uplink or abandons a pending connect.
func (m *Manager) StopClient() {
	if m.role != RoleClient {
		return
	}
	if err := m.loop.Close(); err != nil {
		m.log.Warn("closing client loop: %v", err)
	}
	m.uplink = nil
	m.connecting = false
	m.remoteAddr = ""
	m.loop = nil
	m.role = RoleUnset
	m.localAddr = ""
	m.log.Info("client stopped")
}

// Close releases every socket.
func (m *Manager) Close() {
	m.StopServer()
	m.StopClient()
}

// Role returns the current role.
func (m *Manager) Role() Role {
	return m.role
}

// LocalAddr returns this device's address as seen on the link, or "" before
// a role is established.
func (m *Manager) LocalAddr() string {
	return m.localAddr
}

// ListenAddr returns the server's listening address, or "" when not serving.
func (m *Manager) ListenAddr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// RemoteAddr returns the address the client dials, or "" outside the client
// role.
func (m *Manager) RemoteAddr() string {
	return m.remoteAddr
}

// LoopID returns the id of the current event loop, or 0 without a role.
func (m *Manager) LoopID() uint64 {
	if m.loop == nil {
		return 0
	}
	return m.loop.ID()
}

// Peers returns the addresses in the channel table, sorted.
func (m *Manager) Peers() []string {
	peers := make([]string, 0, len(m.channels))
	for addr := range m.channels {
		peers = append(peers, addr)
	}
	sort.Strings(peers)
	return peers
}

// IsServing reports whether the listening socket is open.
func (m *Manager) IsServing() bool {
	return m.role == RoleServer && m.listener != nil
}

// IsClientOpen reports whether the client uplink is connected.
func (m *Manager) IsClientOpen() bool {
	return m.role == RoleClient && m.uplink != nil
}

// IsConnecting reports whether a client connect is in flight.
func (m *Manager) IsConnecting() bool {
	return m.role == RoleClient && m.connecting
}

func (m *Manager) current(loopID uint64) bool {
	return m.loop != nil && m.loop.ID() == loopID
}

func (m *Manager) snapshot() []*selector.Channel {
	addrs := m.Peers()
	out := make([]*selector.Channel, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, m.channels[addr])
	}
	return out
}

// HostPort appends port to host unless it already has one.
func HostPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func serverHost(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	if tcp.IP == nil || tcp.IP.IsUnspecified() {
		return UnspecifiedHost
	}
	return tcp.IP.String()
}
