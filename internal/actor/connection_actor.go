package actor

import (
	"context"
	"errors"
	"fmt"

	"github.com/codefionn/wifichat/internal/conn"
	"github.com/codefionn/wifichat/internal/consts"
	"github.com/codefionn/wifichat/internal/logger"
	"github.com/codefionn/wifichat/internal/metrics"
	"github.com/codefionn/wifichat/internal/peers"
	"github.com/codefionn/wifichat/internal/pending"
	"github.com/codefionn/wifichat/internal/selector"
	"github.com/codefionn/wifichat/internal/wire"
)

var (
	// ErrNotServer is returned for operations only the group owner may perform.
	ErrNotServer = errors.New("device is not the group owner")
	// ErrNoRelay is returned when multi-hop mode is on but no router is configured.
	ErrNoRelay = errors.New("no relay configured")
)

// UI receives chat events. Methods are called on the connection actor's
// goroutine and must return quickly.
type UI interface {
	OnMessageReceived(row wire.Row)
	OnConnectionEstablished()
	OnConnectionLost()
}

// NopUI ignores every event.
type NopUI struct{}

func (NopUI) OnMessageReceived(wire.Row) {}
func (NopUI) OnConnectionEstablished()   {}
func (NopUI) OnConnectionLost()          {}

// Relayer queues a multi-hop sweep of payload over peers, skipping self.
type Relayer interface {
	Submit(peers []string, self string, payload []byte) error
}

// ConnectionOptions configures the connection actor.
type ConnectionOptions struct {
	ID string
	// DeviceName is the sender of outgoing chat rows.
	DeviceName string
	// SelfAddress identifies this device in the roster. When empty the
	// address of the current link is used.
	SelfAddress string
	MailboxSize int

	UI       UI
	Relay    Relayer
	Registry *peers.Registry
	Pending  *pending.Queue
	Logger   *logger.Logger

	// ManagerOptions configure the connection manager (port, dial timeout).
	ManagerOptions []conn.Option
}

// ConnectionActor is the only goroutine that touches the connection
// manager, the pending-ack queue and the peer registry.
type ConnectionActor struct {
	id          string
	deviceName  string
	selfAddress string

	manager  *conn.Manager
	registry *peers.Registry
	pending  *pending.Queue
	ui       UI
	relay    Relayer
	log      *logger.Logger

	multiHop  bool
	connected bool
	lastErr   error
}

// SpawnConnection creates the connection actor and its manager, starts it in
// sys and returns the typed client. The client doubles as the selector sink,
// so every socket event is queued behind earlier messages.
func SpawnConnection(ctx context.Context, sys *System, opts ConnectionOptions) (*ConnectionClient, error) {
	if opts.ID == "" {
		opts.ID = "connection"
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = consts.DefaultMailboxSize
	}
	if opts.DeviceName == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if opts.UI == nil {
		opts.UI = NopUI{}
	}
	if opts.Registry == nil {
		opts.Registry = peers.NewRegistry()
	}
	if opts.Pending == nil {
		opts.Pending = pending.NewQueue()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Component(opts.ID)
	}

	a := &ConnectionActor{
		id:          opts.ID,
		deviceName:  opts.DeviceName,
		selfAddress: opts.SelfAddress,
		registry:    opts.Registry,
		pending:     opts.Pending,
		ui:          opts.UI,
		relay:       opts.Relay,
		log:         opts.Logger,
	}

	ref := NewActorRef(opts.ID, a, opts.MailboxSize)
	client := NewConnectionClient(ref)
	managerOpts := append([]conn.Option{conn.WithLogger(opts.Logger.WithPrefix("conn"))}, opts.ManagerOptions...)
	a.manager = conn.NewManager(client, managerOpts...)

	if err := sys.Adopt(ctx, ref); err != nil {
		return nil, err
	}
	return client, nil
}

// ID returns the actor's identifier
func (a *ConnectionActor) ID() string {
	return a.id
}

// Start starts the actor
func (a *ConnectionActor) Start(ctx context.Context) error {
	a.log.Debug("connection actor started as %s", a.deviceName)
	metrics.KnownPeers.Set(float64(a.registry.Len()))
	return nil
}

// Stop releases every socket.
func (a *ConnectionActor) Stop(ctx context.Context) error {
	a.manager.Close()
	a.log.Debug("connection actor stopped")
	return nil
}

// Receive dispatches one message.
func (a *ConnectionActor) Receive(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case *StartServer:
		reply(m.Reply, a.handleStartServer(ctx))
	case *StartClient:
		reply(m.Reply, a.handleStartClient(ctx, m.Host))
	case *StopRole:
		a.handleStopRole()
		reply(m.Reply, nil)
	case *PeerAccepted:
		a.handlePeerAccepted(m.Channel)
	case *ConnectCompleted:
		a.handleConnectCompleted(m.Channel)
	case *ConnectFailed:
		a.handleConnectFailed(m)
	case *DataArrived:
		a.handleDataArrived(m.Channel, m.Data)
	case *ConnectionBroken:
		a.handleConnectionBroken(m.Channel, m.Err)
	case *SelectorError:
		a.handleSelectorError(m.Err)
	case *SendRequest:
		reply(m.Reply, a.handleSendRequest(m.Text))
	case *ShareRoster:
		reply(m.Reply, a.handleShareRoster())
	case *ResetPeers:
		a.resetGroupState()
		reply(m.Reply, nil)
	case *AddPeer:
		if a.registry.Add(m.Addr) {
			metrics.KnownPeers.Set(float64(a.registry.Len()))
		}
		reply(m.Reply, nil)
	case *StatusRequest:
		reply(m.Reply, a.status())
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type())
	}
	return nil
}

// reply delivers v if the sender asked for an answer. Reply channels are
// buffered, so this never blocks the actor.
func reply[T any](ch chan T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
	}
}

func (a *ConnectionActor) handleStartServer(ctx context.Context) error {
	prev := a.manager.Role()
	if err := a.manager.StartAsServer(ctx); err != nil {
		metrics.ConnectionErrors.WithLabelValues("bind").Inc()
		a.lastErr = err
		return err
	}
	if prev != conn.RoleServer {
		a.roleChanged(prev, conn.RoleServer)
	}
	return nil
}

func (a *ConnectionActor) handleStartClient(ctx context.Context, host string) error {
	prev := a.manager.Role()
	if err := a.manager.StartAsClient(ctx, host); err != nil {
		metrics.ConnectionErrors.WithLabelValues("connect").Inc()
		a.lastErr = err
		return err
	}
	if prev != conn.RoleClient {
		a.roleChanged(prev, conn.RoleClient)
	}
	return nil
}

// roleChanged drops group state learned in the previous role.
func (a *ConnectionActor) roleChanged(prev, next conn.Role) {
	metrics.RoleChanges.WithLabelValues(next.String()).Inc()
	if prev != conn.RoleUnset {
		a.log.Info("role changed from %s to %s, resetting peers", prev, next)
		a.resetGroupState()
	}
	if a.connected {
		a.connected = false
		a.ui.OnConnectionLost()
	}
	metrics.ConnectedPeers.Set(0)
}

func (a *ConnectionActor) handleStopRole() {
	a.manager.Close()
	metrics.ConnectedPeers.Set(0)
	a.connectionLost()
}

func (a *ConnectionActor) handlePeerAccepted(ch *selector.Channel) {
	if !a.manager.OnAccepted(ch) {
		return
	}
	metrics.ConnectedPeers.Set(float64(len(a.manager.Peers())))
	a.connected = true
	a.ui.OnConnectionEstablished()
}

func (a *ConnectionActor) handleConnectCompleted(ch *selector.Channel) {
	if !a.manager.OnConnectComplete(ch) {
		return
	}

	// Let the group owner learn this device's address for its roster
	announce := wire.NewMACAddressEnvelope(a.self()).Encode()
	if _, err := a.manager.Write(ch, []byte(announce)); err != nil {
		a.lastErr = err
		a.log.Warn("failed to announce address: %v", err)
		return
	}
	a.connected = true
	a.lastErr = nil
	a.ui.OnConnectionEstablished()
}

func (a *ConnectionActor) handleConnectFailed(m *ConnectFailed) {
	connErr := a.manager.OnConnectFailed(m.LoopID, m.Addr, m.Err)
	if connErr == nil {
		return
	}
	metrics.ConnectionErrors.WithLabelValues("connect").Inc()
	a.lastErr = connErr
	a.log.Warn("%v", connErr)
	a.connectionLost()
}

func (a *ConnectionActor) handleConnectionBroken(ch *selector.Channel, err error) {
	metrics.ConnectionErrors.WithLabelValues("broken").Inc()
	a.log.Debug("%s: %v", conn.ErrBrokenConnection, err)
	uplinkLost := a.manager.OnBrokenConnection(ch)
	metrics.ConnectedPeers.Set(float64(len(a.manager.Peers())))
	if uplinkLost {
		a.connectionLost()
	}
}

func (a *ConnectionActor) handleSelectorError(err *selector.FatalError) {
	if !a.manager.OnSelectorError(err.LoopID) {
		return
	}
	metrics.ConnectionErrors.WithLabelValues("selector").Inc()
	metrics.ConnectedPeers.Set(0)
	a.lastErr = err
	a.log.Error("event loop stopped, start the role again to recover: %v", err)
	a.connectionLost()
}

func (a *ConnectionActor) connectionLost() {
	if !a.connected {
		return
	}
	a.connected = false
	a.ui.OnConnectionLost()
}

func (a *ConnectionActor) handleDataArrived(ch *selector.Channel, data string) {
	if ch.LoopID() != a.manager.LoopID() {
		a.log.Debug("dropping data from stale %s", ch)
		return
	}

	env, err := wire.DecodeEnvelope(data)
	if err != nil {
		metrics.MalformedEnvelopes.Inc()
		a.log.Warn("dropping data from %s: %v", ch.RemoteAddr(), err)
		return
	}
	metrics.EnvelopesReceived.WithLabelValues(env.Category.String()).Inc()

	switch env.Category {
	case wire.CategoryMACAddress:
		if a.registry.Add(env.Body) {
			a.log.Info("learned peer %s", env.Body)
			metrics.KnownPeers.Set(float64(a.registry.Len()))
		}

	case wire.CategoryGroupRoster:
		a.registry.Replace(a.reachableRoster(wire.DecodeRoster(env.Body)))
		a.multiHop = true
		metrics.KnownPeers.Set(float64(a.registry.Len()))
		a.log.Info("received roster of %d peers, multi-hop mode on", a.registry.Len())

	case wire.CategoryChat:
		ack := wire.NewAckEnvelope(env.AckID).Encode()
		a.manager.Send(ch, []byte(ack))
		if a.manager.Role() == conn.RoleServer {
			a.manager.BroadcastToOthers([]byte(data), ch)
		}
		if a.manager.Role() == conn.RoleClient && a.pending.Acknowledge(env.AckID) {
			// Our own relayed message, fanned out by the group owner
			metrics.AcksReceived.WithLabelValues("echo").Inc()
			metrics.PendingAcks.Set(float64(a.pending.Len()))
			return
		}
		row, err := env.Row()
		if err != nil {
			metrics.MalformedEnvelopes.Inc()
			a.log.Warn("chat %d from %s has no valid row: %v", env.AckID, ch.RemoteAddr(), err)
			return
		}
		metrics.MessagesReceived.Inc()
		a.ui.OnMessageReceived(row)

	case wire.CategoryAck:
		if a.pending.Acknowledge(env.AckID) {
			metrics.AcksReceived.WithLabelValues("matched").Inc()
			metrics.PendingAcks.Set(float64(a.pending.Len()))
		} else {
			metrics.AcksReceived.WithLabelValues("unknown").Inc()
			a.log.Debug("ignoring ack for unknown id %d", env.AckID)
		}

	case wire.CategoryRouteAck:
		// Reserved
	}
}

func (a *ConnectionActor) handleSendRequest(text string) SendResult {
	row, err := wire.NewRow(a.deviceName, text)
	if err != nil {
		return SendResult{Err: err}
	}
	env := wire.NewChatEnvelope(row)
	a.pending.Add(env)
	metrics.PendingAcks.Set(float64(a.pending.Len()))
	payload := []byte(env.Encode())

	if a.multiHop {
		metrics.MessagesSent.WithLabelValues("relay").Inc()
		if a.relay == nil {
			return SendResult{AckID: env.AckID, Relayed: true, Err: ErrNoRelay}
		}
		if err := a.relay.Submit(a.registry.Snapshot(), a.self(), payload); err != nil {
			return SendResult{AckID: env.AckID, Relayed: true, Err: err}
		}
		return SendResult{AckID: env.AckID, Relayed: true}
	}

	metrics.MessagesSent.WithLabelValues("direct").Inc()
	reached := a.manager.PushOut(payload)
	return SendResult{AckID: env.AckID, Reached: reached}
}

func (a *ConnectionActor) handleShareRoster() error {
	if a.manager.Role() != conn.RoleServer {
		return ErrNotServer
	}
	roster := peers.NewRegistry(a.self())
	for _, p := range a.registry.Snapshot() {
		roster.Add(p)
	}
	sent := a.manager.PushOut([]byte(wire.NewRosterEnvelope(roster.Snapshot()).Encode()))
	a.log.Info("shared roster of %d peers with %d clients", roster.Len(), sent)
	return nil
}

// reachableRoster replaces the group owner's wildcard entry with the address
// this client dialed, so a relay sweep can reach the group owner.
func (a *ConnectionActor) reachableRoster(addrs []string) []string {
	remote := a.manager.RemoteAddr()
	if a.manager.Role() != conn.RoleClient || remote == "" {
		return addrs
	}
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		if addr == conn.UnspecifiedHost {
			addr = remote
		}
		out[i] = addr
	}
	return out
}

func (a *ConnectionActor) resetGroupState() {
	a.registry.Reset()
	a.multiHop = false
	metrics.KnownPeers.Set(0)
}

func (a *ConnectionActor) self() string {
	if a.selfAddress != "" {
		return a.selfAddress
	}
	if addr := a.manager.LocalAddr(); addr != "" {
		return addr
	}
	return a.deviceName
}

func (a *ConnectionActor) status() Status {
	st := Status{
		DeviceName:  a.deviceName,
		SelfAddress: a.self(),
		Role:        a.manager.Role(),
		RoleName:    a.manager.Role().String(),
		LocalAddr:   a.manager.LocalAddr(),
		ListenAddr:  a.manager.ListenAddr(),
		RemoteAddr:  a.manager.RemoteAddr(),
		Connected:   a.connected,
		Channels:    a.manager.Peers(),
		KnownPeers:  a.registry.Snapshot(),
		MultiHop:    a.multiHop,
	}
	for _, e := range a.pending.Entries() {
		st.PendingAcks = append(st.PendingAcks, PendingInfo{
			AckID:      e.Envelope.AckID,
			Body:       e.Envelope.Body,
			EnqueuedAt: e.EnqueuedAt,
		})
	}
	if a.lastErr != nil {
		st.LastError = a.lastErr.Error()
	}
	return st
}
