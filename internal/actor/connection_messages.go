package actor

import (
	"time"

	"github.com/codefionn/wifichat/internal/conn"
	"github.com/codefionn/wifichat/internal/selector"
)

// StartServer asks the connection actor to become the group owner.
type StartServer struct {
	Reply chan error
}

func (m *StartServer) Type() string { return "start_server" }

// StartClient asks the connection actor to join the group owner at Host.
type StartClient struct {
	Host  string
	Reply chan error
}

func (m *StartClient) Type() string { return "start_client" }

// StopRole releases every socket and leaves the device without a role.
type StopRole struct {
	Reply chan error
}

func (m *StopRole) Type() string { return "stop_role" }

// PeerAccepted reports a peer accepted by the server loop.
type PeerAccepted struct {
	Channel *selector.Channel
}

func (m *PeerAccepted) Type() string { return "peer_accepted" }

// ConnectCompleted reports that the client's uplink is connected.
type ConnectCompleted struct {
	Channel *selector.Channel
}

func (m *ConnectCompleted) Type() string { return "connect_completed" }

// ConnectFailed reports that the client's connect did not complete.
type ConnectFailed struct {
	LoopID uint64
	Addr   string
	Err    error
}

func (m *ConnectFailed) Type() string { return "connect_failed" }

// DataArrived carries text read from a channel.
type DataArrived struct {
	Channel *selector.Channel
	Data    string
}

func (m *DataArrived) Type() string { return "data_arrived" }

// ConnectionBroken reports a channel closed by the peer or failed on read.
type ConnectionBroken struct {
	Channel *selector.Channel
	Err     error
}

func (m *ConnectionBroken) Type() string { return "connection_broken" }

// SelectorError reports that an event loop terminated.
type SelectorError struct {
	Err *selector.FatalError
}

func (m *SelectorError) Type() string { return "selector_error" }

// SendRequest submits chat text typed by the user.
type SendRequest struct {
	Text  string
	Reply chan SendResult
}

func (m *SendRequest) Type() string { return "send_request" }

// SendResult describes how a submitted message left the device.
type SendResult struct {
	AckID   uint64
	Relayed bool
	// Reached counts channels written to directly; relayed sends report 0
	// because the sweep runs later.
	Reached int
	Err     error
}

// ShareRoster makes the server broadcast its peer roster.
type ShareRoster struct {
	Reply chan error
}

func (m *ShareRoster) Type() string { return "share_roster" }

// ResetPeers clears the peer registry and leaves multi-hop mode.
type ResetPeers struct {
	Reply chan error
}

func (m *ResetPeers) Type() string { return "reset_peers" }

// AddPeer registers a peer address discovered out of band.
type AddPeer struct {
	Addr  string
	Reply chan error
}

func (m *AddPeer) Type() string { return "add_peer" }

// StatusRequest asks for a snapshot of the connection state.
type StatusRequest struct {
	Reply chan Status
}

func (m *StatusRequest) Type() string { return "status_request" }

// Status is a point-in-time view of the connection actor.
type Status struct {
	DeviceName   string        `json:"device_name"`
	SelfAddress  string        `json:"self_address"`
	Role         conn.Role     `json:"-"`
	RoleName     string        `json:"role"`
	LocalAddr    string        `json:"local_addr,omitempty"`
	ListenAddr   string        `json:"listen_addr,omitempty"`
	RemoteAddr   string        `json:"remote_addr,omitempty"`
	Connected    bool          `json:"connected"`
	Channels     []string      `json:"channels"`
	KnownPeers   []string      `json:"known_peers"`
	MultiHop     bool          `json:"multi_hop"`
	PendingAcks  []PendingInfo `json:"pending_acks"`
	LastError    string        `json:"last_error,omitempty"`
	MailboxDepth int           `json:"mailbox_depth"`
}

// PendingInfo describes one unacknowledged message.
type PendingInfo struct {
	AckID      uint64    `json:"ack_id"`
	Body       string    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
