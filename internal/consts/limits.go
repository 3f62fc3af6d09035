package consts

import "time"

// Network defaults
const (
	// DefaultPort is the well-known port the group owner listens on
	DefaultPort = 1080
	// DefaultUIAddr is where the local UI bridge listens
	DefaultUIAddr = "127.0.0.1:8936"
)

// Buffer sizes for various operations
const (
	// BufferSize1KB is 1 kilobyte
	BufferSize1KB = 1024
	// ReadBufferSize caps a single socket read; one read maps to one envelope
	ReadBufferSize = 4 * BufferSize1KB
	// DefaultMailboxSize is the capacity of the connection actor's mailbox
	DefaultMailboxSize = 256
	// RelayQueueSize is the number of pending multi-hop sweeps
	RelayQueueSize = 64
	// WebSendBuffer is the per websocket client outbound queue
	WebSendBuffer = 256
)

// Timeouts for various operations
const (
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
)

// Derived defaults
const (
	// DefaultDialTimeout bounds connecting to the group owner or a relay peer
	DefaultDialTimeout = Timeout5Seconds
	// DefaultRequestTimeout bounds a synchronous request to the connection actor
	DefaultRequestTimeout = Timeout10Seconds
)
