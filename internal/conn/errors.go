package conn

import (
	"errors"
	"fmt"
)

var (
	// ErrBrokenConnection marks a write or read failure on an open channel.
	ErrBrokenConnection = errors.New("broken connection")
	// ErrNotConnected is returned when there is no channel to write to.
	ErrNotConnected = errors.New("not connected")
)

// BindError is returned when the server socket cannot be bound, usually
// because another instance already listens on the port.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ConnectError is returned when the group owner cannot be reached.
// Starting the client again retries.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
