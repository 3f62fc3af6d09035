package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/codefionn/wifichat/internal/consts"
	"github.com/codefionn/wifichat/internal/logger"
	"github.com/codefionn/wifichat/internal/selector"
)

// ConnectionClient provides typed access to the ConnectionActor. It also
// implements selector.Sink so event loops feed the actor's mailbox.
type ConnectionClient struct {
	ref            *ActorRef
	defaultTimeout time.Duration
}

var _ selector.Sink = (*ConnectionClient)(nil)

// NewConnectionClient creates a new client for the connection actor
func NewConnectionClient(ref *ActorRef) *ConnectionClient {
	return &ConnectionClient{
		ref:            ref,
		defaultTimeout: consts.DefaultRequestTimeout,
	}
}

// SetDefaultTimeout sets the default timeout for requests
func (c *ConnectionClient) SetDefaultTimeout(timeout time.Duration) {
	c.defaultTimeout = timeout
}

// request queues msg and waits for the answer on replyChan.
func request[T any](ctx context.Context, c *ConnectionClient, msg Message, replyChan chan T) (T, error) {
	var zero T

	if _, ok := ctx.Deadline(); !ok && c.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
		defer cancel()
	}

	if err := c.ref.SendContext(ctx, msg); err != nil {
		return zero, fmt.Errorf("failed to send %s request: %w", msg.Type(), err)
	}

	select {
	case resp := <-replyChan:
		return resp, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *ConnectionClient) requestErr(ctx context.Context, msg Message, replyChan chan error) error {
	resp, err := request(ctx, c, msg, replyChan)
	if err != nil {
		return err
	}
	return resp
}

// StartServer makes this device the group owner. It fails with a
// *conn.BindError if the port is taken.
func (c *ConnectionClient) StartServer(ctx context.Context) error {
	replyChan := make(chan error, 1)
	return c.requestErr(ctx, &StartServer{Reply: replyChan}, replyChan)
}

// StartClient joins the group owner at host. It returns once the connect is
// under way; OnConnectionEstablished reports completion.
func (c *ConnectionClient) StartClient(ctx context.Context, host string) error {
	replyChan := make(chan error, 1)
	return c.requestErr(ctx, &StartClient{Host: host, Reply: replyChan}, replyChan)
}

// StopRole closes every socket.
func (c *ConnectionClient) StopRole(ctx context.Context) error {
	replyChan := make(chan error, 1)
	return c.requestErr(ctx, &StopRole{Reply: replyChan}, replyChan)
}

// SubmitOutgoingMessage sends text as a chat message from this device.
func (c *ConnectionClient) SubmitOutgoingMessage(ctx context.Context, text string) (SendResult, error) {
	replyChan := make(chan SendResult, 1)
	logger.Debug("ConnectionClient: submitting %d bytes", len(text))
	res, err := request(ctx, c, &SendRequest{Text: text, Reply: replyChan}, replyChan)
	if err != nil {
		return SendResult{}, err
	}
	return res, res.Err
}

// ShareRoster broadcasts the server's roster to every client.
func (c *ConnectionClient) ShareRoster(ctx context.Context) error {
	replyChan := make(chan error, 1)
	return c.requestErr(ctx, &ShareRoster{Reply: replyChan}, replyChan)
}

// ResetPeers clears the peer registry.
func (c *ConnectionClient) ResetPeers(ctx context.Context) error {
	replyChan := make(chan error, 1)
	return c.requestErr(ctx, &ResetPeers{Reply: replyChan}, replyChan)
}

// AddPeer registers addr in the peer registry.
func (c *ConnectionClient) AddPeer(ctx context.Context, addr string) error {
	replyChan := make(chan error, 1)
	return c.requestErr(ctx, &AddPeer{Addr: addr, Reply: replyChan}, replyChan)
}

// Status returns a snapshot of the connection state.
func (c *ConnectionClient) Status(ctx context.Context) (Status, error) {
	replyChan := make(chan Status, 1)
	st, err := request(ctx, c, &StatusRequest{Reply: replyChan}, replyChan)
	if err != nil {
		return Status{}, err
	}
	st.MailboxDepth = c.ref.Pending()
	return st, nil
}

// notify queues a selector event, waiting for mailbox space so no event is
// dropped. It gives up only when the actor stops.
func (c *ConnectionClient) notify(msg Message) {
	if err := c.ref.SendContext(context.Background(), msg); err != nil {
		logger.Debug("ConnectionClient: dropping %s: %v", msg.Type(), err)
	}
}

// PeerAccepted implements selector.Sink.
func (c *ConnectionClient) PeerAccepted(ch *selector.Channel) {
	c.notify(&PeerAccepted{Channel: ch})
}

// ConnectCompleted implements selector.Sink.
func (c *ConnectionClient) ConnectCompleted(ch *selector.Channel) {
	c.notify(&ConnectCompleted{Channel: ch})
}

// ConnectFailed implements selector.Sink.
func (c *ConnectionClient) ConnectFailed(loopID uint64, addr string, err error) {
	c.notify(&ConnectFailed{LoopID: loopID, Addr: addr, Err: err})
}

// DataArrived implements selector.Sink.
func (c *ConnectionClient) DataArrived(ch *selector.Channel, data string) {
	c.notify(&DataArrived{Channel: ch, Data: data})
}

// ConnectionBroken implements selector.Sink.
func (c *ConnectionClient) ConnectionBroken(ch *selector.Channel, err error) {
	c.notify(&ConnectionBroken{Channel: ch, Err: err})
}

// SelectorError implements selector.Sink.
func (c *ConnectionClient) SelectorError(err *selector.FatalError) {
	c.notify(&SelectorError{Err: err})
}
