package selector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/wifichat/internal/consts"
	"github.com/codefionn/wifichat/internal/logger"
)

// Sink receives the notifications produced by a Loop. All methods are called
// from the loop goroutine, one at a time.
type Sink interface {
	PeerAccepted(ch *Channel)
	ConnectCompleted(ch *Channel)
	ConnectFailed(loopID uint64, addr string, err error)
	DataArrived(ch *Channel, data string)
	ConnectionBroken(ch *Channel, err error)
	SelectorError(err *FatalError)
}

// FatalError reports a failure that terminated a loop.
type FatalError struct {
	LoopID uint64
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("selector loop %d failed: %v", e.LoopID, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

type readyKind int

const (
	readyAccept readyKind = iota
	readyConnect
	readyRead
	readyBroken
	readyFatal
)

// ready is a readiness report from a watcher goroutine.
type ready struct {
	kind readyKind
	conn net.Conn
	ch   *Channel
	addr string
	data string
	err  error
}

var loopIDs atomic.Uint64

// Loop is a readiness multiplexer for one connection role.
type Loop struct {
	id         uint64
	sink       Sink
	log        *logger.Logger
	bufferSize int

	ready  chan ready
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	start  sync.Once

	mu        sync.Mutex
	closed    bool
	listeners []net.Listener
	channels  map[uint64]*Channel
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop's logger.
func WithLogger(l *logger.Logger) Option {
	return func(loop *Loop) {
		loop.log = l
	}
}

// New creates a loop that reports to sink. Call Run to start it.
func New(sink Sink, opts ...Option) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		id:         loopIDs.Add(1),
		sink:       sink,
		bufferSize: consts.ReadBufferSize,
		ready:      make(chan ready),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		channels:   make(map[uint64]*Channel),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Component("selector")
	}
	l.log = l.log.WithPrefix(fmt.Sprintf("loop-%d", l.id))
	return l
}

// ID identifies the loop. Ids are never reused within a process.
func (l *Loop) ID() uint64 {
	return l.id
}

// Run starts the loop goroutine. Calling it more than once has no effect.
func (l *Loop) Run() {
	l.start.Do(func() {
		go l.run()
	})
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Alive reports whether the loop is still processing events.
func (l *Loop) Alive() bool {
	select {
	case <-l.done:
		return false
	default:
		return l.ctx.Err() == nil
	}
}

// RegisterAccept watches ln for incoming connections. The loop owns ln
// afterwards and closes it on shutdown.
func (l *Loop) RegisterAccept(ln net.Listener) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return net.ErrClosed
	}
	l.listeners = append(l.listeners, ln)
	go l.watchAccept(ln)
	return nil
}

// Connect starts dialing addr without blocking. Completion is reported as
// ConnectCompleted or ConnectFailed.
func (l *Loop) Connect(addr string, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return net.ErrClosed
	}
	go l.watchConnect(addr, timeout)
	return nil
}

// Close stops the loop and closes every handle it owns. It does not wait for
// the loop goroutine; use Done for that.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	listeners := l.listeners
	channels := make([]*Channel, 0, len(l.channels))
	for _, ch := range l.channels {
		channels = append(channels, ch)
	}
	l.listeners = nil
	l.mu.Unlock()

	l.cancel()

	var errs []error
	for _, ln := range listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	for _, ch := range channels {
		if err := ch.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Loop) run() {
	defer close(l.done)
	l.log.Debug("started")

	for {
		select {
		case <-l.ctx.Done():
			l.log.Debug("stopped")
			return
		case r := <-l.ready:
			if !l.dispatch(r) {
				return
			}
		}
	}
}

// dispatch handles one readiness report. It returns false when the loop
// must exit.
func (l *Loop) dispatch(r ready) bool {
	switch r.kind {
	case readyAccept:
		ch, ok := l.register(r.conn)
		if !ok {
			return true
		}
		l.log.Debug("accepted %s", ch)
		l.sink.PeerAccepted(ch)

	case readyConnect:
		if r.err != nil {
			l.log.Warn("connect to %s failed: %v", r.addr, r.err)
			l.sink.ConnectFailed(l.id, r.addr, r.err)
			return true
		}
		ch, ok := l.register(r.conn)
		if !ok {
			return true
		}
		l.log.Debug("connected %s", ch)
		l.sink.ConnectCompleted(ch)

	case readyRead:
		if r.ch.Closed() {
			return true
		}
		l.sink.DataArrived(r.ch, r.data)

	case readyBroken:
		if r.ch.Closed() {
			return true
		}
		l.forget(r.ch)
		l.log.Debug("%s broken: %v", r.ch, r.err)
		l.sink.ConnectionBroken(r.ch, r.err)

	case readyFatal:
		fatal := &FatalError{LoopID: l.id, Err: r.err}
		l.log.Error("%v", fatal)
		l.sink.SelectorError(fatal)
		_ = l.Close()
		return false
	}
	return true
}

// register adds a connected socket and starts watching it for reads.
func (l *Loop) register(conn net.Conn) (*Channel, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		_ = conn.Close()
		return nil, false
	}
	ch := newChannel(l, conn)
	l.channels[ch.id] = ch
	go l.watchRead(ch)
	return ch, true
}

func (l *Loop) forget(ch *Channel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.channels, ch.id)
}

// post hands a report to the loop goroutine. It returns false once the loop
// is shutting down.
func (l *Loop) post(r ready) bool {
	select {
	case l.ready <- r:
		return true
	case <-l.ctx.Done():
		return false
	}
}

func (l *Loop) watchAccept(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.ctx.Err() != nil {
				return
			}
			l.post(ready{kind: readyFatal, err: fmt.Errorf("accept: %w", err)})
			return
		}
		if !l.post(ready{kind: readyAccept, conn: conn}) {
			_ = conn.Close()
			return
		}
	}
}

func (l *Loop) watchConnect(addr string, timeout time.Duration) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(l.ctx, "tcp", addr)
	if !l.post(ready{kind: readyConnect, conn: conn, addr: addr, err: err}) && conn != nil {
		_ = conn.Close()
	}
}

func (l *Loop) watchRead(ch *Channel) {
	buf := make([]byte, l.bufferSize)
	for {
		n, err := ch.conn.Read(buf)
		if n > 0 {
			data := strings.ToValidUTF8(string(buf[:n]), "�")
			if !l.post(ready{kind: readyRead, ch: ch, data: data}) {
				return
			}
		}
		if err != nil {
			l.post(ready{kind: readyBroken, ch: ch, err: err})
			return
		}
	}
}
