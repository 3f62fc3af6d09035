// Package routing implements the multi-hop fallback: a message that cannot
// be delivered through the group owner is offered to every known peer in
// turn over a short-lived direct link.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/wifichat/internal/consts"
	"github.com/codefionn/wifichat/internal/logger"
)

// ErrQueueFull is returned by Submit when too many sweeps are waiting.
var ErrQueueFull = errors.New("relay queue is full")

// Link is a transient point-to-point connection to one peer.
type Link interface {
	Send(payload []byte) error
	Close() error
}

// Linker establishes direct links to peers.
type Linker interface {
	RequestDirectLink(ctx context.Context, peer string) (Link, error)
}

// Report summarizes one sweep.
type Report struct {
	Attempted []string
	Delivered []string
	Failed    map[string]error
}

type job struct {
	peers   []string
	self    string
	payload []byte
}

// Router runs sweeps one at a time on its own goroutine.
type Router struct {
	linker   Linker
	log      *logger.Logger
	jobs     chan job
	onReport func(Report)
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Router) {
		r.log = l
	}
}

// WithQueueSize sets how many sweeps may wait for the worker.
func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.jobs = make(chan job, n)
		}
	}
}

// WithReportHandler registers fn to receive the report of every queued sweep.
func WithReportHandler(fn func(Report)) Option {
	return func(r *Router) {
		r.onReport = fn
	}
}

// NewRouter creates a router that reaches peers through linker.
func NewRouter(linker Linker, opts ...Option) *Router {
	r := &Router{
		linker: linker,
		jobs:   make(chan job, consts.RelayQueueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Component("routing")
	}
	return r
}

// Relay offers payload to every peer in order, skipping self. Each peer gets
// its own link, which is closed before moving on whatever the outcome.
// Failures are recorded and the sweep continues; it is never retried.
func (r *Router) Relay(ctx context.Context, peers []string, self string, payload []byte) Report {
	report := Report{Failed: make(map[string]error)}

	for _, peer := range peers {
		if strings.EqualFold(peer, self) {
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Failed[peer] = err
			continue
		}
		report.Attempted = append(report.Attempted, peer)

		if err := r.deliver(ctx, peer, payload); err != nil {
			r.log.Warn("relay to %s failed: %v", peer, err)
			report.Failed[peer] = err
			continue
		}
		r.log.Debug("relayed %d bytes to %s", len(payload), peer)
		report.Delivered = append(report.Delivered, peer)
	}

	return report
}

func (r *Router) deliver(ctx context.Context, peer string, payload []byte) error {
	link, err := r.linker.RequestDirectLink(ctx, peer)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}

	sendErr := link.Send(payload)
	closeErr := link.Close()
	if sendErr != nil {
		return fmt.Errorf("send: %w", sendErr)
	}
	if closeErr != nil {
		r.log.Debug("closing link to %s: %v", peer, closeErr)
	}
	return nil
}

// Submit queues a sweep for the worker goroutine started by Run. The peer
// list is copied.
func (r *Router) Submit(peers []string, self string, payload []byte) error {
	j := job{
		peers:   append([]string(nil), peers...),
		self:    self,
		payload: append([]byte(nil), payload...),
	}
	select {
	case r.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run processes queued sweeps until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-r.jobs:
			report := r.Relay(ctx, j.peers, j.self, j.payload)
			r.log.Info("relay sweep: %d attempted, %d delivered", len(report.Attempted), len(report.Delivered))
			if r.onReport != nil {
				r.onReport(report)
			}
		}
	}
}
