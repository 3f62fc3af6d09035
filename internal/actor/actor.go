package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/codefionn/wifichat/internal/logger"
)

var (
	// ErrStopped is returned when sending to an actor that has been stopped.
	ErrStopped = errors.New("actor is stopped")
	// ErrMailboxFull is returned by Send when the mailbox has no free slot.
	ErrMailboxFull = errors.New("actor mailbox is full")
)

// Message represents a message sent between actors
type Message interface {
	Type() string
}

// Actor represents an actor in the actor model
type Actor interface {
	// Receive processes incoming messages
	Receive(ctx context.Context, msg Message) error
	// Start starts the actor
	Start(ctx context.Context) error
	// Stop stops the actor gracefully
	Stop(ctx context.Context) error
	// ID returns the actor's unique identifier
	ID() string
}

// ActorRef is a reference to an actor for sending messages. Messages are
// processed one at a time in the order they were queued.
type ActorRef struct {
	id      string
	mailbox chan Message
	actor   Actor
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.RWMutex
	stopped bool
	ctx     context.Context
}

// NewActorRef creates a new actor reference with the given ID, actor
// implementation and mailbox size.
func NewActorRef(id string, actor Actor, mailboxSize int) *ActorRef {
	return &ActorRef{
		id:      id,
		actor:   actor,
		mailbox: make(chan Message, mailboxSize),
	}
}

// ID returns the actor's ID
func (ref *ActorRef) ID() string {
	return ref.id
}

// Send sends a message to the actor (non-blocking)
func (ref *ActorRef) Send(msg Message) error {
	ref.mu.RLock()
	stopped := ref.stopped
	ref.mu.RUnlock()
	if stopped {
		return fmt.Errorf("%w: %s", ErrStopped, ref.id)
	}

	select {
	case ref.mailbox <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrMailboxFull, ref.id)
	}
}

// SendContext queues a message, waiting for mailbox space until ctx is done
// or the actor stops.
func (ref *ActorRef) SendContext(ctx context.Context, msg Message) error {
	ref.mu.RLock()
	stopped := ref.stopped
	runCtx := ref.ctx
	ref.mu.RUnlock()
	if stopped {
		return fmt.Errorf("%w: %s", ErrStopped, ref.id)
	}

	var runDone <-chan struct{}
	if runCtx != nil {
		runDone = runCtx.Done()
	}

	select {
	case ref.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-runDone:
		return fmt.Errorf("%w: %s", ErrStopped, ref.id)
	}
}

// Pending returns the number of queued messages.
func (ref *ActorRef) Pending() int {
	return len(ref.mailbox)
}

// Start starts the actor's message processing loop
func (ref *ActorRef) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := ref.actor.Start(ctx); err != nil {
		cancel()
		return err
	}

	ref.mu.Lock()
	ref.ctx = ctx
	ref.cancel = cancel
	ref.mu.Unlock()

	ref.wg.Add(1)
	go ref.run(ctx)
	return nil
}

// Stop stops the actor gracefully
func (ref *ActorRef) Stop(ctx context.Context) error {
	ref.mu.Lock()
	if ref.stopped {
		ref.mu.Unlock()
		return nil
	}
	ref.stopped = true
	cancel := ref.cancel
	ref.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Wait for actor to finish processing
	done := make(chan struct{})
	go func() {
		ref.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return ref.actor.Stop(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the actor's main message processing loop
func (ref *ActorRef) run(ctx context.Context) {
	defer ref.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ref.mailbox:
			if err := ref.actor.Receive(ctx, msg); err != nil {
				// Log error but continue processing
				logger.Error("Actor %s error processing message %s: %v", ref.id, msg.Type(), err)
			}
		}
	}
}

// System manages a collection of actors
type System struct {
	actors map[string]*ActorRef
	mu     sync.RWMutex
}

// NewSystem creates a new actor system
func NewSystem() *System {
	return &System{
		actors: make(map[string]*ActorRef),
	}
}

// Spawn creates and starts a new actor
func (s *System) Spawn(ctx context.Context, id string, actor Actor, mailboxSize int) (*ActorRef, error) {
	ref := NewActorRef(id, actor, mailboxSize)
	if err := s.Adopt(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// Adopt registers and starts a reference created with NewActorRef. It lets
// callers hand the reference to collaborators before the actor starts.
func (s *System) Adopt(ctx context.Context, ref *ActorRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actors[ref.id]; exists {
		return fmt.Errorf("actor with id %s already exists", ref.id)
	}

	if err := ref.Start(ctx); err != nil {
		return err
	}

	s.actors[ref.id] = ref
	return nil
}

// Get retrieves an actor reference by ID
func (s *System) Get(id string) (*ActorRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.actors[id]
	return ref, ok
}

// Stop stops an actor by ID
func (s *System) Stop(ctx context.Context, id string) error {
	s.mu.Lock()
	ref, exists := s.actors[id]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("actor %s not found", id)
	}
	delete(s.actors, id)
	s.mu.Unlock()

	return ref.Stop(ctx)
}

// StopAll stops all actors in the system
func (s *System) StopAll(ctx context.Context) error {
	s.mu.Lock()
	actors := make([]*ActorRef, 0, len(s.actors))
	for _, ref := range s.actors {
		actors = append(actors, ref)
	}
	s.actors = make(map[string]*ActorRef)
	s.mu.Unlock()

	var firstErr error
	for _, ref := range actors {
		if err := ref.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
