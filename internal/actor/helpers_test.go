package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// textMessage is a simple test message type
type textMessage struct {
	ID string
}

func (m *textMessage) Type() string {
	return "text"
}

// failMessage makes recordingActor return an error
type failMessage struct{}

func (m *failMessage) Type() string {
	return "fail"
}

// recordingActor records every message it receives
type recordingActor struct {
	id           string
	mu           sync.Mutex
	received     []Message
	startCalled  atomic.Bool
	stopCalled   atomic.Bool
	receiveCount atomic.Int32
	handler      func(ctx context.Context, msg Message) error
}

func newRecordingActor(id string) *recordingActor {
	return &recordingActor{id: id}
}

func (a *recordingActor) ID() string {
	return a.id
}

func (a *recordingActor) Start(ctx context.Context) error {
	a.startCalled.Store(true)
	return nil
}

func (a *recordingActor) Stop(ctx context.Context) error {
	a.stopCalled.Store(true)
	return nil
}

func (a *recordingActor) Receive(ctx context.Context, msg Message) error {
	if a.handler != nil {
		if err := a.handler(ctx, msg); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.received = append(a.received, msg)
	a.mu.Unlock()
	a.receiveCount.Add(1)

	if _, ok := msg.(*failMessage); ok {
		return errors.New("fail message received")
	}
	return nil
}

func (a *recordingActor) messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.received))
	copy(out, a.received)
	return out
}
