// Package pending tracks outgoing chat envelopes until they are acknowledged.
package pending

import (
	"sort"
	"time"

	"github.com/codefionn/wifichat/internal/wire"
)

// Entry is an envelope awaiting acknowledgement.
type Entry struct {
	Envelope   wire.Envelope
	EnqueuedAt time.Time
}

// Queue maps ack ids to unacknowledged envelopes. Entries never expire.
// It is not safe for concurrent use; the connection actor owns it.
type Queue struct {
	entries map[uint64]Entry
	now     func() time.Time
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		entries: make(map[uint64]Entry),
		now:     time.Now,
	}
}

// Add records env under its ack id. A second envelope with the same id
// replaces the first, so identical payloads share one entry.
func (q *Queue) Add(env wire.Envelope) {
	q.entries[env.AckID] = Entry{Envelope: env, EnqueuedAt: q.now()}
}

// Acknowledge removes the entry for ackID and reports whether one existed.
func (q *Queue) Acknowledge(ackID uint64) bool {
	if _, ok := q.entries[ackID]; !ok {
		return false
	}
	delete(q.entries, ackID)
	return true
}

// Len returns the number of unacknowledged envelopes.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns the pending entries, oldest first.
func (q *Queue) Entries() []Entry {
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].Envelope.AckID < out[j].Envelope.AckID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}
