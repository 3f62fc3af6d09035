// Package selector multiplexes socket readiness for one connection role.
//
// A Loop owns a set of registered handles: listeners waiting for peers, one
// pending outbound connect and the channels produced by either. Each handle
// is watched by a goroutine parked in the runtime netpoller; watchers only
// report readiness. The loop goroutine is the single consumer of those
// reports and turns each into exactly one Sink notification, so a Sink sees
// events for a channel in the order they happened.
//
// Writes are never watched. A channel handed to the Sink is ready for
// direct writes.
//
// A loop that hits an unrecoverable error reports it through
// Sink.SelectorError and exits. It is never restarted; callers create a new
// Loop instead.
package selector
